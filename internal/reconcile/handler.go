package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Handler exposes on-demand reconciliation for the dashboard's "Sync Calendar" action.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

type syncResponse struct {
	Success bool `json:"success"`
	Result
}

// HandleSync handles POST /appointments/sync[?provider=google]
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user context"})
		return
	}

	var (
		res *Result
		err error
	)
	if raw := r.URL.Query().Get("provider"); raw != "" {
		provider, perr := connections.ParseProvider(raw)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		res, err = h.engine.Sync(r.Context(), userID, provider)
	} else {
		res, err = h.engine.SyncUser(r.Context(), userID)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, syncResponse{Success: true, Result: *res})
	case errors.Is(err, calendar.ErrNotConnected):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no calendar connected"})
	case errors.Is(err, calendar.ErrReconnectRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "calendar authorization expired, please reconnect"})
	case errors.Is(err, calendar.ErrProviderDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		h.logger.ForUser(userID).Error("calendar sync failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "calendar sync failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
