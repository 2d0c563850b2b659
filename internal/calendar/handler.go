package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Handler serves the calendar integration endpoints.
type Handler struct {
	registry    *Registry
	configs     *OAuthConfigStore
	frontendURL string
	logger      *logging.Logger
}

func NewHandler(registry *Registry, configs *OAuthConfigStore, frontendURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registry: registry, configs: configs, frontendURL: frontendURL, logger: logger}
}

// ConnectionStatus is the public shape of a connection.
type ConnectionStatus struct {
	Provider     string     `json:"provider"`
	Connected    bool       `json:"connected"`
	IsActive     bool       `json:"isActive"`
	CalendarID   string     `json:"calendarId,omitempty"`
	CalendarName string     `json:"calendarName,omitempty"`
	AccountEmail string     `json:"accountEmail,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	ConnectedAt  *time.Time `json:"connectedAt,omitempty"`
}

func statusOf(provider connections.Provider, conn *connections.Connection) ConnectionStatus {
	st := ConnectionStatus{Provider: provider.Slug()}
	if conn == nil {
		return st
	}
	created := conn.CreatedAt
	st.Connected = true
	st.IsActive = conn.IsActive
	st.CalendarID = conn.CalendarID
	st.CalendarName = conn.CalendarName
	st.AccountEmail = conn.AccountEmail
	st.LastSyncedAt = conn.LastSyncedAt
	st.ConnectedAt = &created
	return st
}

func (h *Handler) provider(w http.ResponseWriter, r *http.Request) (connections.Provider, bool) {
	p, err := connections.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported calendar provider"})
		return "", false
	}
	return p, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user context"})
		return "", false
	}
	return id, true
}

// HandleAuth returns the consent URL for the provider.
// GET /integrations/calendar/{provider}/auth
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	adapter, err := h.registry.Adapter(provider)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	authURL, err := adapter.AuthURL(r.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrProviderDisabled) {
			status = http.StatusServiceUnavailable
		}
		h.logger.ForUser(userID).Error("failed to build calendar auth url", "provider", provider.Slug(), "error", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// HandleCallback completes the consent flow and redirects to the frontend.
// GET /integrations/calendar/{provider}/callback?code=...&state=<userID>
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	userID := q.Get("state")
	code := q.Get("code")

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Warn("calendar oauth denied", "provider", provider.Slug(), "error", errParam, "description", q.Get("error_description"))
		h.redirect(w, r, provider, errParam)
		return
	}
	if code == "" || userID == "" {
		h.redirect(w, r, provider, "missing_code_or_state")
		return
	}

	adapter, err := h.registry.Adapter(provider)
	if err != nil {
		h.redirect(w, r, provider, "provider_disabled")
		return
	}
	conn, err := adapter.HandleOAuthCallback(r.Context(), code, userID)
	if err != nil {
		h.logger.ForUser(userID).Error("calendar oauth callback failed", "provider", provider.Slug(), "error", err)
		reason := "connection_failed"
		if errors.Is(err, ErrMissingRefreshToken) {
			reason = "missing_refresh_token"
		}
		h.redirect(w, r, provider, reason)
		return
	}

	h.logger.ForUser(userID).Info("calendar connected", "provider", provider.Slug(), "account_email", conn.AccountEmail)
	h.redirect(w, r, provider, "")
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, provider connections.Provider, failure string) {
	q := url.Values{}
	q.Set("provider", provider.Slug())
	if failure == "" {
		q.Set("success", "calendar_connected")
	} else {
		q.Set("error", failure)
	}
	http.Redirect(w, r, h.frontendURL+"/settings/integrations?"+q.Encode(), http.StatusFound)
}

// HandleGetConnection reports the user's connection for one provider.
// GET /integrations/calendar/connections/{provider}
func (h *Handler) HandleGetConnection(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	conn, err := h.registry.Connections().Get(r.Context(), userID, provider)
	if err != nil && !errors.Is(err, connections.ErrNotFound) {
		h.logger.ForUser(userID).Error("failed to load calendar connection", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load connection"})
		return
	}
	writeJSON(w, http.StatusOK, statusOf(provider, conn))
}

// HandleDisconnect deletes the user's connection for one provider.
// DELETE /integrations/calendar/connections/{provider}
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	err := h.registry.Connections().Delete(r.Context(), userID, provider)
	switch {
	case errors.Is(err, connections.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "calendar not connected"})
		return
	case err != nil:
		h.logger.ForUser(userID).Error("failed to disconnect calendar", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to disconnect"})
		return
	}
	h.logger.ForUser(userID).Info("calendar disconnected", "provider", provider.Slug())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleStatusAll reports every provider for the user.
// GET /integrations/calendar/connections/status/all
func (h *Handler) HandleStatusAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	conns, err := h.registry.Connections().ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.ForUser(userID).Error("failed to list calendar connections", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list connections"})
		return
	}
	byProvider := make(map[connections.Provider]*connections.Connection, len(conns))
	for _, c := range conns {
		byProvider[c.Provider] = c
	}
	out := make(map[string]ConnectionStatus, len(connections.Precedence))
	for _, p := range connections.Precedence {
		out[p.Slug()] = statusOf(p, byProvider[p])
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetOAuthConfig returns the redacted provider client config (admin).
// GET /integrations/calendar/admin/oauth-config/{provider}
func (h *Handler) HandleGetOAuthConfig(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	cfg, err := h.configs.Get(r.Context(), provider)
	if errors.Is(err, ErrProviderDisabled) {
		writeJSON(w, http.StatusOK, OAuthConfig{Provider: provider})
		return
	}
	if err != nil {
		h.logger.Error("failed to load oauth config", "provider", provider.Slug(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load oauth config"})
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// HandlePutOAuthConfig replaces the provider client config (admin).
// PUT /integrations/calendar/admin/oauth-config/{provider}
func (h *Handler) HandlePutOAuthConfig(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	var cfg OAuthConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cfg.Provider = provider
	if cfg.ClientID == "" || cfg.RedirectURI == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_id and redirect_uri are required"})
		return
	}
	if err := h.configs.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save oauth config", "provider", provider.Slug(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save oauth config"})
		return
	}
	h.logger.Info("calendar oauth config updated", "provider", provider.Slug(), "enabled", cfg.Enabled)
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
