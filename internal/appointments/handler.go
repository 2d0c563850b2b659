package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Handler serves the tenant-scoped appointments API.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the /appointments router. The stats route is registered
// before /{id} so it is never captured as an id.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/stats/overview", h.HandleStats)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Post("/{id}/cancel", h.HandleCancel)
	r.Post("/{id}/confirm", h.HandleConfirm)
	return r
}

// caller returns the user id and the ownership scope (empty for admins).
func caller(w http.ResponseWriter, r *http.Request) (userID, scope string, role tenancy.Role, ok bool) {
	userID, ok = tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user context"})
		return "", "", "", false
	}
	role = tenancy.RoleFromContext(r.Context())
	scope = userID
	if role.IsAdmin() {
		scope = ""
	}
	return userID, scope, role, true
}

// ListResponse is the paginated list payload.
type ListResponse struct {
	Success      bool           `json:"success"`
	Appointments []*Appointment `json:"appointments"`
	Total        int            `json:"total"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalPages   int            `json:"totalPages"`
}

// parseQueryTime accepts RFC3339 or a bare date. A bare endDate covers the whole day.
func parseQueryTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

// HandleList handles GET /appointments?status=&startDate=&endDate=&page=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	_, scope, role, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{UserID: scope, Limit: 20}
	if role.IsAdmin() && q.Get("userId") != "" {
		filter.UserID = q.Get("userId")
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		filter.Status = status
	}
	if raw := q.Get("startDate"); raw != "" {
		t, err := parseQueryTime(raw, false)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid startDate"})
			return
		}
		filter.From = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := parseQueryTime(raw, true)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid endDate"})
			return
		}
		filter.To = &t
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 200 {
		filter.Limit = v
	}
	page := 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}
	filter.Offset = (page - 1) * filter.Limit

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Success:      true,
		Appointments: items,
		Total:        total,
		Page:         page,
		Limit:        filter.Limit,
		TotalPages:   (total + filter.Limit - 1) / filter.Limit,
	})
}

// HandleCreate handles POST /appointments
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	appt, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// HandleGet handles GET /appointments/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	_, scope, _, ok := caller(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// HandleUpdate handles PUT /appointments/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	_, scope, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status != nil {
		status, err := ParseStatus(string(*req.Status))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		req.Status = &status
	}
	appt, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), scope, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// HandleDelete handles DELETE /appointments/{id}. Admin only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	_, scope, role, ok := caller(w, r)
	if !ok {
		return
	}
	if !role.IsAdmin() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), scope); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancel handles POST /appointments/{id}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	_, scope, _, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	appt, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), scope, body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// HandleConfirm handles POST /appointments/{id}/confirm
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	_, scope, _, ok := caller(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Confirm(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// HandleStats handles GET /appointments/stats/overview?days=N
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, _, role, ok := caller(w, r)
	if !ok {
		return
	}
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a non-negative integer"})
			return
		}
		days = v
	}
	stats, err := h.service.Stats(r.Context(), userID, role, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("appointments request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
