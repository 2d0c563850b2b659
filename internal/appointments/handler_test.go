package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
)

func serve(t *testing.T, h *Handler, method, path string, body any, userID string, role tenancy.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req = req.WithContext(tenancy.WithUser(req.Context(), userID, role))
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndGet(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc, nil)
	start := fixedNow.Add(24 * time.Hour)

	rec := serve(t, h, http.MethodPost, "/", validRequest(start), "u1", tenancy.RoleClient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Regexp(t, `^BK-2025-\d{6}$`, created.BookingReference)

	rec = serve(t, h, http.MethodGet, "/"+created.ID, nil, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/"+created.ID, nil, "u2", tenancy.RoleClient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, http.MethodGet, "/"+created.ID, nil, "admin", tenancy.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/does-not-exist", nil, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc, nil)

	req := validRequest(fixedNow.Add(time.Hour))
	req.CustomerName = ""
	rec := serve(t, h, http.MethodPost, "/", req, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/?status=bogus", nil, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerStatsRouteIsNotAnID(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc, nil)
	_, err := svc.Create(context.Background(), "u1", validRequest(fixedNow.Add(time.Hour)))
	require.NoError(t, err)

	rec := serve(t, h, http.MethodGet, "/stats/overview?days=7", nil, "u1", tenancy.RoleClient)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Scheduled)

	rec = serve(t, h, http.MethodGet, "/stats/overview?days=-1", nil, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCancelConfirmDelete(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc, nil)
	appt, err := svc.Create(context.Background(), "u1", validRequest(fixedNow.Add(time.Hour)))
	require.NoError(t, err)

	rec := serve(t, h, http.MethodPost, "/"+appt.ID+"/confirm", nil, "u1", tenancy.RoleClient)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodPost, "/"+appt.ID+"/cancel", map[string]string{"reason": "travel"}, "u1", tenancy.RoleClient)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "travel", cancelled.CancellationReason)

	rec = serve(t, h, http.MethodPut, "/"+appt.ID, map[string]string{"startTime": fixedNow.Add(72 * time.Hour).Format(time.RFC3339)}, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodDelete, "/"+appt.ID, nil, "u1", tenancy.RoleClient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, http.MethodDelete, "/"+appt.ID, nil, "admin", tenancy.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerListScopesToTenant(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc, nil)
	ctx := context.Background()
	for _, user := range []string{"u1", "u1", "u2"} {
		_, err := svc.Create(ctx, user, validRequest(fixedNow.Add(time.Hour)))
		require.NoError(t, err)
	}

	rec := serve(t, h, http.MethodGet, "/", nil, "u1", tenancy.RoleClient)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Success)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.TotalPages)

	rec = serve(t, h, http.MethodGet, "/?limit=1&page=2", nil, "u1", tenancy.RoleClient)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Appointments, 1)
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 2, list.TotalPages)

	rec = serve(t, h, http.MethodGet, "/?startDate=2025-06-02", nil, "u1", tenancy.RoleClient)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Total)

	rec = serve(t, h, http.MethodGet, "/", nil, "admin", tenancy.RoleAdmin)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)
}
