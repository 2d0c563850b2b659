package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

func newGoogleFixture(t *testing.T, handler http.HandlerFunc) (*GoogleAdapter, *authFixture) {
	t.Helper()
	f := newAuthFixture(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f.connect(t, "u1", connections.ProviderGoogle, time.Now().Add(time.Hour))
	return NewGoogleAdapter(f.auth, srv.URL+"/", nil), f
}

func TestGoogleListEventsSkipsCancelledAndKeepsAllDayWithoutTimes(t *testing.T) {
	adapter, _ := newGoogleFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.Equal(t, "Bearer stored-access", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"ev-1","summary":"Jane Doe","description":"Phone: 0400 000 000",
			 "start":{"dateTime":"2025-06-02T10:00:00+10:00"},"end":{"dateTime":"2025-06-02T11:00:00+10:00"}},
			{"id":"ev-2","status":"cancelled","start":{"dateTime":"2025-06-02T12:00:00Z"},"end":{"dateTime":"2025-06-02T13:00:00Z"}},
			{"id":"ev-3","summary":"Holiday","start":{"date":"2025-06-03"},"end":{"date":"2025-06-04"}}
		]}`))
	})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := adapter.ListEvents(context.Background(), "u1", start, start.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "ev-1", events[0].ID)
	assert.True(t, events[0].HasTimes())
	assert.True(t, events[0].Start.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "ev-3", events[1].ID)
	assert.False(t, events[1].HasTimes())
}

func TestGoogleCheckAvailabilityReportsConflicts(t *testing.T) {
	adapter, _ := newGoogleFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"busy","start":{"dateTime":"2025-06-02T10:30:00Z"},"end":{"dateTime":"2025-06-02T11:30:00Z"}}]}`))
	})

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	avail, err := adapter.CheckAvailability(context.Background(), "u1", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, avail.Available)
	require.Len(t, avail.Conflicts, 1)
	assert.Equal(t, "busy", avail.Conflicts[0].ID)
}

func TestGoogleCreateEventSendsTimes(t *testing.T) {
	var got map[string]any
	adapter, _ := newGoogleFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"created-1","summary":"Consult","start":{"dateTime":"2025-06-02T10:00:00Z"},"end":{"dateTime":"2025-06-02T11:00:00Z"}}`))
	})

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ev, err := adapter.CreateEvent(context.Background(), "u1", EventInput{
		Summary: "Consult", Start: start, End: start.Add(time.Hour), Timezone: "UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "created-1", ev.ID)
	assert.Equal(t, "Consult", got["summary"])
	startField, _ := got["start"].(map[string]any)
	assert.Equal(t, "2025-06-02T10:00:00Z", startField["dateTime"])
}

func TestGoogleDeleteEventIsIdempotent(t *testing.T) {
	adapter, _ := newGoogleFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})

	assert.NoError(t, adapter.DeleteEvent(context.Background(), "u1", "ev-1"))
}

func TestGoogleErrorsAreTyped(t *testing.T) {
	adapter, _ := newGoogleFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid event"}}`))
	})

	_, err := adapter.CreateEvent(context.Background(), "u1", EventInput{Summary: "x"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, connections.ProviderGoogle, perr.Provider)
	assert.Equal(t, "create event", perr.Op)

	_, err = adapter.ListEvents(context.Background(), "someone-else", time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotConnected)
}
