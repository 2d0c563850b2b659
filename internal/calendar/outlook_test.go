package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

func newOutlookFixture(t *testing.T, mux *http.ServeMux) (*OutlookAdapter, *httptest.Server) {
	t.Helper()
	f := newAuthFixture(t)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f.connect(t, "u1", connections.ProviderOutlook, time.Now().Add(time.Hour))
	return NewOutlookAdapter(f.auth, srv.URL, nil), srv
}

func TestOutlookListEventsFollowsNextLink(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/me/calendar/calendarView", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"value":[{"id":"o-2","subject":"Second","isCancelled":true,
				"start":{"dateTime":"2025-06-03T09:00:00.0000000","timeZone":"UTC"},
				"end":{"dateTime":"2025-06-03T10:00:00.0000000","timeZone":"UTC"}}]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{
				"id":      "o-1",
				"subject": "First",
				"body":    map[string]string{"contentType": "text", "content": "Phone: +61 400 111 222"},
				"start":   map[string]string{"dateTime": "2025-06-02T09:00:00.0000000", "timeZone": "UTC"},
				"end":     map[string]string{"dateTime": "2025-06-02T10:00:00.0000000", "timeZone": "UTC"},
			}},
			"@odata.nextLink": srvURL + "/me/calendar/calendarView?page=2",
		})
	})
	adapter, srv := newOutlookFixture(t, mux)
	srvURL = srv.URL

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := adapter.ListEvents(context.Background(), "u1", start, start.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "o-1", events[0].ID)
	assert.Equal(t, "Phone: +61 400 111 222", events[0].Description)
	assert.True(t, events[0].Start.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)))
}

func TestOutlookCreateAndUpdateEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/calendar/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body graphEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-06-02T09:00:00", body.Start.DateTime)
		assert.Equal(t, "UTC", body.Start.TimeZone)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"new-1","subject":"Consult","start":{"dateTime":"2025-06-02T09:00:00","timeZone":"UTC"},"end":{"dateTime":"2025-06-02T10:00:00","timeZone":"UTC"}}`))
	})
	mux.HandleFunc("/me/events/new-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new-1","subject":"Moved"}`))
	})
	adapter, _ := newOutlookFixture(t, mux)

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	created, err := adapter.CreateEvent(context.Background(), "u1", EventInput{Summary: "Consult", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	assert.True(t, created.End.Equal(start.Add(time.Hour)))

	updated, err := adapter.UpdateEvent(context.Background(), "u1", "new-1", EventInput{Summary: "Moved"})
	require.NoError(t, err)
	assert.Equal(t, "Moved", updated.Summary)
}

func TestOutlookDeleteEventTreatsNotFoundAsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/events/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/me/events/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	adapter, _ := newOutlookFixture(t, mux)

	assert.NoError(t, adapter.DeleteEvent(context.Background(), "u1", "gone"))

	err := adapter.DeleteEvent(context.Background(), "u1", "broken")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "delete event", perr.Op)
}

func TestParseGraphTimeHonoursZone(t *testing.T) {
	got := parseGraphTime(&graphDateTime{DateTime: "2025-12-05T14:00:00.0000000", TimeZone: "Australia/Sydney"})
	assert.True(t, got.Equal(time.Date(2025, 12, 5, 3, 0, 0, 0, time.UTC)))
	assert.True(t, parseGraphTime(nil).IsZero())
}
