package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

type fakeAdapter struct {
	provider    connections.Provider
	busy        []calendar.Event
	createErr   error
	availErr    error
	deleteErr   error
	availCalls  int
	created     []calendar.EventInput
	updated     []string
	deleted     []string
	nextEventID string
}

func (f *fakeAdapter) Provider() connections.Provider { return f.provider }
func (f *fakeAdapter) AuthURL(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) HandleOAuthCallback(context.Context, string, string) (*connections.Connection, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAdapter) CheckAvailability(_ context.Context, _ string, start, end time.Time) (*calendar.Availability, error) {
	f.availCalls++
	if f.availErr != nil {
		return nil, f.availErr
	}
	out := &calendar.Availability{Available: true}
	for _, ev := range f.busy {
		if ev.Start.Before(end) && ev.End.After(start) {
			out.Conflicts = append(out.Conflicts, ev)
		}
	}
	out.Available = len(out.Conflicts) == 0
	return out, nil
}
func (f *fakeAdapter) ListEvents(context.Context, string, time.Time, time.Time) ([]calendar.Event, error) {
	return f.busy, nil
}
func (f *fakeAdapter) CreateEvent(_ context.Context, _ string, in calendar.EventInput) (*calendar.Event, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	id := f.nextEventID
	if id == "" {
		id = "evt-1"
	}
	return &calendar.Event{ID: id, Summary: in.Summary, Start: in.Start, End: in.End}, nil
}
func (f *fakeAdapter) UpdateEvent(_ context.Context, _ string, id string, in calendar.EventInput) (*calendar.Event, error) {
	f.updated = append(f.updated, id)
	return &calendar.Event{ID: id, Summary: in.Summary}, nil
}
func (f *fakeAdapter) DeleteEvent(_ context.Context, _ string, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

// fakeCalendars connects every user to one adapter unless connected is false.
type fakeCalendars struct {
	adapter   *fakeAdapter
	connected bool
}

func (f *fakeCalendars) ForUser(_ context.Context, userID string) (calendar.Adapter, *connections.Connection, error) {
	if !f.connected {
		return nil, nil, calendar.ErrNotConnected
	}
	return f.adapter, &connections.Connection{UserID: userID, Provider: f.adapter.provider, IsActive: true}, nil
}

func (f *fakeCalendars) Adapter(provider connections.Provider) (calendar.Adapter, error) {
	if provider != f.adapter.provider {
		return nil, calendar.ErrProviderDisabled
	}
	return f.adapter, nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(cal *fakeCalendars) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	repo.now = func() time.Time { return fixedNow }
	var calendars Calendars
	if cal != nil {
		calendars = cal
	}
	svc := NewService(repo, calendars, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func validRequest(start time.Time) CreateRequest {
	return CreateRequest{
		CustomerName:  "Jane Doe",
		CustomerPhone: "+61 400 000 000",
		Title:         "Consultation",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
	}
}
