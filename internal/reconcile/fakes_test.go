package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// memCalendar is an in-memory provider calendar.
type memCalendar struct {
	provider connections.Provider

	mu      sync.Mutex
	events  map[string]calendar.Event
	seq     int
	listErr error

	listCalls atomic.Int32
}

func newMemCalendar(provider connections.Provider) *memCalendar {
	return &memCalendar{provider: provider, events: make(map[string]calendar.Event)}
}

func (m *memCalendar) put(ev calendar.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
}

func (m *memCalendar) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
}

func (m *memCalendar) Provider() connections.Provider { return m.provider }

func (m *memCalendar) AuthURL(context.Context, string) (string, error) { return "", nil }

func (m *memCalendar) HandleOAuthCallback(context.Context, string, string) (*connections.Connection, error) {
	return nil, errors.New("not supported")
}

func (m *memCalendar) CheckAvailability(ctx context.Context, userID string, start, end time.Time) (*calendar.Availability, error) {
	events, err := m.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return &calendar.Availability{Available: len(events) == 0, Conflicts: events}, nil
}

func (m *memCalendar) ListEvents(_ context.Context, _ string, start, end time.Time) ([]calendar.Event, error) {
	m.listCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []calendar.Event
	for _, ev := range m.events {
		if ev.HasTimes() && (ev.End.Before(start) || !ev.Start.Before(end)) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCalendar) CreateEvent(_ context.Context, _ string, in calendar.EventInput) (*calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ev := calendar.Event{ID: fmt.Sprintf("mem-%d", m.seq), Summary: in.Summary, Description: in.Description, Start: in.Start, End: in.End}
	m.events[ev.ID] = ev
	return &ev, nil
}

func (m *memCalendar) UpdateEvent(_ context.Context, _ string, id string, in calendar.EventInput) (*calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	ev.Start, ev.End = in.Start, in.End
	m.events[id] = ev
	return &ev, nil
}

func (m *memCalendar) DeleteEvent(_ context.Context, _ string, id string) error {
	m.remove(id)
	return nil
}
