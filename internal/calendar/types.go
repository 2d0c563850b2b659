package calendar

import (
	"context"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// Event is a provider-neutral calendar event. Start and End are zero for
// all-day events or events the provider returned without date-times.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// HasTimes reports whether both date-times are present.
func (e Event) HasTimes() bool {
	return !e.Start.IsZero() && !e.End.IsZero()
}

// EventInput describes an event to create or patch. Zero fields are left
// untouched by UpdateEvent.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// Availability is the provider's view of a time window.
type Availability struct {
	Available bool    `json:"available"`
	Conflicts []Event `json:"conflicts,omitempty"`
}

// Adapter is the capability set every calendar provider implements.
type Adapter interface {
	Provider() connections.Provider
	AuthURL(ctx context.Context, userID string) (string, error)
	HandleOAuthCallback(ctx context.Context, code, userID string) (*connections.Connection, error)
	CheckAvailability(ctx context.Context, userID string, start, end time.Time) (*Availability, error)
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, userID string, in EventInput) (*Event, error)
	UpdateEvent(ctx context.Context, userID, eventID string, in EventInput) (*Event, error)
	// DeleteEvent succeeds when the event is already gone.
	DeleteEvent(ctx context.Context, userID, eventID string) error
}

// availabilityFromEvents returns the timed events overlapping [start, end).
func availabilityFromEvents(events []Event, start, end time.Time) *Availability {
	out := &Availability{Available: true}
	for _, ev := range events {
		if !ev.HasTimes() {
			continue
		}
		if ev.Start.Before(end) && ev.End.After(start) {
			out.Conflicts = append(out.Conflicts, ev)
		}
	}
	out.Available = len(out.Conflicts) == 0
	return out
}
