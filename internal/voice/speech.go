package voice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
)

var errRescheduleCancelled = errors.New("appointment is cancelled and cannot be rescheduled")

// argumentError reports a required function argument the assistant left out.
type argumentError struct {
	name string
}

func (e *argumentError) Error() string { return "missing argument: " + e.name }

func missingArgument(name string) error { return &argumentError{name: name} }

func spokenTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2 at 3:04 PM")
}

func conflictPhrase(n int) string {
	if n == 1 {
		return "is 1 conflicting appointment"
	}
	return fmt.Sprintf("are %d conflicting appointments", n)
}

func joinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// spokenError turns an error into a sentence the assistant can read out.
func spokenError(err error) string {
	var argErr *argumentError
	switch {
	case errors.As(err, &argErr):
		return fmt.Sprintf("I need the %s to do that.", argErr.name)
	case errors.Is(err, errRescheduleCancelled):
		return "This appointment has been cancelled and cannot be rescheduled. Please book a new appointment instead."
	case errors.Is(err, ErrAssistantMappingMissing):
		return "Configuration error: " + err.Error() + "."
	case errors.Is(err, ErrUnknownCaller):
		return "I cannot identify which business this call belongs to."
	case errors.Is(err, ErrUnknownFunction):
		return "Sorry, I can't do that: " + err.Error() + "."
	case errors.Is(err, ErrNoFunctionCall):
		return "The request did not contain a function call."
	case errors.Is(err, ErrMissingTime):
		return "I need a date and time to do that."
	case errors.Is(err, ErrInvalidWindow):
		return "The end time must be after the start time."
	case errors.Is(err, ErrInvalidDateTime):
		return "I couldn't understand that date and time. Please say it again."
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, appointments.ErrForbidden):
		return "I couldn't find an appointment with that booking reference."
	case errors.Is(err, appointments.ErrStartInPast):
		return "That time is in the past. Please choose a future time."
	case errors.Is(err, appointments.ErrMissingName):
		return "I need the customer's name to book the appointment."
	case errors.Is(err, appointments.ErrMissingPhone):
		return "I need a phone number to book the appointment."
	case errors.Is(err, appointments.ErrCancelled):
		return "This appointment has been cancelled."
	case appointments.IsValidation(err):
		return "Sorry, " + err.Error() + "."
	case errors.Is(err, calendar.ErrNotConnected):
		return "No calendar is connected for this business."
	case errors.Is(err, calendar.ErrReconnectRequired):
		return "The calendar connection has expired. Please reconnect the calendar."
	default:
		return "Sorry, the calendar service is unavailable right now. Please try again shortly."
	}
}
