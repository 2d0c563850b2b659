// Package voice answers the voice assistant's function-call webhook: it
// identifies the tenant, normalizes the spoken date-times and dispatches to
// the appointment ledger or the tenant's calendar.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

const (
	FuncCheckAvailability = "check_availability"
	FuncCreateEvent       = "create_event"
	FuncReadEvents        = "read_events"
	FuncUpdateEvent       = "update_event"
	FuncDeleteEvent       = "delete_event"
	FuncReschedule        = "reschedule_appointment"
	FuncCancel            = "cancel_appointment"
)

var voiceTracer = otel.Tracer("scheduling.internal.voice")

// ErrUnknownFunction is returned for function names the router does not serve.
var ErrUnknownFunction = errors.New("unknown function")

// Ledger is the appointment service surface used by the voice functions.
type Ledger interface {
	CheckAvailabilityStrict(ctx context.Context, userID string, start, end time.Time, excludeID string) (*appointments.Availability, error)
	Create(ctx context.Context, userID string, req appointments.CreateRequest) (*appointments.Appointment, error)
	Update(ctx context.Context, id, userID string, req appointments.UpdateRequest) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id, userID, reason string) (*appointments.Appointment, error)
	FindByBookingReference(ctx context.Context, ref, userID string) (*appointments.Appointment, error)
}

// Calendars picks the tenant's calendar adapter.
type Calendars interface {
	ForUser(ctx context.Context, userID string) (calendar.Adapter, *connections.Connection, error)
}

type handlerFunc func(ctx context.Context, userID string, inv Invocation) (string, error)

type Router struct {
	ledger      Ledger
	calendars   Calendars
	directory   AssistantDirectory
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	zone        *time.Location
	assumeLocal bool
	now         func() time.Time

	handlers map[string]handlerFunc
}

type RouterConfig struct {
	Ledger    Ledger
	Calendars Calendars
	Directory AssistantDirectory
	Metrics   *metrics.SchedulingMetrics
	Logger    *logging.Logger

	// Timezone is the IANA zone bare date-times are read in when
	// AssumeLocalTime is set, and the zone times are spoken back in.
	Timezone        string
	AssumeLocalTime bool
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("voice: router requires ledger")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	zone := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("voice: load timezone %q: %w", tz, err)
		}
		zone = loc
	}
	r := &Router{
		ledger:      cfg.Ledger,
		calendars:   cfg.Calendars,
		directory:   cfg.Directory,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		zone:        zone,
		assumeLocal: cfg.AssumeLocalTime,
		now:         func() time.Time { return time.Now().UTC() },
	}
	r.handlers = map[string]handlerFunc{
		FuncCheckAvailability: r.checkAvailability,
		FuncCreateEvent:       r.createEvent,
		FuncReadEvents:        r.readEvents,
		FuncUpdateEvent:       r.updateEvent,
		FuncDeleteEvent:       r.deleteEvent,
		FuncReschedule:        r.reschedule,
		FuncCancel:            r.cancel,
	}
	return r, nil
}

// Dispatch runs one function call and returns the sentence to speak.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) (string, error) {
	ctx, span := voiceTracer.Start(ctx, "voice.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("voice.function", inv.Name),
		attribute.String("voice.tool_call_id", inv.ToolCallID),
	)

	started := time.Now()
	result, err := r.dispatch(ctx, inv)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	r.metrics.ObserveFunctionCall(inv.Name, outcome)
	r.metrics.ObserveWebhookLatency(inv.Name, time.Since(started).Seconds())
	return result, err
}

func (r *Router) dispatch(ctx context.Context, inv Invocation) (string, error) {
	handler, ok := r.handlers[inv.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFunction, inv.Name)
	}
	if inv.Args == nil {
		inv.Args = Arguments{}
	}
	userID, err := r.resolveUserID(ctx, inv.Args, inv.Call)
	if err != nil {
		return "", err
	}
	return handler(ctx, userID, inv)
}

// location is the zone for this call: a valid timezone argument wins.
func (r *Router) location(args Arguments) *time.Location {
	if tz := args.String("timezone", "timeZone"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return r.zone
}

func (r *Router) window(args Arguments, fallback time.Duration) (Window, *time.Location, error) {
	loc := r.location(args)
	var assumed *time.Location
	if r.assumeLocal {
		assumed = loc
	}
	w, err := parseWindow(args, assumed, r.now(), fallback)
	return w, loc, err
}

func (r *Router) checkAvailability(ctx context.Context, userID string, inv Invocation) (string, error) {
	w, loc, err := r.window(inv.Args, defaultDurationMinutes*time.Minute)
	if err != nil {
		return "", err
	}
	avail, err := r.ledger.CheckAvailabilityStrict(ctx, userID, w.Start, w.End, "")
	if err != nil {
		return "", err
	}
	if avail.Available {
		return fmt.Sprintf("%s is available.", spokenTime(w.Start, loc)), nil
	}
	return fmt.Sprintf("Sorry, %s is not available. There %s in that time.",
		spokenTime(w.Start, loc), conflictPhrase(avail.ConflictCount())), nil
}

func (r *Router) createEvent(ctx context.Context, userID string, inv Invocation) (string, error) {
	args := inv.Args
	w, loc, err := r.window(args, defaultDurationMinutes*time.Minute)
	if err != nil {
		return "", err
	}

	name := args.String("customerName", "name", "patientName")
	phone := args.String("customerPhone", "phone", "phoneNumber")
	if inv.Call != nil && inv.Call.Customer != nil {
		if name == "" {
			name = inv.Call.Customer.Name
		}
		if phone == "" {
			phone = inv.Call.Customer.Number
		}
	}

	avail, err := r.ledger.CheckAvailabilityStrict(ctx, userID, w.Start, w.End, "")
	if err != nil {
		return "", err
	}
	if !avail.Available {
		return fmt.Sprintf("Sorry, %s is not available. There %s in that time. Please choose another time.",
			spokenTime(w.Start, loc), conflictPhrase(avail.ConflictCount())), nil
	}

	appt, err := r.ledger.Create(ctx, userID, appointments.CreateRequest{
		CustomerName:   name,
		CustomerPhone:  phone,
		CustomerEmail:  args.String("customerEmail", "email"),
		Title:          args.String("title", "summary"),
		Description:    args.String("description"),
		Notes:          args.String("notes"),
		StartTime:      w.Start,
		EndTime:        w.End,
		Timezone:       loc.String(),
		SyncToCalendar: true,
	})
	if err != nil {
		return "", err
	}
	r.logger.ForUser(userID).Info("voice booking created",
		"booking_reference", appt.BookingReference, "call_id", callID(inv.Call))
	return fmt.Sprintf("Your appointment is booked for %s. Your booking reference is %s. Please save it, you will need it to reschedule or cancel.",
		spokenTime(appt.StartTime, loc), appt.BookingReference), nil
}

func (r *Router) readEvents(ctx context.Context, userID string, inv Invocation) (string, error) {
	adapter, err := r.adapter(ctx, userID)
	if err != nil {
		return "", err
	}
	w, loc, err := r.window(inv.Args, 24*time.Hour)
	if errors.Is(err, ErrMissingTime) {
		now := r.now()
		w, loc, err = Window{Start: now, End: now.AddDate(0, 0, 7)}, r.location(inv.Args), nil
	}
	if err != nil {
		return "", err
	}
	events, err := adapter.ListEvents(ctx, userID, w.Start, w.End)
	if err != nil {
		return "", err
	}

	span := fmt.Sprintf("between %s and %s", spokenTime(w.Start, loc), spokenTime(w.End, loc))
	if len(events) == 0 {
		return "You have no events " + span + ".", nil
	}
	titles := make([]string, 0, 3)
	for _, ev := range events {
		if len(titles) == 3 {
			break
		}
		title := strings.TrimSpace(ev.Summary)
		if title == "" {
			title = "an untitled event"
		}
		if ev.HasTimes() {
			title += " at " + spokenTime(ev.Start, loc)
		}
		titles = append(titles, title)
	}
	noun := "events"
	if len(events) == 1 {
		noun = "event"
	}
	out := fmt.Sprintf("You have %d %s %s: %s", len(events), noun, span, joinSpoken(titles))
	if extra := len(events) - len(titles); extra > 0 {
		out += fmt.Sprintf(", and %d more", extra)
	}
	return out + ".", nil
}

func (r *Router) updateEvent(ctx context.Context, userID string, inv Invocation) (string, error) {
	eventID := inv.Args.String("eventId", "event_id", "id")
	if eventID == "" {
		return "", missingArgument("eventId")
	}
	adapter, err := r.adapter(ctx, userID)
	if err != nil {
		return "", err
	}
	in := calendar.EventInput{
		Summary:     inv.Args.String("title", "summary"),
		Description: inv.Args.String("description"),
		Location:    inv.Args.String("location"),
	}
	w, loc, err := r.window(inv.Args, defaultDurationMinutes*time.Minute)
	switch {
	case err == nil:
		in.Start, in.End, in.Timezone = w.Start, w.End, loc.String()
	case !errors.Is(err, ErrMissingTime):
		return "", err
	}
	if _, err := adapter.UpdateEvent(ctx, userID, eventID, in); err != nil {
		return "", err
	}
	if !in.Start.IsZero() {
		return fmt.Sprintf("The event has been moved to %s.", spokenTime(in.Start, loc)), nil
	}
	return "The event has been updated.", nil
}

func (r *Router) deleteEvent(ctx context.Context, userID string, inv Invocation) (string, error) {
	eventID := inv.Args.String("eventId", "event_id", "id")
	if eventID == "" {
		return "", missingArgument("eventId")
	}
	adapter, err := r.adapter(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := adapter.DeleteEvent(ctx, userID, eventID); err != nil {
		return "", err
	}
	return "The event has been deleted from your calendar.", nil
}

func (r *Router) reschedule(ctx context.Context, userID string, inv Invocation) (string, error) {
	appt, err := r.findBooking(ctx, userID, inv.Args)
	if err != nil {
		return "", err
	}
	if appt.Status == appointments.StatusCancelled {
		return "", fmt.Errorf("%w: %s", errRescheduleCancelled, appt.BookingReference)
	}

	fallback := appt.EndTime.Sub(appt.StartTime)
	w, loc, err := r.window(inv.Args, fallback)
	if err != nil {
		return "", err
	}
	avail, err := r.ledger.CheckAvailabilityStrict(ctx, userID, w.Start, w.End, appt.ID)
	if err != nil {
		return "", err
	}
	if !avail.Available {
		return fmt.Sprintf("Sorry, %s is not available, so appointment %s has not been changed. Please choose another time.",
			spokenTime(w.Start, loc), appt.BookingReference), nil
	}

	updated, err := r.ledger.Update(ctx, appt.ID, userID, appointments.UpdateRequest{
		StartTime:      &w.Start,
		EndTime:        &w.End,
		SyncToCalendar: true,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Appointment %s has been rescheduled to %s.", updated.BookingReference, spokenTime(updated.StartTime, loc)), nil
}

func (r *Router) cancel(ctx context.Context, userID string, inv Invocation) (string, error) {
	appt, err := r.findBooking(ctx, userID, inv.Args)
	if err != nil {
		return "", err
	}
	if appt.Status == appointments.StatusCancelled {
		return fmt.Sprintf("Appointment %s is already cancelled.", appt.BookingReference), nil
	}
	reason := inv.Args.String("reason")
	if reason == "" {
		reason = "Cancelled by caller"
	}
	cancelled, err := r.ledger.Cancel(ctx, appt.ID, userID, reason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Appointment %s on %s has been cancelled.",
		cancelled.BookingReference, spokenTime(cancelled.StartTime, r.location(inv.Args))), nil
}

func (r *Router) findBooking(ctx context.Context, userID string, args Arguments) (*appointments.Appointment, error) {
	ref := args.String("bookingReference", "booking_reference", "reference")
	if ref == "" {
		return nil, missingArgument("bookingReference")
	}
	return r.ledger.FindByBookingReference(ctx, ref, userID)
}

func (r *Router) adapter(ctx context.Context, userID string) (calendar.Adapter, error) {
	if r.calendars == nil {
		return nil, calendar.ErrNotConnected
	}
	adapter, _, err := r.calendars.ForUser(ctx, userID)
	return adapter, err
}

func callID(call *Call) string {
	if call == nil {
		return ""
	}
	return call.ID
}
