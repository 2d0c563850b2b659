package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("scheduling.internal.appointments")

const insertAttempts = 3

// Calendars resolves calendar adapters. *calendar.Registry implements it.
type Calendars interface {
	ForUser(ctx context.Context, userID string) (calendar.Adapter, *connections.Connection, error)
	Adapter(provider connections.Provider) (calendar.Adapter, error)
}

// Service is the appointment ledger. Methods taking a userID scope the
// lookup to that tenant; an empty userID skips the ownership check (admin).
type Service struct {
	repo      Repository
	refs      *ReferenceGenerator
	calendars Calendars
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService wires the ledger. calendars may be nil when no provider is configured.
func NewService(repo Repository, calendars Calendars, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:      repo,
		refs:      NewReferenceGenerator(repo),
		calendars: calendars,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.refs.now = func() time.Time { return s.now() }
	return s
}

// SetClock replaces the service time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) startSpan(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	ctx, span := appointmentsTracer.Start(ctx, name)
	span.SetAttributes(attribute.String("scheduling.user_id", userID))
	return ctx, span
}

// CheckAvailability asks the ledger first. Only when it has no conflict is the
// user's calendar consulted; calendar failures fall back to the ledger answer.
func (s *Service) CheckAvailability(ctx context.Context, userID string, start, end time.Time, excludeID string) (*Availability, error) {
	return s.checkAvailability(ctx, userID, start, end, excludeID, false)
}

// CheckAvailabilityStrict is CheckAvailability for callers that must not hear
// "free" when the calendar could not be asked: calendar failures are returned.
// A user with no connected calendar is still answered from the ledger alone.
func (s *Service) CheckAvailabilityStrict(ctx context.Context, userID string, start, end time.Time, excludeID string) (*Availability, error) {
	return s.checkAvailability(ctx, userID, start, end, excludeID, true)
}

func (s *Service) checkAvailability(ctx context.Context, userID string, start, end time.Time, excludeID string, strict bool) (*Availability, error) {
	ctx, span := s.startSpan(ctx, "appointments.check_availability", userID)
	defer span.End()
	span.SetAttributes(attribute.Bool("scheduling.strict", strict))

	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}
	conflicts, err := s.repo.FindOverlapping(ctx, userID, start, end, excludeID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(conflicts) > 0 {
		span.SetAttributes(attribute.Int("scheduling.conflicts", len(conflicts)))
		return &Availability{Available: false, Conflicts: conflicts}, nil
	}

	out := &Availability{Available: true}
	if s.calendars == nil {
		return out, nil
	}
	adapter, _, err := s.calendars.ForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, calendar.ErrNotConnected) {
			return out, nil
		}
		if strict {
			span.RecordError(err)
			return nil, err
		}
		s.logger.ForUser(userID).Warn("calendar lookup failed during availability check", "error", err)
		return out, nil
	}
	remote, err := adapter.CheckAvailability(ctx, userID, start, end)
	if err != nil {
		if strict {
			span.RecordError(err)
			return nil, err
		}
		s.logger.ForUser(userID).Warn("calendar availability check failed, using ledger result",
			"provider", adapter.Provider().Slug(), "error", err)
		return out, nil
	}

	ownEvent := ""
	if excludeID != "" {
		if excluded, err := s.repo.Get(ctx, excludeID); err == nil {
			ownEvent = excluded.ExternalEventID
		}
	}
	for _, ev := range remote.Conflicts {
		if ownEvent != "" && ev.ID == ownEvent {
			continue
		}
		out.CalendarConflicts = append(out.CalendarConflicts, ev)
	}
	out.Available = len(out.CalendarConflicts) == 0
	return out, nil
}

func validateCustomer(name, phone string) error {
	if strings.TrimSpace(name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// Create books a new SCHEDULED appointment. Calendar mirroring never blocks creation.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointments.create", userID)
	defer span.End()

	if err := validateCustomer(req.CustomerName, req.CustomerPhone); err != nil {
		return nil, err
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	now := s.now()
	if req.StartTime.Before(now) {
		return nil, ErrStartInPast
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	appt := &Appointment{
		UserID:        userID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Title:         req.Title,
		Description:   req.Description,
		Notes:         req.Notes,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		Timezone:      timezone,
		Status:        StatusScheduled,
		CreatedAt:     now,
	}

	if err := s.insertWithReference(ctx, appt, func() {
		if req.SyncToCalendar {
			s.mirrorCreate(ctx, appt, req.Provider)
		}
	}); err != nil {
		span.RecordError(err)
		if appt.Linked() {
			// Left behind, the mirrored event would be imported by the next sync.
			s.mirrorDelete(ctx, appt)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("scheduling.booking_reference", appt.BookingReference))
	s.logger.ForUser(userID).Info("appointment created",
		"appointment_id", appt.ID, "booking_reference", appt.BookingReference, "linked", appt.Linked())
	return appt, nil
}

// insertWithReference assigns a booking reference, runs beforeInsert once,
// and retries with a fresh reference when the unique constraint fires.
func (s *Service) insertWithReference(ctx context.Context, appt *Appointment, beforeInsert func()) error {
	var err error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		appt.BookingReference, err = s.refs.Next(ctx)
		if err != nil {
			return err
		}
		if attempt == 0 && beforeInsert != nil {
			beforeInsert()
		}
		err = s.repo.Create(ctx, appt)
		if !errors.Is(err, ErrDuplicateReference) {
			break
		}
		s.logger.ForUser(appt.UserID).Warn("booking reference taken concurrently, regenerating", "booking_reference", appt.BookingReference)
		if appt.Linked() {
			s.mirrorUpdate(ctx, appt)
		}
	}
	return err
}

// ImportRequest describes a provider event adopted into the ledger.
type ImportRequest struct {
	Provider        connections.Provider
	ExternalEventID string
	CustomerName    string
	CustomerPhone   string
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
}

// ImportFromCalendar records a provider event as a CONFIRMED appointment. No
// provider write happens; the event already exists upstream.
func (s *Service) ImportFromCalendar(ctx context.Context, userID string, req ImportRequest) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointments.import", userID)
	defer span.End()

	now := s.now()
	appt := &Appointment{
		UserID:           userID,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		Title:            req.Title,
		Description:      req.Description,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		Timezone:         "UTC",
		Status:           StatusConfirmed,
		Provider:         req.Provider,
		ExternalEventID:  req.ExternalEventID,
		CalendarSyncedAt: &now,
		CreatedAt:        now,
	}
	if err := s.insertWithReference(ctx, appt, nil); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

// Get returns one appointment, enforcing ownership when userID is set.
func (s *Service) Get(ctx context.Context, id, userID string) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && appt.UserID != userID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// FindByBookingReference looks up a reference; a different owner yields ErrForbidden.
func (s *Service) FindByBookingReference(ctx context.Context, ref, userID string) (*Appointment, error) {
	appt, err := s.repo.GetByReference(ctx, strings.ToUpper(strings.TrimSpace(ref)))
	if err != nil {
		return nil, err
	}
	if userID != "" && appt.UserID != userID {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	return s.repo.List(ctx, filter)
}

// Update applies a partial change. Linked events are re-synced best effort;
// unlinked active appointments are mirrored when SyncToCalendar is set.
func (s *Service) Update(ctx context.Context, id, userID string, req UpdateRequest) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointments.update", userID)
	defer span.End()

	appt, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if req.changesTime() && appt.Status == StatusCancelled {
		return nil, ErrCancelled
	}

	if req.CustomerName != nil {
		appt.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.CustomerPhone != nil {
		appt.CustomerPhone = strings.TrimSpace(*req.CustomerPhone)
	}
	if req.CustomerEmail != nil {
		appt.CustomerEmail = strings.TrimSpace(*req.CustomerEmail)
	}
	if req.Title != nil {
		appt.Title = *req.Title
	}
	if req.Description != nil {
		appt.Description = *req.Description
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}
	if req.StartTime != nil {
		appt.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		appt.EndTime = req.EndTime.UTC()
	}
	if req.Timezone != nil && strings.TrimSpace(*req.Timezone) != "" {
		appt.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if err := validateCustomer(appt.CustomerName, appt.CustomerPhone); err != nil {
		return nil, err
	}
	if !appt.StartTime.Before(appt.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	if req.StartTime != nil && appt.StartTime.Before(s.now()) {
		return nil, ErrStartInPast
	}

	cancelling := false
	if req.Status != nil && *req.Status != appt.Status {
		if !appt.Status.CanTransitionTo(*req.Status) {
			if appt.Status == StatusCancelled {
				return nil, ErrCancelled
			}
			return nil, ErrInvalidTransition
		}
		appt.Status = *req.Status
		if appt.Status == StatusCancelled {
			cancelling = true
			now := s.now()
			appt.CancelledAt = &now
		}
	}

	switch {
	case cancelling && appt.Linked():
		s.mirrorDelete(ctx, appt)
	case appt.Linked():
		s.mirrorUpdate(ctx, appt)
	case req.SyncToCalendar && appt.Status.Active():
		s.mirrorCreate(ctx, appt, req.Provider)
	}

	if err := s.repo.Update(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.ForUser(appt.UserID).Info("appointment updated", "appointment_id", appt.ID, "status", appt.Status)
	return appt, nil
}

// Cancel marks the appointment CANCELLED and best-effort deletes its event.
// Cancelling twice is a no-op that keeps the original CancelledAt.
func (s *Service) Cancel(ctx context.Context, id, userID, reason string) (*Appointment, error) {
	ctx, span := s.startSpan(ctx, "appointments.cancel", userID)
	defer span.End()

	appt, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	appt.Status = StatusCancelled
	appt.CancellationReason = strings.TrimSpace(reason)
	appt.CancelledAt = &now
	if appt.Linked() {
		s.mirrorDelete(ctx, appt)
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.ForUser(appt.UserID).Info("appointment cancelled", "appointment_id", appt.ID, "booking_reference", appt.BookingReference)
	return appt, nil
}

// Confirm flips a SCHEDULED appointment to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, id, userID string) (*Appointment, error) {
	appt, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusConfirmed {
		return appt, nil
	}
	if appt.Status == StatusCancelled {
		return nil, ErrCancelled
	}
	if !appt.Status.CanTransitionTo(StatusConfirmed) {
		return nil, ErrInvalidTransition
	}
	appt.Status = StatusConfirmed
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// Delete physically removes an appointment (admin only at the HTTP layer).
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	appt, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if appt.Linked() && appt.Status.Active() {
		s.mirrorDelete(ctx, appt)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.ForUser(appt.UserID).Info("appointment deleted", "appointment_id", id, "booking_reference", appt.BookingReference)
	return nil
}

// Stats counts appointments by status. With days > 0 the window is
// [start of today - days, end of today]. Admins see every tenant.
func (s *Service) Stats(ctx context.Context, userID string, role tenancy.Role, days int) (*Stats, error) {
	scope := userID
	if role.IsAdmin() {
		scope = ""
	}
	out := &Stats{}
	var from, to *time.Time
	if days > 0 {
		now := s.now()
		y, m, d := now.Date()
		startOfToday := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		f := startOfToday.AddDate(0, 0, -days)
		t := startOfToday.AddDate(0, 0, 1).Add(-time.Nanosecond)
		from, to = &f, &t
		out.From, out.To = from, to
	}

	counts, err := s.repo.CountByStatus(ctx, scope, from, to)
	if err != nil {
		return nil, err
	}
	out.Scheduled = counts[StatusScheduled]
	out.Confirmed = counts[StatusConfirmed]
	out.Completed = counts[StatusCompleted]
	out.Cancelled = counts[StatusCancelled]
	out.Total = out.Scheduled + out.Confirmed + out.Completed
	return out, nil
}

// ListLinked returns active appointments linked to the provider.
func (s *Service) ListLinked(ctx context.Context, userID string, provider connections.Provider) ([]*Appointment, error) {
	return s.repo.ListLinked(ctx, userID, provider)
}

// KnownEventIDs returns every provider event id already linked for the user.
func (s *Service) KnownEventIDs(ctx context.Context, userID string, provider connections.Provider) (map[string]struct{}, error) {
	return s.repo.ExternalEventIDs(ctx, userID, provider)
}

// MarkDeletedUpstream cancels an appointment whose event vanished from the
// provider. The provider is not called.
func (s *Service) MarkDeletedUpstream(ctx context.Context, appt *Appointment, reason string) error {
	if appt.Status == StatusCancelled {
		return nil
	}
	now := s.now()
	appt.Status = StatusCancelled
	appt.CancellationReason = reason
	appt.CancelledAt = &now
	return s.repo.Update(ctx, appt)
}

func (s *Service) adapterFor(ctx context.Context, userID string, provider connections.Provider) (calendar.Adapter, error) {
	if s.calendars == nil {
		return nil, calendar.ErrNotConnected
	}
	if provider != "" {
		return s.calendars.Adapter(provider)
	}
	adapter, _, err := s.calendars.ForUser(ctx, userID)
	return adapter, err
}

func (s *Service) mirrorCreate(ctx context.Context, appt *Appointment, provider connections.Provider) {
	log := s.logger.ForUser(appt.UserID)
	adapter, err := s.adapterFor(ctx, appt.UserID, provider)
	if err != nil {
		log.Info("calendar mirror skipped", "reason", err)
		return
	}
	ev, err := adapter.CreateEvent(ctx, appt.UserID, appt.eventInput())
	s.metrics.ObserveCalendarMirror(adapter.Provider().Slug(), "create", err)
	if err != nil {
		log.Warn("calendar event creation failed, continuing without sync", "provider", adapter.Provider().Slug(), "error", err)
		return
	}
	now := s.now()
	appt.Provider = adapter.Provider()
	appt.ExternalEventID = ev.ID
	appt.CalendarSyncedAt = &now
}

func (s *Service) mirrorUpdate(ctx context.Context, appt *Appointment) {
	adapter, err := s.adapterFor(ctx, appt.UserID, appt.Provider)
	if err != nil {
		return
	}
	_, err = adapter.UpdateEvent(ctx, appt.UserID, appt.ExternalEventID, appt.eventInput())
	s.metrics.ObserveCalendarMirror(appt.Provider.Slug(), "update", err)
	if err != nil {
		s.logger.ForUser(appt.UserID).Warn("calendar event update failed", "event_id", appt.ExternalEventID, "error", err)
		return
	}
	now := s.now()
	appt.CalendarSyncedAt = &now
}

func (s *Service) mirrorDelete(ctx context.Context, appt *Appointment) {
	adapter, err := s.adapterFor(ctx, appt.UserID, appt.Provider)
	if err != nil {
		return
	}
	err = adapter.DeleteEvent(ctx, appt.UserID, appt.ExternalEventID)
	s.metrics.ObserveCalendarMirror(appt.Provider.Slug(), "delete", err)
	if err != nil {
		s.logger.ForUser(appt.UserID).Warn("calendar event deletion failed", "event_id", appt.ExternalEventID, "error", err)
		return
	}
	now := s.now()
	appt.CalendarSyncedAt = &now
}
