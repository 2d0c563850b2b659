// Package reconcile keeps the appointment ledger and the users' provider
// calendars eventually consistent.
package reconcile

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

var reconcileTracer = otel.Tracer("scheduling.internal.reconcile")

// windowMonths is how far back and forward provider events are compared.
const windowMonths = 3

var phonePattern = regexp.MustCompile(`Phone:\s*(.+)`)

// Ledger is the slice of the appointment service the engine needs.
// *appointments.Service implements it.
type Ledger interface {
	KnownEventIDs(ctx context.Context, userID string, provider connections.Provider) (map[string]struct{}, error)
	ListLinked(ctx context.Context, userID string, provider connections.Provider) ([]*appointments.Appointment, error)
	ImportFromCalendar(ctx context.Context, userID string, req appointments.ImportRequest) (*appointments.Appointment, error)
	MarkDeletedUpstream(ctx context.Context, appt *appointments.Appointment, reason string) error
}

// Adapters resolves a provider adapter. *calendar.Registry implements it.
type Adapters interface {
	Adapter(provider connections.Provider) (calendar.Adapter, error)
}

// Result counts what one sync changed. Synced is the number of linked
// appointments checked against the provider.
type Result struct {
	Imported  int `json:"imported"`
	Synced    int `json:"synced"`
	Cancelled int `json:"cancelled"`
}

func (r *Result) add(o *Result) {
	r.Imported += o.Imported
	r.Synced += o.Synced
	r.Cancelled += o.Cancelled
}

type Engine struct {
	ledger   Ledger
	adapters Adapters
	store    connections.Store
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewEngine(ledger Ledger, adapters Adapters, store connections.Store, m *metrics.SchedulingMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		ledger:   ledger,
		adapters: adapters,
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sync runs the import pass and then the cancellation pass for one provider.
// Running it twice without provider changes imports and cancels nothing.
func (e *Engine) Sync(ctx context.Context, userID string, provider connections.Provider) (*Result, error) {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.user_id", userID),
		attribute.String("scheduling.provider", provider.Slug()),
	)

	adapter, err := e.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}
	now := e.now()
	from, to := now.AddDate(0, -windowMonths, 0), now.AddDate(0, windowMonths, 0)

	events, err := adapter.ListEvents(ctx, userID, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	known, err := e.ledger.KnownEventIDs(ctx, userID, provider)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	log := e.logger.ForUser(userID).With("provider", provider.Slug())
	res := &Result{}
	current := make(map[string]struct{}, len(events))
	for _, ev := range events {
		current[ev.ID] = struct{}{}
		if !ev.HasTimes() {
			continue
		}
		if _, ok := known[ev.ID]; ok {
			continue
		}
		if _, err := e.ledger.ImportFromCalendar(ctx, userID, importRequest(provider, ev)); err != nil {
			log.Warn("failed to import calendar event", "event_id", ev.ID, "error", err)
			continue
		}
		known[ev.ID] = struct{}{}
		res.Imported++
	}

	linked, err := e.ledger.ListLinked(ctx, userID, provider)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	reason := "Deleted from " + provider.DisplayName()
	for _, appt := range linked {
		// Events outside the listed window were never fetched.
		if appt.StartTime.Before(from) || !appt.StartTime.Before(to) {
			continue
		}
		res.Synced++
		if _, ok := current[appt.ExternalEventID]; ok {
			continue
		}
		if err := e.ledger.MarkDeletedUpstream(ctx, appt, reason); err != nil {
			log.Warn("failed to cancel appointment deleted upstream", "appointment_id", appt.ID, "error", err)
			continue
		}
		res.Cancelled++
	}

	e.metrics.ObserveReconcile(provider.Slug(), res.Imported, res.Cancelled)
	span.SetAttributes(
		attribute.Int("scheduling.imported", res.Imported),
		attribute.Int("scheduling.cancelled", res.Cancelled),
	)
	log.Info("calendar reconciled", "imported", res.Imported, "synced", res.Synced, "cancelled", res.Cancelled)
	return res, nil
}

// SyncUser syncs every active connection of the user and sums the results.
// A provider that fails is skipped; the error is returned only when no
// provider could be synced.
func (e *Engine) SyncUser(ctx context.Context, userID string) (*Result, error) {
	providers, err := connections.ActiveProviders(ctx, e.store, userID)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, calendar.ErrNotConnected
	}

	total := &Result{}
	var firstErr error
	synced := 0
	for _, provider := range providers {
		res, err := e.Sync(ctx, userID, provider)
		if err != nil {
			e.logger.ForUser(userID).Warn("calendar sync failed", "provider", provider.Slug(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.add(res)
		synced++
		if err := e.store.MarkSynced(ctx, userID, provider, e.now()); err != nil && !errors.Is(err, connections.ErrNotFound) {
			e.logger.ForUser(userID).Warn("failed to stamp last sync", "provider", provider.Slug(), "error", err)
		}
	}
	if synced == 0 {
		return nil, firstErr
	}
	return total, nil
}

func importRequest(provider connections.Provider, ev calendar.Event) appointments.ImportRequest {
	name := strings.TrimSpace(ev.Summary)
	if name == "" {
		name = "Calendar event"
	}
	return appointments.ImportRequest{
		Provider:        provider,
		ExternalEventID: ev.ID,
		CustomerName:    name,
		CustomerPhone:   extractPhone(ev.Description),
		Title:           ev.Summary,
		Description:     ev.Description,
		StartTime:       ev.Start,
		EndTime:         ev.End,
	}
}

// extractPhone pulls the value of a "Phone: ..." line out of an event description.
func extractPhone(description string) string {
	m := phonePattern.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
