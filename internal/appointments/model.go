// Package appointments is the appointment ledger: the system of record for
// bookings, their booking references and their calendar linkage.
package appointments

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// ActiveStatuses are the statuses that occupy a time slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Active reports whether the appointment still blocks its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransitionTo allows forward moves only. Staying put is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCompleted || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Appointment is one booking in the ledger.
type Appointment struct {
	ID                 string               `json:"id"`
	UserID             string               `json:"userId"`
	BookingReference   string               `json:"bookingReference"`
	CustomerName       string               `json:"customerName"`
	CustomerPhone      string               `json:"customerPhone"`
	CustomerEmail      string               `json:"customerEmail,omitempty"`
	Title              string               `json:"title,omitempty"`
	Description        string               `json:"description,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	StartTime          time.Time            `json:"startTime"`
	EndTime            time.Time            `json:"endTime"`
	Timezone           string               `json:"timezone"`
	Status             Status               `json:"status"`
	CancellationReason string               `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time           `json:"cancelledAt,omitempty"`
	Provider           connections.Provider `json:"provider,omitempty"`
	ExternalEventID    string               `json:"externalEventId,omitempty"`
	CalendarSyncedAt   *time.Time           `json:"calendarSyncedAt,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// Linked reports whether the appointment mirrors a provider event.
func (a *Appointment) Linked() bool {
	return a.Provider != "" && a.ExternalEventID != ""
}

// Overlaps is the half-open interval test: existing.start < end && existing.end > start.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

func (a *Appointment) eventInput() calendar.EventInput {
	summary := a.Title
	if summary == "" {
		summary = "Appointment: " + a.CustomerName
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Customer: %s\nPhone: %s\n", a.CustomerName, a.CustomerPhone)
	if a.CustomerEmail != "" {
		fmt.Fprintf(&desc, "Email: %s\n", a.CustomerEmail)
	}
	if a.BookingReference != "" {
		fmt.Fprintf(&desc, "Booking reference: %s\n", a.BookingReference)
	}
	if a.Description != "" {
		desc.WriteString("\n" + a.Description)
	}
	return calendar.EventInput{
		Summary:     summary,
		Description: strings.TrimSpace(desc.String()),
		Start:       a.StartTime,
		End:         a.EndTime,
		Timezone:    a.Timezone,
	}
}

// CreateRequest is the input to Service.Create.
type CreateRequest struct {
	CustomerName   string               `json:"customerName"`
	CustomerPhone  string               `json:"customerPhone"`
	CustomerEmail  string               `json:"customerEmail,omitempty"`
	Title          string               `json:"title,omitempty"`
	Description    string               `json:"description,omitempty"`
	Notes          string               `json:"notes,omitempty"`
	StartTime      time.Time            `json:"startTime"`
	EndTime        time.Time            `json:"endTime"`
	Timezone       string               `json:"timezone,omitempty"`
	SyncToCalendar bool                 `json:"syncToCalendar,omitempty"`
	Provider       connections.Provider `json:"provider,omitempty"`
}

// UpdateRequest is a partial mutation; nil fields are left unchanged.
type UpdateRequest struct {
	CustomerName   *string              `json:"customerName,omitempty"`
	CustomerPhone  *string              `json:"customerPhone,omitempty"`
	CustomerEmail  *string              `json:"customerEmail,omitempty"`
	Title          *string              `json:"title,omitempty"`
	Description    *string              `json:"description,omitempty"`
	Notes          *string              `json:"notes,omitempty"`
	StartTime      *time.Time           `json:"startTime,omitempty"`
	EndTime        *time.Time           `json:"endTime,omitempty"`
	Timezone       *string              `json:"timezone,omitempty"`
	Status         *Status              `json:"status,omitempty"`
	SyncToCalendar bool                 `json:"syncToCalendar,omitempty"`
	Provider       connections.Provider `json:"provider,omitempty"`
}

func (r UpdateRequest) changesTime() bool {
	return r.StartTime != nil || r.EndTime != nil
}

// ListFilter narrows List. An empty UserID lists every tenant (admin only).
type ListFilter struct {
	UserID string
	Status Status
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Stats summarizes appointments by status. Total excludes cancelled ones.
type Stats struct {
	Total     int        `json:"total"`
	Scheduled int        `json:"scheduled"`
	Confirmed int        `json:"confirmed"`
	Completed int        `json:"completed"`
	Cancelled int        `json:"cancelled"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// Availability is the ledger's answer for a time window.
type Availability struct {
	Available bool           `json:"available"`
	Conflicts []*Appointment `json:"conflicts,omitempty"`
	// CalendarConflicts are provider events found when the ledger had no conflict.
	CalendarConflicts []calendar.Event `json:"calendarConflicts,omitempty"`
}

// ConflictCount counts conflicts from both sources.
func (a *Availability) ConflictCount() int {
	return len(a.Conflicts) + len(a.CalendarConflicts)
}
