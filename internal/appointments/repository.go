package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	GetByReference(ctx context.Context, ref string) (*Appointment, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	CountCreatedInYear(ctx context.Context, year int) (int, error)
	Update(ctx context.Context, appt *Appointment) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error)
	// FindOverlapping returns the user's SCHEDULED/CONFIRMED appointments
	// overlapping [start, end), skipping excludeID when set.
	FindOverlapping(ctx context.Context, userID string, start, end time.Time, excludeID string) ([]*Appointment, error)
	// ListLinked returns active appointments mirrored to the provider.
	ListLinked(ctx context.Context, userID string, provider connections.Provider) ([]*Appointment, error)
	// ExternalEventIDs returns every event id already linked for the provider, in any status.
	ExternalEventIDs(ctx context.Context, userID string, provider connections.Provider) (map[string]struct{}, error)
	// CountByStatus counts by status for a user (all users when empty), optionally bounded on start time.
	CountByStatus(ctx context.Context, userID string, from, to *time.Time) (map[Status]int, error)
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Appointment), now: time.Now}
}

func clone(a *Appointment) *Appointment {
	c := *a
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.BookingReference == appt.BookingReference {
			return ErrDuplicateReference
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	r.items[appt.ID] = clone(appt)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) GetByReference(_ context.Context, ref string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.items {
		if a.BookingReference == ref {
			return clone(a), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	_, err := r.GetByReference(ctx, ref)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *MemoryRepository) CountCreatedInYear(_ context.Context, year int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.items {
		if a.CreatedAt.Year() == year {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Update(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[appt.ID]; !ok {
		return ErrNotFound
	}
	appt.UpdatedAt = r.now().UTC()
	r.items[appt.ID] = clone(appt)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]*Appointment, int, error) {
	r.mu.RLock()
	var matched []*Appointment
	for _, a := range r.items {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.From != nil && a.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.StartTime.After(*filter.To) {
			continue
		}
		matched = append(matched, clone(a))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.Before(matched[j].StartTime) })
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Appointment{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *MemoryRepository) FindOverlapping(_ context.Context, userID string, start, end time.Time, excludeID string) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.items {
		if a.UserID != userID || a.ID == excludeID || !a.Status.Active() {
			continue
		}
		if a.Overlaps(start, end) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *MemoryRepository) ListLinked(_ context.Context, userID string, provider connections.Provider) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.items {
		if a.UserID == userID && a.Provider == provider && a.ExternalEventID != "" && a.Status.Active() {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (r *MemoryRepository) ExternalEventIDs(_ context.Context, userID string, provider connections.Provider) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{})
	for _, a := range r.items {
		if a.UserID == userID && a.Provider == provider && a.ExternalEventID != "" {
			out[a.ExternalEventID] = struct{}{}
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountByStatus(_ context.Context, userID string, from, to *time.Time) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Status]int)
	for _, a := range r.items {
		if userID != "" && a.UserID != userID {
			continue
		}
		if from != nil && a.StartTime.Before(*from) {
			continue
		}
		if to != nil && a.StartTime.After(*to) {
			continue
		}
		out[a.Status]++
	}
	return out, nil
}
