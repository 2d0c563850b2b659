package appointments

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refStoreStub struct {
	count    int
	existing map[string]bool
}

func (s *refStoreStub) CountCreatedInYear(context.Context, int) (int, error) { return s.count, nil }
func (s *refStoreStub) ReferenceExists(_ context.Context, ref string) (bool, error) {
	return s.existing[ref], nil
}

func TestReferenceGeneratorUsesYearAndCount(t *testing.T) {
	gen := NewReferenceGenerator(&refStoreStub{count: 41, existing: map[string]bool{}})
	gen.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	ref, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BK-2025-000042", ref)
}

func TestReferenceGeneratorSuffixesOnCollision(t *testing.T) {
	store := &refStoreStub{count: 0, existing: map[string]bool{
		"BK-2025-000001":    true,
		"BK-2025-000001007": true,
	}}
	gen := NewReferenceGenerator(store)
	gen.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	suffixes := []int{7, 7, 42}
	gen.suffix = func() int {
		v := suffixes[0]
		suffixes = suffixes[1:]
		return v
	}

	ref, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BK-2025-000001042", ref)
}

func TestReferenceGeneratorGivesUp(t *testing.T) {
	store := &refStoreStub{existing: map[string]bool{"BK-2025-000001": true, "BK-2025-000001001": true}}
	gen := NewReferenceGenerator(store)
	gen.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	gen.suffix = func() int { return 1 }
	gen.attempts = 3

	_, err := gen.Next(context.Background())
	assert.ErrorIs(t, err, ErrReferenceExhausted)
}

// Deleting appointments lowers the yearly count, so the sequence collides
// with references still in use; live references must stay unique.
func TestCreatedReferencesNeverCollide(t *testing.T) {
	svc, repo := newTestService(nil)
	ctx := context.Background()
	pattern := regexp.MustCompile(`^BK-2025-\d{6}(\d{3})?$`)

	seen := map[string]bool{}
	for i := 0; i < 60; i++ {
		start := fixedNow.Add(time.Duration(i+1) * 2 * time.Hour)
		appt, err := svc.Create(ctx, "u1", validRequest(start))
		require.NoError(t, err)
		require.Regexp(t, pattern, appt.BookingReference)
		require.False(t, seen[appt.BookingReference], "duplicate %s", appt.BookingReference)
		seen[appt.BookingReference] = true

		if i%3 == 0 {
			require.NoError(t, repo.Delete(ctx, appt.ID))
			delete(seen, appt.BookingReference)
		}
	}
}
