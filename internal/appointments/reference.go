package appointments

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const defaultSuffixAttempts = 20

type referenceStore interface {
	CountCreatedInYear(ctx context.Context, year int) (int, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
}

// ReferenceGenerator issues BK-YYYY-NNNNNN booking references. The sequence is
// count-based and may race; a random three digit suffix resolves collisions.
type ReferenceGenerator struct {
	store    referenceStore
	now      func() time.Time
	suffix   func() int
	attempts int
}

func NewReferenceGenerator(store referenceStore) *ReferenceGenerator {
	return &ReferenceGenerator{
		store:    store,
		now:      time.Now,
		suffix:   func() int { return rand.IntN(1000) },
		attempts: defaultSuffixAttempts,
	}
}

// Next returns a reference that did not exist at the time of the check.
func (g *ReferenceGenerator) Next(ctx context.Context) (string, error) {
	year := g.now().Year()
	count, err := g.store.CountCreatedInYear(ctx, year)
	if err != nil {
		return "", fmt.Errorf("appointments: count references: %w", err)
	}
	base := fmt.Sprintf("BK-%d-%06d", year, count+1)

	exists, err := g.store.ReferenceExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("appointments: check reference: %w", err)
	}
	if !exists {
		return base, nil
	}

	for i := 0; i < g.attempts; i++ {
		candidate := fmt.Sprintf("%s%03d", base, g.suffix())
		exists, err := g.store.ReferenceExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("appointments: check reference: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrReferenceExhausted
}
