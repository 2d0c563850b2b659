package calendar

import (
	"context"
	"errors"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// Registry maps providers to adapters and picks the one a user's
// operations should go to.
type Registry struct {
	adapters map[connections.Provider]Adapter
	store    connections.Store
}

func NewRegistry(store connections.Store, adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[connections.Provider]Adapter, len(adapters)), store: store}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Adapter returns the adapter for a provider.
func (r *Registry) Adapter(provider connections.Provider) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, ErrProviderDisabled
	}
	return a, nil
}

// ForUser returns the adapter of the user's first active connection in
// connections.Precedence order, or ErrNotConnected.
func (r *Registry) ForUser(ctx context.Context, userID string) (Adapter, *connections.Connection, error) {
	conn, err := connections.FirstActive(ctx, r.store, userID)
	if errors.Is(err, connections.ErrNotFound) {
		return nil, nil, ErrNotConnected
	}
	if err != nil {
		return nil, nil, err
	}
	a, err := r.Adapter(conn.Provider)
	if err != nil {
		return nil, nil, err
	}
	return a, conn, nil
}

// Connections exposes the registry's connection store.
func (r *Registry) Connections() connections.Store { return r.store }
