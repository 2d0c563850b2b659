package connections

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists calendar connections.
type Store interface {
	Upsert(ctx context.Context, conn *Connection) (*Connection, error)
	Get(ctx context.Context, userID string, provider Provider) (*Connection, error)
	ListByUser(ctx context.Context, userID string) ([]*Connection, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)
	UpdateAccessToken(ctx context.Context, userID string, provider Provider, accessToken string, expiry time.Time) error
	Deactivate(ctx context.Context, userID string, provider Provider) error
	MarkSynced(ctx context.Context, userID string, provider Provider, at time.Time) error
	Delete(ctx context.Context, userID string, provider Provider) error
}

// FirstActive returns the user's first active connection in Precedence order.
func FirstActive(ctx context.Context, store Store, userID string) (*Connection, error) {
	for _, provider := range Precedence {
		conn, err := store.Get(ctx, userID, provider)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if conn.IsActive {
			return conn, nil
		}
	}
	return nil, ErrNotFound
}

// ActiveProviders lists the providers the user has an active connection for, in precedence order.
func ActiveProviders(ctx context.Context, store Store, userID string) ([]Provider, error) {
	conns, err := store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make(map[Provider]bool, len(conns))
	for _, c := range conns {
		if c.IsActive {
			active[c.Provider] = true
		}
	}
	var out []Provider
	for _, p := range Precedence {
		if active[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryKey struct {
	userID   string
	provider Provider
}

// MemoryStore is an in-memory Store used by tests and local development.
// Upsert always reactivates, matching the Postgres ON CONFLICT behaviour.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[memoryKey]*Connection
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conns: make(map[memoryKey]*Connection),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Upsert(_ context.Context, conn *Connection) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{conn.UserID, conn.Provider}
	now := s.now()
	stored := *conn
	if existing, ok := s.conns[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.LastSyncedAt = existing.LastSyncedAt
	} else {
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
	}
	stored.IsActive = true
	stored.UpdatedAt = now
	s.conns[key] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, userID string, provider Provider) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[memoryKey{userID, provider}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *conn
	return &out, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Connection
	for key, conn := range s.conns {
		if key.userID == userID {
			c := *conn
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *MemoryStore) ListActiveUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for key, conn := range s.conns {
		if conn.IsActive && !seen[key.userID] {
			seen[key.userID] = true
			out = append(out, key.userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) UpdateAccessToken(_ context.Context, userID string, provider Provider, accessToken string, expiry time.Time) error {
	return s.mutate(userID, provider, func(c *Connection) {
		c.AccessToken = accessToken
		c.TokenExpiry = expiry
	})
}

func (s *MemoryStore) Deactivate(_ context.Context, userID string, provider Provider) error {
	return s.mutate(userID, provider, func(c *Connection) { c.IsActive = false })
}

func (s *MemoryStore) MarkSynced(_ context.Context, userID string, provider Provider, at time.Time) error {
	return s.mutate(userID, provider, func(c *Connection) {
		synced := at
		c.LastSyncedAt = &synced
	})
}

func (s *MemoryStore) Delete(_ context.Context, userID string, provider Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{userID, provider}
	if _, ok := s.conns[key]; !ok {
		return ErrNotFound
	}
	delete(s.conns, key)
	return nil
}

func (s *MemoryStore) mutate(userID string, provider Provider, fn func(*Connection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[memoryKey{userID, provider}]
	if !ok {
		return ErrNotFound
	}
	fn(conn)
	conn.UpdatedAt = s.now()
	return nil
}
