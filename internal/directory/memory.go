package directory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/social"
)

// Memory is a map-backed Directory for tests and local demos.
type Memory struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	users map[string]social.User
	edges map[string][]social.ConnectionEdge
}

// MemoryOption configures a Memory directory.
type MemoryOption func(*Memory)

// WithMemoryClock injects the clock used to default zero activity times.
func WithMemoryClock(c clockwork.Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory returns an empty in-memory directory.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock: clockwork.NewRealClock(),
		users: make(map[string]social.User),
		edges: make(map[string][]social.ConnectionEdge),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) UpsertUser(ctx context.Context, u social.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	u = u.Normalized(m.clock.Now())
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return nil
}

func (m *Memory) AddConnection(ctx context.Context, viewerID string, edge social.ConnectionEdge) error {
	if viewerID == "" {
		return fmt.Errorf("add connection: missing viewer id")
	}
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("add connection: %w", err)
	}
	edge = edge.Normalized()
	m.mu.Lock()
	m.edges[viewerID] = append(m.edges[viewerID], edge)
	m.mu.Unlock()
	return nil
}

func (m *Memory) User(ctx context.Context, id string) (social.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return social.User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u, nil
}

func (m *Memory) Users(ctx context.Context) ([]social.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]social.User, 0, len(m.users))
	for _, id := range slices.Sorted(maps.Keys(m.users)) {
		out = append(out, m.users[id])
	}
	return out, nil
}

func (m *Memory) ConnectionsOf(ctx context.Context, viewerID string) ([]social.ConnectionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.edges[viewerID]), nil
}

func (m *Memory) Close() error { return nil }
