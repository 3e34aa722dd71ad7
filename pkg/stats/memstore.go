package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore keeps statistics in process memory. It is safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	players map[string]map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{players: make(map[string]map[string]string)}
}

func (m *MemStore) AllStats(ctx context.Context, player string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memstore: all stats: %w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range m.players[NormalizePlayer(player)] {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) Stat(ctx context.Context, player, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("memstore: stat: %w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.players[NormalizePlayer(player)][NormalizeKey(key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemStore) SetStat(ctx context.Context, player, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore: set stat: %w: %w", ErrUnavailable, err)
	}
	p, k := NormalizePlayer(player), NormalizeKey(key)
	if p == "" || k == "" {
		return fmt.Errorf("memstore: set stat: empty player or key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.players[p] == nil {
		m.players[p] = make(map[string]string)
	}
	m.players[p][k] = value
	return nil
}

func (m *MemStore) DeleteStats(ctx context.Context, player string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore: delete stats: %w: %w", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, NormalizePlayer(player))
	return nil
}

// Players returns the identity of every player with recorded stats, sorted.
func (m *MemStore) Players(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memstore: players: %w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.players))
	for p := range m.players {
		names = append(names, p)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (m *MemStore) Close() error { return nil }
