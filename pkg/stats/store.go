// Package stats defines the per-player statistics store contract shared by
// every backend, plus an in-memory implementation used by tests and dev setups.
package stats

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Store.Stat when the player or the statistic
	// is absent. Callers cannot tell the two cases apart.
	ErrNotFound = errors.New("stats: not found")

	// ErrUnavailable wraps any connectivity or I/O failure of the backing store.
	ErrUnavailable = errors.New("stats: store unavailable")
)

// Store is the read side of the statistics store.
type Store interface {
	// AllStats returns every statistic recorded for player. A player with no
	// stats yields an empty, non-nil map.
	AllStats(ctx context.Context, player string) (map[string]string, error)

	// Stat returns a single statistic, or ErrNotFound.
	Stat(ctx context.Context, player, key string) (string, error)
}

// Writer records statistics using the same addressing as Store.
type Writer interface {
	SetStat(ctx context.Context, player, key, value string) error
	DeleteStats(ctx context.Context, player string) error
}

// ReadWriter is a store that supports both lookups and writes.
type ReadWriter interface {
	Store
	Writer
}

// NormalizePlayer maps a player name to its storage identity.
// Lookups are case-insensitive and exact.
func NormalizePlayer(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeKey maps a statistic key to its storage form.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsUnavailable reports whether err signals a store outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
