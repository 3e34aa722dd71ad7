// Package sqlstore persists player statistics in a SQLite3 database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/crystal-mush/profstats/pkg/stats"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stats (
	player     TEXT NOT NULL,
	stat       TEXT NOT NULL,
	value      TEXT NOT NULL,
	display    TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (player, stat)
)`

// Store manages a SQLite3 connection pool. The mutex only guards the pool
// pointer against Close and Reconnect; queries never hold it.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	timeout time.Duration
}

var _ stats.ReadWriter = (*Store)(nil)

// Open opens a SQLite3 database with WAL mode and a busy timeout, and creates
// the stats table if needed. timeout bounds every query.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := openDB(path, timeout)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, timeout: timeout}, nil
}

// dsn sets per-connection pragmas so every pooled connection gets them.
func dsn(path string, timeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	return "file:" + path + "?" + q.Encode()
}

func openDB(path string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path, timeout))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema in %s: %w", path, err)
	}
	return db, nil
}

// Close closes the SQLite3 database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *Store) Path() string { return s.path }

var errNotConfigured = errors.New("sql store closed")

func unavailable(op string, err error) error {
	return fmt.Errorf("sqlstore: %s: %w: %w", op, stats.ErrUnavailable, err)
}

// conn returns the current pool. The lock is not held while the caller
// queries; a pool closed mid-query surfaces as a query error.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotConfigured
	}
	return s.db, nil
}

// AllStats returns every statistic recorded for player.
func (s *Store) AllStats(ctx context.Context, player string) (map[string]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, unavailable("all stats", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT stat, value FROM stats WHERE player = ?`, stats.NormalizePlayer(player))
	if err != nil {
		return nil, unavailable("all stats", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, unavailable("all stats", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("all stats", err)
	}
	return out, nil
}

// Stat returns one statistic, or stats.ErrNotFound.
func (s *Store) Stat(ctx context.Context, player, key string) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", unavailable("stat", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var v string
	err = db.QueryRowContext(ctx, `SELECT value FROM stats WHERE player = ? AND stat = ?`,
		stats.NormalizePlayer(player), stats.NormalizeKey(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", stats.ErrNotFound
	}
	if err != nil {
		return "", unavailable("stat", err)
	}
	return v, nil
}

// SetStat inserts or replaces one statistic. Atomicity is delegated to SQLite.
func (s *Store) SetStat(ctx context.Context, player, key, value string) error {
	p, k := stats.NormalizePlayer(player), stats.NormalizeKey(key)
	if p == "" || k == "" {
		return fmt.Errorf("sqlstore: set stat: empty player or key")
	}
	db, err := s.conn()
	if err != nil {
		return unavailable("set stat", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = db.ExecContext(ctx, `
INSERT INTO stats (player, stat, value, display, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player, stat) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p, k, value, player, time.Now().UTC().Unix())
	if err != nil {
		return unavailable("set stat", err)
	}
	return nil
}

// DeleteStats removes every statistic of player.
func (s *Store) DeleteStats(ctx context.Context, player string) error {
	db, err := s.conn()
	if err != nil {
		return unavailable("delete stats", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, `DELETE FROM stats WHERE player = ?`, stats.NormalizePlayer(player)); err != nil {
		return unavailable("delete stats", err)
	}
	return nil
}

// Players returns the display names of every player with recorded stats,
// sorted by identity.
func (s *Store) Players(ctx context.Context) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, unavailable("players", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT player, MIN(display) FROM stats GROUP BY player ORDER BY player`)
	if err != nil {
		return nil, unavailable("players", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var id, display string
		if err := rows.Scan(&id, &display); err != nil {
			return nil, unavailable("players", err)
		}
		names = append(names, display)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("players", err)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return stats.NormalizePlayer(names[i]) < stats.NormalizePlayer(names[j])
	})
	return names, nil
}

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (s *Store) Checkpoint() error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Reconnect closes and reopens the database connection.
func (s *Store) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	db, err := openDB(s.path, s.timeout)
	if err != nil {
		return fmt.Errorf("reconnecting: %w", err)
	}
	s.db = db
	return nil
}
