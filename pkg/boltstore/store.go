// Package boltstore persists player statistics in a bbolt database.
package boltstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/crystal-mush/profstats/pkg/stats"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database. bbolt serializes writers and allows
// concurrent readers, so Store needs no locking of its own.
type Store struct {
	bolt *bbolt.DB
	now  func() time.Time
}

var _ stats.ReadWriter = (*Store)(nil)

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketStats, bucketPlayers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); v != nil && keyToInt(v) != schemaVersion {
			return fmt.Errorf("schema version %d, want %d", keyToInt(v), schemaVersion)
		}
		return meta.Put(keyVersion, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

func unavailable(op string, err error) error {
	return fmt.Errorf("boltstore: %s: %w: %w", op, stats.ErrUnavailable, err)
}

// AllStats returns every statistic recorded for player.
func (s *Store) AllStats(ctx context.Context, player string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("all stats", err)
	}
	out := make(map[string]string)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketStats).Bucket(playerKey(stats.NormalizePlayer(player)))
		if pb == nil {
			return nil
		}
		return pb.ForEach(func(k, v []byte) error {
			r, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("decode %q: %w", string(k), err)
			}
			out[string(k)] = r.Value
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("all stats", err)
	}
	return out, nil
}

// Stat returns one statistic, or stats.ErrNotFound.
func (s *Store) Stat(ctx context.Context, player, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("stat", err)
	}
	var (
		value string
		found bool
	)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketStats).Bucket(playerKey(stats.NormalizePlayer(player)))
		if pb == nil {
			return nil
		}
		data := pb.Get([]byte(stats.NormalizeKey(key)))
		if data == nil {
			return nil
		}
		r, err := decodeRecord(data)
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		value, found = r.Value, true
		return nil
	})
	if err != nil {
		return "", unavailable("stat", err)
	}
	if !found {
		return "", stats.ErrNotFound
	}
	return value, nil
}

// SetStat writes one statistic in a single transaction.
func (s *Store) SetStat(ctx context.Context, player, key, value string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set stat", err)
	}
	p, k := stats.NormalizePlayer(player), stats.NormalizeKey(key)
	if p == "" || k == "" {
		return fmt.Errorf("boltstore: set stat: empty player or key")
	}
	data, err := encodeRecord(&record{Value: value, Updated: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("boltstore: encode %s/%s: %w", p, k, err)
	}
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		pb, err := tx.Bucket(bucketStats).CreateBucketIfNotExists(playerKey(p))
		if err != nil {
			return err
		}
		names := tx.Bucket(bucketPlayers)
		if names.Get(playerKey(p)) == nil {
			if err := names.Put(playerKey(p), []byte(player)); err != nil {
				return err
			}
		}
		return pb.Put([]byte(k), data)
	})
	if err != nil {
		return unavailable("set stat", err)
	}
	return nil
}

// DeleteStats removes every statistic of player.
func (s *Store) DeleteStats(ctx context.Context, player string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete stats", err)
	}
	p := playerKey(stats.NormalizePlayer(player))
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if b.Bucket(p) != nil {
			if err := b.DeleteBucket(p); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketPlayers).Delete(p)
	})
	if err != nil {
		return unavailable("delete stats", err)
	}
	return nil
}

// Players returns the display names of every player with recorded stats,
// sorted by identity.
func (s *Store) Players(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("players", err)
	}
	var names []string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayers).ForEach(func(k, v []byte) error {
			names = append(names, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("players", err)
	}
	sort.Slice(names, func(i, j int) bool {
		return stats.NormalizePlayer(names[i]) < stats.NormalizePlayer(names[j])
	})
	return names, nil
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}
