package server

import (
	"context"
	"fmt"
	"time"

	"github.com/crystal-mush/profstats/pkg/boltstore"
	"github.com/crystal-mush/profstats/pkg/sqlstore"
	"github.com/crystal-mush/profstats/pkg/stats"
)

// StatStore is a stat backend the server and statctl can own.
type StatStore interface {
	stats.ReadWriter
	Players(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ StatStore = (*boltstore.Store)(nil)
	_ StatStore = (*sqlstore.Store)(nil)
	_ StatStore = (*stats.MemStore)(nil)
)

// OpenStore opens the backend named by driver.
func OpenStore(driver, path string, timeout time.Duration) (StatStore, error) {
	switch driver {
	case DriverBolt:
		s, err := boltstore.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := sqlstore.Open(path, timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return stats.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrInvalidConf, driver)
	}
}
