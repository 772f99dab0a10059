package repository

import (
	"context"
	"fmt"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/bolt"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/sqlite"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

type Options struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	BoltPath    string
	// Migrate applies the embedded postgres migrations after connecting.
	Migrate bool
}

// Open returns the ledger storage selected by opts.Driver.
func Open(ctx context.Context, opts Options) (ports.LedgerRepository, error) {
	switch opts.Driver {
	case DriverPostgres:
		db, err := postgres.Open(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		return postgres.NewLedgerRepository(db), nil
	case DriverSQLite:
		return sqlite.Open(ctx, opts.SQLitePath)
	case DriverBolt:
		store, err := bolt.Open(opts.BoltPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
