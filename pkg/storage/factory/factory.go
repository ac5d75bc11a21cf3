// Package factory creates the lap store matching a database url.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/db/migrate"
	database "github.com/rehud/rehud-delta/pkg/db/postgres"
	"github.com/rehud/rehud-delta/pkg/storage"
	"github.com/rehud/rehud-delta/pkg/storage/postgres"
	"github.com/rehud/rehud-delta/pkg/storage/sqlite"
)

type (
	Option  func(*options)
	options struct {
		poolOpts []database.PoolConfigOption
		migrate  bool
		log      *log.Logger
	}
)

func WithPoolOptions(opts ...database.PoolConfigOption) Option {
	return func(o *options) {
		o.poolOpts = append(o.poolOpts, opts...)
	}
}

// WithMigration applies pending migrations to a postgres database before use.
// SQLite databases are always migrated on open.
func WithMigration() Option {
	return func(o *options) {
		o.migrate = true
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Open returns the LapStore for dbURL. Supported schemes are
// postgresql:// and sqlite://
func Open(ctx context.Context, dbURL string, opts ...Option) (storage.LapStore, error) {
	o := &options{log: log.Default()}
	for _, opt := range opts {
		opt(o)
	}
	switch {
	case strings.HasPrefix(dbURL, migrate.SchemePostgres):
		if o.migrate {
			if err := migrate.MigrateDb(dbURL); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPool(ctx, dbURL, o.poolOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return postgres.New(pool, postgres.WithLogger(o.log.Named("storage.postgres"))), nil
	case strings.HasPrefix(dbURL, migrate.SchemeSQLite):
		path := strings.TrimPrefix(dbURL, migrate.SchemeSQLite)
		if path == "" {
			return nil, fmt.Errorf("missing sqlite path in %s", dbURL)
		}
		store, err := sqlite.Open(path, sqlite.WithLogger(o.log.Named("storage.sqlite")))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database url: %s", dbURL)
	}
}
