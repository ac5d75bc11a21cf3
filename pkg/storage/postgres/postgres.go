// Package postgres stores laps in a PostgreSQL database.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/repository/lap"
	"github.com/rehud/rehud-delta/pkg/storage"
)

type (
	Option func(*Store)
	Store  struct {
		pool *pgxpool.Pool
		log  *log.Logger
	}
)

var _ storage.LapStore = (*Store)(nil)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	ret := &Store{
		pool: pool,
		log:  log.Default().Named("storage.postgres"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Store) SaveLap(ctx context.Context, rec *model.LapRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lap.Create(ctx, tx, rec); err != nil {
			return err
		}
		s.log.Debug("lap stored",
			log.String("id", rec.ID.String()),
			log.Float64("lapTime", rec.LapTime),
			log.Bool("telemetry", rec.HasTelemetry()))
		return nil
	})
}

//nolint:whitespace // editor/linter issue
func (s *Store) LoadBestLap(
	ctx context.Context,
	c model.Combination,
) (*model.LapRecord, error) {
	return lap.LoadBest(ctx, s.pool, c)
}

//nolint:whitespace // editor/linter issue
func (s *Store) ListLaps(
	ctx context.Context,
	c model.Combination,
	limit int,
) ([]*model.LapRecord, error) {
	return lap.ListRecent(ctx, s.pool, c, limit)
}

func (s *Store) ListCombinations(ctx context.Context) ([]model.Combination, error) {
	return lap.ListCombinations(ctx, s.pool)
}

func (s *Store) Prune(ctx context.Context, c model.Combination, keep int) (int64, error) {
	var deleted int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		deleted, err = lap.Prune(ctx, tx, c, keep)
		return err
	})
	if deleted > 0 {
		s.log.Debug("pruned laps", log.Any("combination", c), log.Int64("deleted", deleted))
	}
	return deleted, err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
