// Package sqlite stores laps in a local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aarondl/opt/null"
	_ "modernc.org/sqlite"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/db/migrate"
	"github.com/rehud/rehud-delta/pkg/db/mytypes"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/repository/lap"
	"github.com/rehud/rehud-delta/pkg/storage"
)

type (
	Option func(*Store)
	Store  struct {
		db  *sql.DB
		log *log.Logger
	}
)

var _ storage.LapStore = (*Store)(nil)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY with the persistence worker
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	if err := migrate.MigrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	ret := &Store{
		db:  db,
		log: log.Default().Named("storage.sqlite"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.log.Debug("database opened", log.String("path", path))
	return ret, nil
}

func (s *Store) SaveLap(ctx context.Context, rec *model.LapRecord) error {
	_, err := s.db.ExecContext(ctx, `
insert into lap (id, driver_key, layout_id, car_id, class_performance_index,
  lap_time, valid, points_gap, points, recorded_at)
values (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID.String(), rec.DriverKey,
		rec.Combination.LayoutID, rec.Combination.CarID, rec.Combination.ClassPerformanceIndex,
		lap.LapTimeValue(rec.LapTime).InexactFloat64(), rec.Valid,
		rec.PointsGap, mytypes.Points(rec.Points), rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store lap: %w", err)
	}
	s.log.Debug("lap stored",
		log.String("id", rec.ID.String()),
		log.Float64("lapTime", rec.LapTime),
		log.Bool("telemetry", rec.HasTelemetry()))
	return nil
}

//nolint:whitespace // editor/linter issue
func (s *Store) LoadBestLap(
	ctx context.Context,
	c model.Combination,
) (*model.LapRecord, error) {
	row := s.db.QueryRowContext(ctx, selector+`
where layout_id=?1 and car_id=?2 and class_performance_index=?3
  and valid and points is not null
order by lap_time asc limit 1`,
		c.LayoutID, c.CarID, c.ClassPerformanceIndex)
	ret, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ret, err
}

//nolint:whitespace // editor/linter issue
func (s *Store) ListLaps(
	ctx context.Context,
	c model.Combination,
	limit int,
) ([]*model.LapRecord, error) {
	rows, err := s.db.QueryContext(ctx, selector+`
where layout_id=?1 and car_id=?2 and class_performance_index=?3
order by recorded_at desc limit ?4`,
		c.LayoutID, c.CarID, c.ClassPerformanceIndex, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := make([]*model.LapRecord, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *Store) ListCombinations(ctx context.Context) ([]model.Combination, error) {
	rows, err := s.db.QueryContext(ctx, `
select distinct layout_id, car_id, class_performance_index from lap
order by layout_id, car_id, class_performance_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := make([]model.Combination, 0)
	for rows.Next() {
		var c model.Combination
		if err := rows.Scan(&c.LayoutID, &c.CarID, &c.ClassPerformanceIndex); err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, rows.Err()
}

func (s *Store) Prune(ctx context.Context, c model.Combination, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
delete from lap
where layout_id=?1 and car_id=?2 and class_performance_index=?3
  and id not in (
    select id from lap
    where layout_id=?1 and car_id=?2 and class_performance_index=?3
    order by recorded_at desc limit ?4)
  and id not in (
    select id from lap
    where layout_id=?1 and car_id=?2 and class_performance_index=?3
      and valid and points is not null
    order by lap_time asc limit 1)`,
		c.LayoutID, c.CarID, c.ClassPerformanceIndex, keep)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if deleted > 0 {
		s.log.Debug("pruned laps", log.Any("combination", c), log.Int64("deleted", deleted))
	}
	return deleted, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selector = `select id, driver_key, layout_id, car_id, class_performance_index,
  lap_time, valid, points_gap, points, recorded_at from lap`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*model.LapRecord, error) {
	var item model.LapRecord
	var gap null.Val[int]
	var points mytypes.Points
	if err := row.Scan(&item.ID, &item.DriverKey,
		&item.Combination.LayoutID, &item.Combination.CarID,
		&item.Combination.ClassPerformanceIndex,
		&item.LapTime, &item.Valid, &gap, &points, &item.RecordedAt); err != nil {
		return nil, err
	}
	item.PointsGap = gap
	item.Points = points
	return &item, nil
}
