//nolint:whitespace //can't make both the linter and editor happy :(
package lap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aarondl/opt/null"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rehud/rehud-delta/pkg/db/mytypes"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/repository"
)

func Create(ctx context.Context, conn repository.Querier, rec *model.LapRecord) error {
	_, err := conn.Exec(ctx, `
insert into lap (id, driver_key, layout_id, car_id, class_performance_index,
  lap_time, valid, points_gap, points, recorded_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.DriverKey,
		rec.Combination.LayoutID, rec.Combination.CarID, rec.Combination.ClassPerformanceIndex,
		LapTimeValue(rec.LapTime), rec.Valid, rec.PointsGap, mytypes.Points(rec.Points),
		rec.RecordedAt)
	return err
}

// LoadBest returns the fastest valid lap with telemetry, nil if there is none.
func LoadBest(
	ctx context.Context,
	conn repository.Querier,
	c model.Combination,
) (*model.LapRecord, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`%s
where layout_id=$1 and car_id=$2 and class_performance_index=$3
  and valid and points is not null
order by lap_time asc limit 1`, selector),
		c.LayoutID, c.CarID, c.ClassPerformanceIndex)
	item, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ListRecent returns the latest laps of the combination, newest first.
func ListRecent(
	ctx context.Context,
	conn repository.Querier,
	c model.Combination,
	limit int,
) ([]*model.LapRecord, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`%s
where layout_id=$1 and car_id=$2 and class_performance_index=$3
order by recorded_at desc limit $4`, selector),
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

func ListCombinations(ctx context.Context, conn repository.Querier) ([]model.Combination, error) {
	rows, err := conn.Query(ctx, `
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

// Prune deletes all laps of the combination except the keep most recent ones
// and the best lap. Returns number of rows deleted.
func Prune(
	ctx context.Context,
	conn repository.Querier,
	c model.Combination,
	keep int,
) (int64, error) {
	cmdTag, err := conn.Exec(ctx, `
delete from lap
where layout_id=$1 and car_id=$2 and class_performance_index=$3
  and id not in (
    select id from lap
    where layout_id=$1 and car_id=$2 and class_performance_index=$3
    order by recorded_at desc limit $4)
  and id not in (
    select id from lap
    where layout_id=$1 and car_id=$2 and class_performance_index=$3
      and valid and points is not null
    order by lap_time asc limit 1)`,
		c.LayoutID, c.CarID, c.ClassPerformanceIndex, keep)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteByID(ctx context.Context, conn repository.Querier, id fmt.Stringer) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from lap where id=$1", id.String())
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// LapTimeValue rounds lap times to milliseconds.
func LapTimeValue(lapTime float64) decimal.Decimal {
	return decimal.NewFromFloat(lapTime).Round(3)
}

// little helper
const selector = string(`select id, driver_key, layout_id, car_id, class_performance_index,
  lap_time, valid, points_gap, points, recorded_at from lap`)

func scan(row pgx.Row) (*model.LapRecord, error) {
	var item model.LapRecord
	var lapTime decimal.Decimal
	var gap null.Val[int]
	var points mytypes.Points
	if err := row.Scan(&item.ID, &item.DriverKey,
		&item.Combination.LayoutID, &item.Combination.CarID,
		&item.Combination.ClassPerformanceIndex,
		&lapTime, &item.Valid, &gap, &points, &item.RecordedAt); err != nil {
		return nil, err
	}
	item.LapTime = lapTime.InexactFloat64()
	item.PointsGap = gap
	item.Points = points
	return &item, nil
}
