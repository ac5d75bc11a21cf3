//nolint:funlen,errcheck //ok for this test code
package lap

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/rehud/rehud-delta/pkg/model"
	tcpg "github.com/rehud/rehud-delta/testsupport/tcpostgres"
	"github.com/rehud/rehud-delta/testsupport/testdb"
)

var (
	sampleCombination = model.Combination{LayoutID: 1, CarID: 10, ClassPerformanceIndex: 5}
	baseTime          = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func sampleLap(offset int, lapTime float64, telemetry bool) *model.LapRecord {
	ret := &model.LapRecord{
		ID:          uuid.Must(uuid.NewV7()),
		DriverKey:   "driver_100_1_1",
		Combination: sampleCombination,
		LapTime:     lapTime,
		Valid:       true,
		RecordedAt:  baseTime.Add(time.Duration(offset) * time.Minute),
	}
	if telemetry {
		ret.PointsGap = null.From(1)
		ret.Points = []float64{0, 1.5, 3.25}
	}
	return ret
}

func createSampleEntries(db *pgxpool.Pool, recs ...*model.LapRecord) {
	ctx := context.Background()
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := Create(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("createSampleEntries: %v\n", err)
	}
}

func TestCreateAndLoadBest(t *testing.T) {
	pool := testdb.InitTestDb()
	ctx := context.Background()

	got, err := LoadBest(ctx, pool, sampleCombination)
	assert.NilError(t, err)
	assert.Assert(t, got == nil, "expected no best lap on empty table")

	invalid := sampleLap(0, 80, true)
	invalid.Valid = false
	noTelemetry := sampleLap(1, 85, false)
	best := sampleLap(2, 90.12345, true)
	slower := sampleLap(3, 95, true)
	createSampleEntries(pool, invalid, noTelemetry, best, slower)

	got, err = LoadBest(ctx, pool, sampleCombination)
	assert.NilError(t, err)
	assert.Equal(t, got.ID, best.ID)
	assert.Equal(t, got.LapTime, 90.123)
	assert.Equal(t, got.PointsGap.MustGet(), 1)
	assert.DeepEqual(t, got.Points, []float64{0, 1.5, 3.25})

	other, err := LoadBest(ctx, pool, model.Combination{LayoutID: 2, CarID: 10})
	assert.NilError(t, err)
	assert.Assert(t, other == nil)
}

func TestCreateDuplicate(t *testing.T) {
	pool := testdb.InitTestDb()
	rec := sampleLap(0, 90, false)
	createSampleEntries(pool, rec)
	err := Create(context.Background(), pool, rec)
	assert.Assert(t, err != nil)
}

func TestListRecentAndCombinations(t *testing.T) {
	pool := testdb.InitTestDb()
	ctx := context.Background()
	recs := []*model.LapRecord{}
	for i := range 5 {
		recs = append(recs, sampleLap(i, 90+float64(i), false))
	}
	otherCar := sampleLap(10, 70, false)
	otherCar.Combination.CarID = 11
	createSampleEntries(pool, append(recs, otherCar)...)

	got, err := ListRecent(ctx, pool, sampleCombination, 3)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[0].ID, recs[4].ID)
	assert.Equal(t, got[2].ID, recs[2].ID)
	assert.Assert(t, !got[0].PointsGap.IsValue())

	combs, err := ListCombinations(ctx, pool)
	assert.NilError(t, err)
	assert.DeepEqual(t, combs, []model.Combination{
		sampleCombination,
		{LayoutID: 1, CarID: 11, ClassPerformanceIndex: 5},
	})
}

func TestPrune(t *testing.T) {
	type args struct {
		keep int
	}
	tests := []struct {
		name        string
		args        args
		wantDeleted int64
		wantLeft    int
	}{
		{name: "keep all", args: args{keep: 10}, wantDeleted: 0, wantLeft: 6},
		// best lap is the oldest one and survives
		{name: "keep 2 plus best", args: args{keep: 2}, wantDeleted: 3, wantLeft: 3},
		{name: "keep none but best", args: args{keep: 0}, wantDeleted: 5, wantLeft: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := testdb.InitTestDb()
			defer tcpg.ClearAllTables(pool)
			ctx := context.Background()
			best := sampleLap(0, 80, true)
			createSampleEntries(pool, best)
			for i := 1; i < 6; i++ {
				createSampleEntries(pool, sampleLap(i, 90+float64(i), true))
			}

			deleted, err := Prune(ctx, pool, sampleCombination, tt.args.keep)
			assert.NilError(t, err)
			assert.Equal(t, deleted, tt.wantDeleted)

			left, err := ListRecent(ctx, pool, sampleCombination, 100)
			assert.NilError(t, err)
			assert.Equal(t, len(left), tt.wantLeft)

			stillBest, err := LoadBest(ctx, pool, sampleCombination)
			assert.NilError(t, err)
			assert.Equal(t, stillBest.ID, best.ID)
		})
	}
}

func TestDeleteByID(t *testing.T) {
	pool := testdb.InitTestDb()
	rec := sampleLap(0, 90, false)
	createSampleEntries(pool, rec)

	num, err := DeleteByID(context.Background(), pool, rec.ID)
	assert.NilError(t, err)
	assert.Equal(t, num, 1)

	num, err = DeleteByID(context.Background(), pool, rec.ID)
	assert.NilError(t, err)
	assert.Equal(t, num, 0)
}
