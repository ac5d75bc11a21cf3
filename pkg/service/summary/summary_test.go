package summary

import (
	"context"
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehud/rehud-delta/pkg/model"
)

var testComb = model.Combination{LayoutID: 1, CarID: 2, ClassPerformanceIndex: 3}

func laps(valid bool, times ...float64) []*model.LapRecord {
	ret := []*model.LapRecord{}
	for _, t := range times {
		ret = append(ret, &model.LapRecord{Combination: testComb, LapTime: t, Valid: valid})
	}
	return ret
}

func TestFromLaps(t *testing.T) {
	tests := []struct {
		name      string
		laps      []*model.LapRecord
		wantValid int
		wantBest  null.Val[float64]
		wantMean  null.Val[float64]
		wantStd   null.Val[float64]
		wantMed   null.Val[float64]
	}{
		{name: "no laps"},
		{
			name:      "only invalid",
			laps:      laps(false, 90, 91),
			wantValid: 0,
		},
		{
			name:      "single lap",
			laps:      laps(true, 90),
			wantValid: 1,
			wantBest:  null.From(90.0),
			wantMean:  null.From(90.0),
			wantMed:   null.From(90.0),
		},
		{
			name:      "mixed",
			laps:      append(laps(true, 94, 90, 92), laps(false, 80)...),
			wantValid: 3,
			wantBest:  null.From(90.0),
			wantMean:  null.From(92.0),
			wantStd:   null.From(2.0),
			wantMed:   null.From(92.0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromLaps(testComb, tt.laps)
			assert.Equal(t, len(tt.laps), got.Laps)
			assert.Equal(t, tt.wantValid, got.ValidLaps)
			assertVal(t, tt.wantBest, got.BestLapTime)
			assertVal(t, tt.wantMean, got.Mean)
			assertVal(t, tt.wantStd, got.StdDev)
			assertVal(t, tt.wantMed, got.Median)
		})
	}
}

func assertVal(t *testing.T, want, got null.Val[float64]) {
	t.Helper()
	require.Equal(t, want.IsValue(), got.IsValue())
	if want.IsValue() {
		assert.InDelta(t, want.MustGet(), got.MustGet(), 1e-9)
	}
}

type fakeStore struct {
	laps map[model.Combination][]*model.LapRecord
}

func (f *fakeStore) SaveLap(context.Context, *model.LapRecord) error { return nil }

func (f *fakeStore) LoadBestLap(_ context.Context, c model.Combination) (*model.LapRecord, error) {
	for _, l := range f.laps[c] {
		if l.HasTelemetry() {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListLaps(_ context.Context, c model.Combination, _ int) ([]*model.LapRecord, error) {
	return f.laps[c], nil
}

func (f *fakeStore) ListCombinations(context.Context) ([]model.Combination, error) {
	ret := []model.Combination{}
	for c := range f.laps {
		ret = append(ret, c)
	}
	return ret, nil
}

func (f *fakeStore) Prune(context.Context, model.Combination, int) (int64, error) { return 0, nil }
func (f *fakeStore) Close() error { return nil }

func TestServiceCompute(t *testing.T) {
	withTelemetry := &model.LapRecord{
		Combination: testComb, LapTime: 89.5, Valid: true,
		PointsGap: null.From(1), Points: []float64{0, 1},
	}
	store := &fakeStore{laps: map[model.Combination][]*model.LapRecord{
		testComb: append(laps(true, 91, 93), withTelemetry),
	}}
	got, err := NewService(store).Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].ValidLaps)
	assertVal(t, null.From(89.5), got[0].BestLapTime)
	assertVal(t, null.From(89.5), got[0].ReferenceLapTime)
}
