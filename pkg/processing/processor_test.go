//nolint:funlen // ok for tests
package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/fleet"
	"github.com/rehud/rehud-delta/testsupport/frames"
)

type memStore struct {
	mu     sync.Mutex
	saved  []*model.LapRecord
	best   *model.LapRecord
	pruned []int
}

func (s *memStore) SaveLap(_ context.Context, rec *model.LapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return nil
}

func (s *memStore) LoadBestLap(_ context.Context, c model.Combination) (*model.LapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == nil || s.best.Combination != c {
		return nil, nil
	}
	return s.best, nil
}

func (s *memStore) ListLaps(_ context.Context, _ model.Combination, _ int) ([]*model.LapRecord, error) {
	return nil, nil
}

func (s *memStore) ListCombinations(_ context.Context) ([]model.Combination, error) {
	return nil, nil
}

func (s *memStore) Prune(_ context.Context, _ model.Combination, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = append(s.pruned, keep)
	return 0, nil
}

func (s *memStore) Close() error { return nil }

func defaultCombination() model.Combination {
	return model.Combination{
		LayoutID:              frames.DefaultLayoutID,
		CarID:                 frames.DefaultModelID,
		ClassPerformanceIndex: frames.DefaultClassIndex,
	}
}

// driveLap feeds a full lap of the main driver, the last frame crosses the line.
func driveLap(p *Processor) *model.FrameResult {
	var res *model.FrameResult
	for _, f := range frames.FullLap("M") {
		res = p.ProcessFrame(f)
	}
	return res
}

func TestProcessor_PersistsMainDriverLap(t *testing.T) {
	store := &memStore{}
	resultChan := make(chan *model.FrameResult, 2000)
	lapChan := make(chan *model.LapEvent, 10)
	p := NewProcessor(
		WithLapStore(store),
		WithKeepLaps(5),
		WithPublishChannels(resultChan, lapChan),
	)
	res := driveLap(p)
	p.Close()

	assert.InDelta(t, 100.0, res.BestLapTime.MustGet(), 1e-9)
	assert.Len(t, resultChan, 1011)
	require.Len(t, lapChan, 2)
	<-lapChan
	ev := <-lapChan
	assert.Equal(t, fleet.DriverKey(frames.Info("M")), ev.DriverKey)
	assert.True(t, ev.MainDriver)
	assert.True(t, ev.ShouldPersistBestLap)
	assert.Equal(t, 2, ev.CompletedLaps)

	require.Len(t, store.saved, 1)
	rec := store.saved[0]
	assert.InDelta(t, 100.0, rec.LapTime, 1e-9)
	assert.True(t, rec.Valid)
	assert.Equal(t, defaultCombination(), rec.Combination)
	assert.True(t, rec.HasTelemetry())
	assert.Len(t, rec.Points, 1000)
	assert.Equal(t, null.From(1), rec.PointsGap)
	assert.Equal(t, []int{5}, store.pruned)
}

func TestProcessor_SkipsPersistInSafeMode(t *testing.T) {
	store := &memStore{}
	p := NewProcessor(WithLapStore(store), WithFleet(fleet.New(fleet.WithSafeMode(true))))
	driveLap(p)
	p.Close()

	require.Len(t, store.saved, 1)
	assert.False(t, store.saved[0].HasTelemetry())
}

func TestProcessor_LoadsBestLap(t *testing.T) {
	points := make([]float64, 1000)
	for i := range points {
		points[i] = float64(i) * 0.1
	}
	store := &memStore{best: &model.LapRecord{
		Combination: defaultCombination(),
		LapTime:     100,
		Valid:       true,
		PointsGap:   null.From(1),
		Points:      points,
	}}
	p := NewProcessor(WithLapStore(store))
	defer p.Close()

	var res *model.FrameResult
	for i := 0; i < 200; i++ {
		res = p.ProcessFrame(frames.New().SimTime(float64(i)).Driver("M", 1, 100).Build())
		if p.Fleet().MainDriver().HasBestLap() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, p.Fleet().MainDriver().HasBestLap())
	res = p.ProcessFrame(frames.New().SimTime(300).Driver("M", 1, 100).Build())
	assert.InDelta(t, 100.0, res.BestLapTime.MustGet(), 1e-9)
}

func TestProcessor_WithoutStore(t *testing.T) {
	p := NewProcessor()
	res := p.ProcessFrame(frames.New().Driver("M", 1, 10).Driver("A", 2, 5).Build())
	p.Close()
	assert.Equal(t, fleet.DriverKey(frames.Info("M")), res.MainDriver)
	assert.Contains(t, res.DeltasBehind, fleet.DriverKey(frames.Info("A")))
}
