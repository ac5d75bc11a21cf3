// Package summary computes statistics over stored laps.
package summary

import (
	"context"
	"sort"

	"github.com/aarondl/opt/null"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/storage"
)

// Summary describes the stored laps of a combination.
// Statistics are computed over valid laps only.
type Summary struct {
	Combination model.Combination `json:"combination" yaml:"combination"`
	Laps        int               `json:"laps" yaml:"laps"`
	ValidLaps   int               `json:"validLaps" yaml:"validLaps"`
	BestLapTime null.Val[float64] `json:"bestLapTime" yaml:"-"`
	// lap time of the stored best lap with telemetry
	ReferenceLapTime null.Val[float64] `json:"referenceLapTime" yaml:"-"`
	Mean             null.Val[float64] `json:"mean" yaml:"-"`
	StdDev           null.Val[float64] `json:"stdDev" yaml:"-"`
	Median           null.Val[float64] `json:"median" yaml:"-"`
}

type Service struct {
	store storage.LapStore
}

func NewService(store storage.LapStore) *Service {
	return &Service{store: store}
}

// Compute summarizes the laps of all stored combinations.
func (s *Service) Compute(ctx context.Context) ([]*Summary, error) {
	combs, err := s.store.ListCombinations(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*Summary, 0, len(combs))
	for _, c := range combs {
		item, err := s.ComputeCombination(ctx, c)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, nil
}

//nolint:whitespace // editor/linter issue
func (s *Service) ComputeCombination(
	ctx context.Context,
	c model.Combination,
) (*Summary, error) {
	laps, err := s.store.ListLaps(ctx, c, storage.MaxEntries+1)
	if err != nil {
		return nil, err
	}
	ret := FromLaps(c, laps)
	best, err := s.store.LoadBestLap(ctx, c)
	if err != nil {
		return nil, err
	}
	if best != nil {
		ret.ReferenceLapTime = null.From(best.LapTime)
	}
	return ret, nil
}

// FromLaps computes the statistics of laps.
func FromLaps(c model.Combination, laps []*model.LapRecord) *Summary {
	ret := &Summary{Combination: c, Laps: len(laps)}
	times := lo.FilterMap(laps, func(item *model.LapRecord, _ int) (float64, bool) {
		return item.LapTime, item.Valid
	})
	ret.ValidLaps = len(times)
	if len(times) == 0 {
		return ret
	}
	sort.Float64s(times)
	ret.BestLapTime = null.From(floats.Min(times))
	ret.Median = null.From(stat.Quantile(0.5, stat.Empirical, times, nil))
	if len(times) == 1 {
		ret.Mean = null.From(times[0])
		return ret
	}
	mean, std := stat.MeanStdDev(times, nil)
	ret.Mean = null.From(mean)
	ret.StdDev = null.From(std)
	return ret
}
