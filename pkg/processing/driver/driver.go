// Package driver keeps the lap state of a single car.
package driver

import (
	"errors"
	"math"

	"github.com/aarondl/opt/null"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/timeline"
)

const (
	// DistanceGap is the bucket width in meters.
	DistanceGap = 1
	// MinLapTime in seconds. Shorter laps are treated as corrupt timing data.
	MinLapTime = 10.0
	// PositionJumpThreshold in meters of forward movement between two samples.
	PositionJumpThreshold = 150
	// NegativeProgressThreshold in meters of backward movement between two samples.
	NegativeProgressThreshold = 30
	// Epsilon absorbs delta jitter around zero (seconds).
	Epsilon = 0.005
	// MaxFinishLineSkew is the max allowed gap between the finish line crossing
	// time and the first sample of a lap (seconds).
	MaxFinishLineSkew = 2.0
)

var ErrNoBestLap = errors.New("no best lap")

type Driver struct {
	key         string
	trackLength float64
	log         *log.Logger

	current        *timeline.Timeline
	bestLap        *timeline.Timeline
	sessionBestLap *timeline.Timeline

	currentLapValid bool
	bestLapValid    bool

	bestLapTime           null.Val[float64]
	sessionBestLapTime    null.Val[float64]
	crossedFinishLineTime null.Val[float64]

	// result of the most recent EndLap, null if the lap was rejected
	lastLapTime  null.Val[float64]
	lastLapValid bool

	attemptedLoadingBestLap bool
	lapEnded                bool
}

type Option func(*Driver)

func WithLogger(l *log.Logger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

func New(key string, trackLength float64, opts ...Option) *Driver {
	ret := &Driver{
		key:             key,
		trackLength:     trackLength,
		log:             log.Default().Named("processing.driver"),
		current:         timeline.NewForTrack(trackLength, DistanceGap),
		currentLapValid: true,
		bestLapValid:    true,
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.log = ret.log.With(log.String("driver", key))
	return ret
}

func (d *Driver) Key() string { return d.key }

func (d *Driver) TrackLength() float64 { return d.trackLength }

func (d *Driver) CurrentLapValid() bool { return d.currentLapValid }

func (d *Driver) BestLapValid() bool { return d.bestLapValid }

func (d *Driver) HasBestLap() bool { return d.bestLap != nil }

// Current exposes the timeline of the running lap.
func (d *Driver) Current() *timeline.Timeline { return d.current }

func (d *Driver) BestLapTime() null.Val[float64] {
	return d.bestLapTime
}

func (d *Driver) SessionBestLapTime() null.Val[float64] {
	return d.sessionBestLapTime
}

// LastLap returns the lap time and validity of the lap closed by the most
// recent EndLap call. The time is null if that lap was not accepted.
func (d *Driver) LastLap() (lapTime null.Val[float64], valid bool) {
	return d.lastLapTime, d.lastLapValid
}

// ClearTempData drops all per lap progress. Best laps are kept.
func (d *Driver) ClearTempData() {
	d.crossedFinishLineTime = null.Val[float64]{}
	d.SetLapInvalid()
	d.current = timeline.NewForTrack(d.trackLength, DistanceGap)
}

func (d *Driver) SetLapInvalid() {
	d.currentLapValid = false
}

func (d *Driver) CrossedFinishLine() bool {
	return d.crossedFinishLineTime.IsValue()
}

// CurrentLaptime returns the time since the last finish line crossing.
func (d *Driver) CurrentLaptime(simTime float64) null.Val[float64] {
	crossed, ok := d.crossedFinishLineTime.Get()
	if !ok {
		return null.Val[float64]{}
	}
	return null.From(simTime - crossed)
}

// MarkAsMain is called when this driver becomes the reference driver.
// It returns true exactly once if a persisted best lap should be loaded.
func (d *Driver) MarkAsMain() bool {
	if !d.attemptedLoadingBestLap && (d.bestLap == nil || !d.bestLapValid) {
		d.attemptedLoadingBestLap = true
		return true
	}
	return false
}

// AddDataPoint feeds a new sample into the current lap.
// It returns true if a position jump was detected.
func (d *Driver) AddDataPoint(distance, simTime float64) bool {
	defer func() { d.lapEnded = false }()

	newIndex := int(math.Floor(distance / DistanceGap))
	if !d.current.IsIndexSet() {
		d.current.SetIndex(newIndex)
		d.current.Set(simTime)
		return false
	}
	lastIndex := d.current.Index()
	if !d.lapEnded && newIndex < lastIndex {
		if (lastIndex-newIndex)*DistanceGap > NegativeProgressThreshold {
			d.log.Warn("negative progress",
				log.Int("gap", (newIndex-lastIndex)*DistanceGap),
				log.Int("lastIndex", lastIndex),
				log.Int("newIndex", newIndex))
			d.ClearTempData()
			return true
		}
		return false
	}
	steps := d.current.FillDataGap(newIndex, simTime)
	return steps > PositionJumpThreshold/DistanceGap
}

// LapEnd describes a finish line crossing.
type LapEnd struct {
	SimTime float64
	// lap time reported by the simulation, derived from the samples if null or negative
	LapTime       null.Val[float64]
	CompletedLaps int
	Session       model.SessionKind
	SafeMode      bool
	Main          bool
}

// EndLap closes the current lap and updates best and session best laps.
// It returns true if the new best lap should be persisted.
//
//nolint:funlen // state machine
func (d *Driver) EndLap(arg LapEnd) (shouldPersist bool) {
	defer func() { d.crossedFinishLineTime = null.From(arg.SimTime) }()

	d.log.Debug("ending lap",
		log.Float64p("lapTime", arg.LapTime.Ptr()),
		log.Int("completedLaps", arg.CompletedLaps))

	d.lastLapTime = null.Val[float64]{}
	d.lastLapValid = false
	if !d.current.IsIndexSet() {
		return false
	}
	if d.current.Index() == 0 {
		d.log.Error("point for new lap added before previous lap ended")
		d.SetLapInvalid()
		return false
	}
	d.current.FillDataGap(-1, arg.SimTime)
	d.lapEnded = true

	if d.CrossedFinishLine() && (arg.Session != model.SessionRace || arg.CompletedLaps > 1) {
		lapTime, ok := d.resolveLapTime(arg)
		if !ok {
			d.SetLapInvalid()
			return false
		}
		if lapTime < MinLapTime {
			d.log.Warn("lap time too low", log.Float64("lapTime", lapTime))
			d.SetLapInvalid()
			return false
		}
		d.lastLapTime = null.From(lapTime)
		d.lastLapValid = d.currentLapValid
		if !arg.SafeMode {
			shouldPersist = d.updateBestLap(lapTime, arg)
			d.updateSessionBestLap(lapTime)
		}
	}
	d.currentLapValid = true
	return shouldPersist
}

func (d *Driver) resolveLapTime(arg LapEnd) (float64, bool) {
	if lt, ok := arg.LapTime.Get(); ok && lt >= 0 {
		return lt, true
	}
	first, ok := d.current.At(0).Get()
	if !ok {
		return 0, false
	}
	crossed := d.crossedFinishLineTime.MustGet()
	if math.Abs(crossed-first) > MaxFinishLineSkew {
		d.log.Warn("gap too big between finish line time and first data point",
			log.Float64("crossedFinishLine", crossed),
			log.Float64("firstDataPoint", first),
			log.Float64("simTime", arg.SimTime))
		return 0, false
	}
	return arg.SimTime - first, true
}

func (d *Driver) updateBestLap(lapTime float64, arg LapEnd) bool {
	best, hasBest := d.bestLapTime.Get()
	if hasBest && !(lapTime < best && d.currentLapValid) && !(d.currentLapValid && !d.bestLapValid) {
		return false
	}
	persist := d.currentLapValid && arg.Main
	if persist || arg.CompletedLaps >= 0 {
		d.bestLap = d.current.CloneAndSubtractFirst()
		d.bestLapTime = null.From(lapTime)
		d.bestLapValid = d.currentLapValid
		d.log.Info("new best lap", log.Float64("lapTime", lapTime), log.Bool("valid", d.currentLapValid))
	}
	return persist
}

func (d *Driver) updateSessionBestLap(lapTime float64) {
	if !d.currentLapValid {
		return
	}
	if best, ok := d.sessionBestLapTime.Get(); ok && lapTime >= best {
		return
	}
	d.sessionBestLap = d.current.CloneAndSubtractFirst()
	d.sessionBestLapTime = null.From(lapTime)
	d.log.Info("new session best lap", log.Float64("lapTime", lapTime))
}

// DeltaToDriverAhead returns the time gap between this driver and ahead.
// main is the current reference driver and may be nil.
func (d *Driver) DeltaToDriverAhead(ahead, main *Driver) null.Val[float64] {
	if !d.current.IsIndexSet() || !ahead.current.IsIndexSet() {
		return null.Val[float64]{}
	}
	index := d.current.Index()
	aheadIndex := ahead.current.Index()
	if index == aheadIndex {
		return null.From(0.0)
	}
	isMain := main != nil && d == main
	if main != nil && (isMain || ahead == main) && main.bestLap != nil {
		if res := main.deltaOnBestLap(index, aheadIndex); res.IsValue() {
			return res
		}
	}
	if !isMain {
		if res := d.deltaOnBestLap(index, aheadIndex); res.IsValue() {
			return res
		}
	}
	if res := ahead.deltaOnCurrentLap(index, aheadIndex); res.IsValue() {
		return res
	}
	if res := ahead.deltaOnBestLap(index, aheadIndex); res.IsValue() {
		return res
	}
	return d.deltaOnCurrentLap(index+1, aheadIndex)
}

// DeltaToDriverBehind mirrors DeltaToDriverAhead.
func (d *Driver) DeltaToDriverBehind(behind, main *Driver) null.Val[float64] {
	return behind.DeltaToDriverAhead(d, main)
}

func (d *Driver) deltaOnBestLap(behindIndex, aheadIndex int) null.Val[float64] {
	if d.bestLap == nil {
		return null.Val[float64]{}
	}
	return d.delta(d.bestLap, behindIndex, aheadIndex)
}

func (d *Driver) deltaOnCurrentLap(behindIndex, aheadIndex int) null.Val[float64] {
	return d.delta(d.current, behindIndex, aheadIndex)
}

func (d *Driver) delta(tl *timeline.Timeline, behindIndex, aheadIndex int) null.Val[float64] {
	raw, ok := tl.TimeDifference(behindIndex, aheadIndex).Get()
	if !ok {
		return null.Val[float64]{}
	}
	if math.Abs(raw) < Epsilon {
		return null.From(0.0)
	}
	if aheadIndex < behindIndex {
		est, ok := d.EstimatedLapTime().Get()
		if !ok {
			return null.Val[float64]{}
		}
		return null.From(est - raw)
	}
	return null.From(raw)
}

// EstimatedLapTime is the best lap time or, without one, the span covered
// by the best lap timeline.
func (d *Driver) EstimatedLapTime() null.Val[float64] {
	if d.bestLapTime.IsValue() {
		return d.bestLapTime
	}
	if d.bestLap == nil || !d.bestLap.IsIndexSet() {
		return null.Val[float64]{}
	}
	last, ok1 := d.bestLap.Current().Get()
	first, ok2 := d.bestLap.At(0).Get()
	if !ok1 || !ok2 {
		return null.Val[float64]{}
	}
	return null.From(last - first)
}

// DeltaToBestLap compares currentTime at distance with the best lap.
func (d *Driver) DeltaToBestLap(distance float64, currentTime null.Val[float64]) null.Val[float64] {
	ct, ok := currentTime.Get()
	if d.bestLap == nil || !d.bestLapValid || !ok {
		return null.Val[float64]{}
	}
	return d.bestLap.Delta(distance/DistanceGap, ct)
}

// DeltaToSessionBestLap compares currentTime at distance with the session best lap.
func (d *Driver) DeltaToSessionBestLap(distance float64, currentTime null.Val[float64]) null.Val[float64] {
	ct, ok := currentTime.Get()
	if d.sessionBestLap == nil || !ok {
		return null.Val[float64]{}
	}
	return d.sessionBestLap.Delta(distance/DistanceGap, ct)
}

// LoadBestLap installs a persisted best lap. Points recorded with a different
// bucket width are resampled onto DistanceGap. Returns false if the points
// do not cover the track and the record was ignored.
func (d *Driver) LoadBestLap(lapTime float64, points []float64, pointsGap int) bool {
	d.log.Info("loading best lap",
		log.Float64("lapTime", lapTime),
		log.Int("points", len(points)),
		log.Int("pointsGap", pointsGap))
	size := timeline.NewForTrack(d.trackLength, DistanceGap).Size()
	if pointsGap <= 0 {
		pointsGap = DistanceGap
	}
	if len(points) == 0 ||
		(pointsGap == DistanceGap && len(points) != size) {
		d.log.Warn("best lap does not match track, ignoring",
			log.Int("points", len(points)),
			log.Int("expected", size))
		return false
	}
	if pointsGap == DistanceGap {
		d.bestLap = timeline.NewFromPoints(points)
	} else {
		d.bestLap = resample(points, pointsGap, size)
	}
	d.bestLapTime = null.From(lapTime)
	d.bestLapValid = true
	return true
}

// resample maps points recorded every pointsGap meters onto size buckets of
// DistanceGap meters. Positions past the last point are extrapolated from the
// last two points, the lap does not wrap into its first bucket.
func resample(points []float64, pointsGap, size int) *timeline.Timeline {
	ret := make([]float64, size)
	last := len(points) - 1
	for i := range ret {
		pos := float64(i*DistanceGap) / float64(pointsGap)
		lo := int(math.Floor(pos))
		switch {
		case last == 0:
			ret[i] = points[0]
		case lo >= last:
			ret[i] = points[last] + (points[last]-points[last-1])*(pos-float64(last))
		default:
			ret[i] = points[lo] + (points[lo+1]-points[lo])*(pos-float64(lo))
		}
	}
	return timeline.NewFromPoints(ret)
}

// BestLapPoints returns the best lap samples for persistence.
func (d *Driver) BestLapPoints() ([]float64, error) {
	if d.bestLap == nil {
		return nil, ErrNoBestLap
	}
	return d.bestLap.Points()
}
