// Package fleet tracks all drivers of a session and computes the deltas
// between the reference driver and the rest of the field.
package fleet

import (
	"sync/atomic"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/samber/lo"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/driver"
)

// DefaultGraceWindow is the time a vanished driver keeps its lap progress.
const DefaultGraceWindow = 3 * time.Second

// MainDriverListener is notified when the reference driver changes.
type MainDriverListener interface {
	// loadBestLap is true if a persisted best lap should be loaded for d
	MainDriverChanged(frame *model.Frame, entry *model.DriverEntry, d *driver.Driver, loadBestLap bool)
}

type retained struct {
	removedAt time.Time
	driver    *driver.Driver
}

type Fleet struct {
	log         *log.Logger
	driverLog   *log.Logger
	clock       func() time.Time
	graceWindow time.Duration
	safeMode    atomic.Bool
	listener    MainDriverListener

	active   map[string]*driver.Driver
	retained map[string]retained
	main     *driver.Driver

	leaderCrossedFinishLineAtZero int
	last                          *model.FrameResult
}

type Option func(*Fleet)

func WithLogger(l *log.Logger) Option {
	return func(f *Fleet) {
		f.log = l
	}
}

// WithClock sets the wall clock used for the grace window.
func WithClock(clock func() time.Time) Option {
	return func(f *Fleet) {
		f.clock = clock
	}
}

func WithGraceWindow(d time.Duration) Option {
	return func(f *Fleet) {
		f.graceWindow = d
	}
}

func WithSafeMode(b bool) Option {
	return func(f *Fleet) {
		f.safeMode.Store(b)
	}
}

func WithMainDriverListener(l MainDriverListener) Option {
	return func(f *Fleet) {
		f.listener = l
	}
}

func New(opts ...Option) *Fleet {
	ret := &Fleet{
		log:         log.Default().Named("processing.fleet"),
		driverLog:   log.Default().Named("processing.driver"),
		clock:       time.Now,
		graceWindow: DefaultGraceWindow,
		active:      make(map[string]*driver.Driver),
		retained:    make(map[string]retained),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (f *Fleet) SetMainDriverListener(l MainDriverListener) {
	f.listener = l
}

// SetSafeMode may be called from any goroutine.
func (f *Fleet) SetSafeMode(b bool) {
	f.safeMode.Store(b)
}

func (f *Fleet) SafeMode() bool {
	return f.safeMode.Load()
}

func (f *Fleet) Driver(key string) (*driver.Driver, bool) {
	d, ok := f.active[key]
	return d, ok
}

func (f *Fleet) MainDriver() *driver.Driver {
	return f.main
}

func (f *Fleet) ActiveKeys() []string {
	return lo.Keys(f.active)
}

func (f *Fleet) ActiveCount() int {
	return len(f.active)
}

func (f *Fleet) LeaderCrossedFinishLineAtZero() int {
	return f.leaderCrossedFinishLineAtZero
}

// ProcessFrame updates the fleet with a new frame and computes the deltas
// of all drivers relative to the reference driver.
//
//nolint:funlen,gocognit,cyclop // ok
func (f *Fleet) ProcessFrame(frame *model.Frame) *model.FrameResult {
	if frame.GameInReplay && !frame.GameInMenus {
		f.ClearTempData()
	}
	if frame.GamePaused {
		if f.last != nil {
			return f.last
		}
		return f.emptyResult(frame)
	}
	if frame.SessionPhase.NotDriving() {
		if len(f.active) > 0 {
			f.log.Debug("clearing drivers", log.String("phase", frame.SessionPhase.String()))
		}
		clear(f.active)
		f.main = nil
		f.last = f.emptyResult(frame)
		return f.last
	}

	f.updateMembership(frame)
	mainEntry := f.updateMainDriver(frame)

	result := f.emptyResult(frame)
	if f.main != nil && mainEntry != nil {
		f.computeDeltas(frame, mainEntry, result)
	}

	for i := range frame.Drivers {
		entry := &frame.Drivers[i]
		key := DriverKey(entry.Info)
		if d, ok := f.active[key]; ok && d.AddDataPoint(entry.LapDistance, frame.SimulationTime) {
			f.PositionJumped(key)
		}
	}

	if f.main != nil && mainEntry != nil {
		m := f.main
		result.MainDriver = m.Key()
		result.CurrentLaptime = m.CurrentLaptime(frame.SimulationTime)
		result.DeltaToSessionBestLap = m.DeltaToSessionBestLap(mainEntry.LapDistance, result.CurrentLaptime)
		result.DeltaToBestLap = m.DeltaToBestLap(mainEntry.LapDistance, result.CurrentLaptime)
		result.BestLapTime = m.BestLapTime()
		result.SessionBestLapTime = m.SessionBestLapTime()
		result.CrossedFinishLine = m.CrossedFinishLine()
	}
	f.last = result
	return result
}

func (f *Fleet) emptyResult(frame *model.Frame) *model.FrameResult {
	ret := model.NewFrameResult()
	ret.LeaderCrossedFinishLineAtZero = f.leaderCrossedFinishLineAtZero
	ret.SimulationTime = frame.SimulationTime
	return ret
}

func (f *Fleet) updateMembership(frame *model.Frame) {
	now := f.clock()
	seen := make(map[string]struct{}, len(frame.Drivers))
	for i := range frame.Drivers {
		entry := &frame.Drivers[i]
		key := DriverKey(entry.Info)
		seen[key] = struct{}{}
		d, ok := f.active[key]
		if !ok {
			d = f.restoreOrCreate(key, frame.TrackLength, now)
			f.active[key] = d
		}
		if !entry.CurrentLapValid {
			d.SetLapInvalid()
		}
	}
	for key, d := range lo.OmitByKeys(f.active, lo.Keys(seen)) {
		f.log.Debug("removing driver", log.String("driver", key))
		f.retained[key] = retained{removedAt: now, driver: d}
		delete(f.active, key)
	}
}

func (f *Fleet) restoreOrCreate(key string, trackLength float64, now time.Time) *driver.Driver {
	r, ok := f.retained[key]
	if !ok {
		f.log.Debug("adding driver", log.String("driver", key))
		return driver.New(key, trackLength, driver.WithLogger(f.driverLog))
	}
	delete(f.retained, key)
	absent := now.Sub(r.removedAt)
	if absent < f.graceWindow {
		f.log.Debug("restoring driver, temp data intact",
			log.String("driver", key), log.Duration("absent", absent))
	} else {
		f.log.Debug("restoring driver, temp data expired",
			log.String("driver", key), log.Duration("absent", absent))
		r.driver.ClearTempData()
	}
	r.driver.SetLapInvalid()
	return r.driver
}

func (f *Fleet) updateMainDriver(frame *model.Frame) *model.DriverEntry {
	entry, ok := frame.PlayerEntry()
	if !ok {
		return nil
	}
	d := f.active[DriverKey(entry.Info)]
	if d == f.main {
		return entry
	}
	f.log.Info("setting main driver", log.String("driver", d.Key()))
	f.main = d
	loadBestLap := d.MarkAsMain()
	if f.listener != nil {
		f.listener.MainDriverChanged(frame, entry, d, loadBestLap)
	}
	return entry
}

func (f *Fleet) computeDeltas(frame *model.Frame, mainEntry *model.DriverEntry, result *model.FrameResult) {
	for i := range frame.Drivers {
		entry := &frame.Drivers[i]
		key := DriverKey(entry.Info)
		if _, ok := result.DeltasAhead[key]; ok {
			continue
		}
		if _, ok := result.DeltasBehind[key]; ok {
			continue
		}
		d := f.active[key]
		if d == f.main {
			continue
		}
		ahead, okAhead := f.main.DeltaToDriverAhead(d, f.main).Get()
		behind, okBehind := f.main.DeltaToDriverBehind(d, f.main).Get()
		switch {
		case !okAhead && !okBehind:
			if DistanceToDriverAhead(frame.TrackLength, mainEntry, entry) <
				DistanceToDriverBehind(frame.TrackLength, mainEntry, entry) {
				result.DeltasAhead[key] = null.Val[float64]{}
			} else {
				result.DeltasBehind[key] = null.Val[float64]{}
			}
		case !okAhead:
			result.DeltasBehind[key] = null.From(behind)
		case !okBehind:
			result.DeltasAhead[key] = null.From(negate(ahead))
		case ahead < behind:
			result.DeltasAhead[key] = null.From(negate(ahead))
		default:
			result.DeltasBehind[key] = null.From(behind)
		}
	}
}

// negate avoids negative zero in the published deltas.
func negate(v float64) float64 {
	if v == 0 {
		return 0
	}
	return -v
}
