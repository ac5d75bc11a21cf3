package fleet

import (
	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/driver"
)

// ClearTempData drops the lap progress of all active drivers.
func (f *Fleet) ClearTempData() {
	for _, d := range f.active {
		d.ClearTempData()
	}
}

// SessionChanged resets the fleet for a new session.
func (f *Fleet) SessionChanged(old, cur model.SessionKind) {
	f.log.Info("session changed",
		log.String("old", old.String()),
		log.String("new", cur.String()))
	if cur == model.SessionUnavailable {
		clear(f.active)
		f.main = nil
	}
	f.ClearTempData()
	clear(f.retained)
	f.leaderCrossedFinishLineAtZero = 0
}

func (f *Fleet) SessionPhaseChanged(old, cur model.SessionPhase) {
	f.log.Debug("session phase changed",
		log.String("old", old.String()),
		log.String("new", cur.String()))
	if old.NotDriving() || cur.NotDriving() {
		f.ClearTempData()
	}
}

func (f *Fleet) PitlaneEntered(key string) {
	f.clearDriver(key)
}

func (f *Fleet) PitlaneExited(key string) {
	f.clearDriver(key)
}

func (f *Fleet) PositionJumped(key string) {
	f.log.Debug("position jump", log.String("driver", key))
	f.clearDriver(key)
}

func (f *Fleet) clearDriver(key string) {
	if d, ok := f.active[key]; ok {
		d.ClearTempData()
	}
}

// UpdateBestLap installs a persisted best lap into the main driver.
// Records without telemetry are ignored.
func (f *Fleet) UpdateBestLap(rec *model.LapRecord) {
	if f.main == nil || rec == nil || !rec.HasTelemetry() {
		return
	}
	f.main.LoadBestLap(rec.LapTime, rec.Points, rec.PointsGap.MustGet())
}

// NewLap closes the lap of the driver described by entry. It returns nil if
// the driver is unknown.
func (f *Fleet) NewLap(frame *model.Frame, entry *model.DriverEntry) (d *driver.Driver, shouldPersist bool) {
	if entry.Place == 1 && (frame.SessionTimeRemaining == 0 || f.leaderCrossedFinishLineAtZero > 0) {
		f.leaderCrossedFinishLineAtZero++
	}
	d, ok := f.active[DriverKey(entry.Info)]
	if !ok {
		return nil, false
	}
	persist := d.EndLap(driver.LapEnd{
		SimTime:       frame.SimulationTime,
		LapTime:       entry.LapTimePrevious,
		CompletedLaps: entry.CompletedLaps,
		Session:       frame.SessionKind,
		SafeMode:      f.SafeMode(),
		Main:          d == f.main,
	})
	return d, persist && !frame.Suppressed()
}
