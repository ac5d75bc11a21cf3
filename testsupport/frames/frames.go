// Package frames builds telemetry frames for tests.
package frames

import (
	"slices"

	"github.com/aarondl/opt/null"

	"github.com/rehud/rehud-delta/pkg/model"
)

const (
	DefaultTrackLength = 1000.0
	DefaultLayoutID    = 1
	DefaultModelID     = 10
	DefaultClassIndex  = 5
)

type Builder struct {
	frame model.Frame
}

type EntryOption func(*model.DriverEntry)

// New returns a builder for a green flag practice frame on a 1000m track.
func New() *Builder {
	return &Builder{frame: model.Frame{
		PlayerPlace:          1,
		LayoutID:             DefaultLayoutID,
		TrackLength:          DefaultTrackLength,
		SessionPhase:         model.PhaseGreen,
		SessionKind:          model.SessionPractice,
		SessionTimeRemaining: 600,
	}}
}

// Info returns the driver info used for drivers added by name.
func Info(name string) model.DriverInfo {
	return model.DriverInfo{
		Name:                  name,
		UserID:                100,
		ModelID:               DefaultModelID,
		ClassPerformanceIndex: DefaultClassIndex,
	}
}

func (b *Builder) TrackLength(l float64) *Builder {
	b.frame.TrackLength = l
	return b
}

func (b *Builder) Layout(id int) *Builder {
	b.frame.LayoutID = id
	return b
}

func (b *Builder) Phase(p model.SessionPhase) *Builder {
	b.frame.SessionPhase = p
	return b
}

func (b *Builder) Kind(k model.SessionKind) *Builder {
	b.frame.SessionKind = k
	return b
}

func (b *Builder) SimTime(t float64) *Builder {
	b.frame.SimulationTime = t
	return b
}

func (b *Builder) TimeRemaining(t float64) *Builder {
	b.frame.SessionTimeRemaining = t
	return b
}

func (b *Builder) PlayerPlace(p int) *Builder {
	b.frame.PlayerPlace = p
	return b
}

func (b *Builder) Paused() *Builder {
	b.frame.GamePaused = true
	return b
}

func (b *Builder) Replay() *Builder {
	b.frame.GameInReplay = true
	return b
}

func (b *Builder) Menus() *Builder {
	b.frame.GameInMenus = true
	return b
}

// Driver adds an entry with a valid lap.
func (b *Builder) Driver(name string, place int, distance float64, opts ...EntryOption) *Builder {
	e := model.DriverEntry{
		Info:            Info(name),
		Place:           place,
		LapDistance:     distance,
		CurrentLapValid: true,
	}
	for _, opt := range opts {
		opt(&e)
	}
	b.frame.Drivers = append(b.frame.Drivers, e)
	return b
}

func (b *Builder) Build() *model.Frame {
	ret := b.frame
	ret.Drivers = slices.Clone(b.frame.Drivers)
	return &ret
}

func Laps(n int) EntryOption {
	return func(e *model.DriverEntry) {
		e.CompletedLaps = n
	}
}

func Invalid() EntryOption {
	return func(e *model.DriverEntry) {
		e.CurrentLapValid = false
	}
}

func InPit() EntryOption {
	return func(e *model.DriverEntry) {
		e.InPitlane = true
	}
}

func LapTime(v float64) EntryOption {
	return func(e *model.DriverEntry) {
		e.LapTimePrevious = null.From(v)
	}
}

func Car(modelID, classIndex int) EntryOption {
	return func(e *model.DriverEntry) {
		e.Info.ModelID = modelID
		e.Info.ClassPerformanceIndex = classIndex
	}
}

// FullLap returns the frames of driver name (player place 1) approaching the
// line, crossing it at SimTime 0 and completing a 100s lap at 1m per 0.1s.
func FullLap(name string) []*model.Frame {
	ret := make([]*model.Frame, 0, 1011)
	for d := 990; d <= 999; d++ {
		ret = append(ret, New().SimTime(-1+0.1*float64(d-990)).Driver(name, 1, float64(d)).Build())
	}
	ret = append(ret, New().SimTime(0).Driver(name, 1, 0, Laps(1)).Build())
	for d := 1; d <= 999; d++ {
		ret = append(ret,
			New().SimTime(0.1*float64(d)).Driver(name, 1, float64(d), Laps(1)).Build())
	}
	return append(ret, New().SimTime(100).Driver(name, 1, 0, Laps(2)).Build())
}
