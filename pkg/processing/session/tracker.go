// Package session derives session level events from consecutive frames.
package session

import (
	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/fleet"
)

// Events receives the changes detected by the Tracker.
type Events interface {
	SessionChanged(old, cur model.SessionKind)
	SessionPhaseChanged(old, cur model.SessionPhase)
	PitlaneEntered(key string)
	PitlaneExited(key string)
}

type driverState struct {
	completedLaps int
	inPitlane     bool
}

type Tracker struct {
	log     *log.Logger
	events  Events
	kind    model.SessionKind
	phase   model.SessionPhase
	drivers map[string]driverState
}

type Option func(*Tracker)

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

func New(events Events, opts ...Option) *Tracker {
	ret := &Tracker{
		log:     log.Default().Named("processing.session"),
		events:  events,
		kind:    model.SessionUnavailable,
		phase:   model.PhaseUnavailable,
		drivers: make(map[string]driverState),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Update compares frame with the previous one and fires the matching events.
// It returns the entries of drivers that completed a lap since the previous frame.
func (t *Tracker) Update(frame *model.Frame) []*model.DriverEntry {
	if frame.SessionKind != t.kind {
		old := t.kind
		t.kind = frame.SessionKind
		clear(t.drivers)
		t.events.SessionChanged(old, frame.SessionKind)
	}
	if frame.SessionPhase != t.phase {
		old := t.phase
		t.phase = frame.SessionPhase
		t.events.SessionPhaseChanged(old, frame.SessionPhase)
	}

	var completed []*model.DriverEntry
	seen := make(map[string]struct{}, len(frame.Drivers))
	for i := range frame.Drivers {
		entry := &frame.Drivers[i]
		key := fleet.DriverKey(entry.Info)
		seen[key] = struct{}{}
		prev, ok := t.drivers[key]
		t.drivers[key] = driverState{completedLaps: entry.CompletedLaps, inPitlane: entry.InPitlane}
		if !ok {
			continue
		}
		if entry.CompletedLaps > prev.completedLaps {
			t.log.Debug("lap completed",
				log.String("driver", key),
				log.Int("completedLaps", entry.CompletedLaps))
			completed = append(completed, entry)
		}
		switch {
		case entry.InPitlane && !prev.inPitlane:
			t.events.PitlaneEntered(key)
		case !entry.InPitlane && prev.inPitlane:
			t.events.PitlaneExited(key)
		}
	}
	for key := range t.drivers {
		if _, ok := seen[key]; !ok {
			delete(t.drivers, key)
		}
	}
	return completed
}
