package model

import "github.com/aarondl/opt/null"

// SessionPhase as reported by the simulation.
type SessionPhase int

const (
	PhaseUnavailable SessionPhase = -1
	PhaseGarage      SessionPhase = 1
	PhaseGridwalk    SessionPhase = 2
	PhaseFormation   SessionPhase = 3
	PhaseCountdown   SessionPhase = 4
	PhaseGreen       SessionPhase = 5
	PhaseCheckered   SessionPhase = 6
)

// NotDriving reports phases in which cars are not on track yet.
func (p SessionPhase) NotDriving() bool {
	return p < PhaseFormation
}

func (p SessionPhase) String() string {
	switch p {
	case PhaseUnavailable:
		return "unavailable"
	case PhaseGarage:
		return "garage"
	case PhaseGridwalk:
		return "gridwalk"
	case PhaseFormation:
		return "formation"
	case PhaseCountdown:
		return "countdown"
	case PhaseGreen:
		return "green"
	case PhaseCheckered:
		return "checkered"
	default:
		return "unknown"
	}
}

type SessionKind int

const (
	SessionUnavailable SessionKind = -1
	SessionPractice    SessionKind = 0
	SessionQualify     SessionKind = 1
	SessionRace        SessionKind = 2
	SessionWarmup      SessionKind = 3
)

func (k SessionKind) String() string {
	switch k {
	case SessionUnavailable:
		return "unavailable"
	case SessionPractice:
		return "practice"
	case SessionQualify:
		return "qualify"
	case SessionRace:
		return "race"
	case SessionWarmup:
		return "warmup"
	default:
		return "unknown"
	}
}

type DriverInfo struct {
	Name                  string `json:"name"`
	UserID                int    `json:"userId"`
	SlotID                int    `json:"slotId"`
	LiveryID              int    `json:"liveryId"`
	ModelID               int    `json:"modelId"`
	ClassPerformanceIndex int    `json:"classPerformanceIndex"`
}

// DriverEntry is one car of a telemetry frame.
type DriverEntry struct {
	Info            DriverInfo `json:"driverInfo"`
	Place           int        `json:"place"`
	CompletedLaps   int        `json:"completedLaps"`
	LapDistance     float64    `json:"lapDistance"`
	CurrentLapValid bool       `json:"currentLapValid"`
	InPitlane       bool       `json:"inPitlane"`
	// lap time of the previous lap as reported by the simulation, null if unknown
	LapTimePrevious null.Val[float64] `json:"lapTimePrevious"`
}

// Frame is a single telemetry snapshot.
type Frame struct {
	Drivers              []DriverEntry `json:"drivers"`
	PlayerPlace          int           `json:"playerPlace"`
	LayoutID             int           `json:"layoutId"`
	TrackLength          float64       `json:"trackLength"`
	SessionPhase         SessionPhase  `json:"sessionPhase"`
	SessionKind          SessionKind   `json:"sessionKind"`
	SessionTimeRemaining float64       `json:"sessionTimeRemaining"`
	SimulationTime       float64       `json:"simulationTime"`
	GamePaused           bool          `json:"gamePaused"`
	GameInReplay         bool          `json:"gameInReplay"`
	GameInMenus          bool          `json:"gameInMenus"`
}

// PlayerEntry returns the entry of the locally controlled car.
func (f *Frame) PlayerEntry() (*DriverEntry, bool) {
	for i := range f.Drivers {
		if f.Drivers[i].Place == f.PlayerPlace {
			return &f.Drivers[i], true
		}
	}
	return nil, false
}

// Suppressed reports whether lap persistence must not happen for this frame.
func (f *Frame) Suppressed() bool {
	return f.GamePaused || f.GameInReplay || f.GameInMenus
}
