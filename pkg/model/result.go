package model

import "github.com/aarondl/opt/null"

// FrameResult holds the values derived from a single frame.
type FrameResult struct {
	MainDriver            string            `json:"mainDriver,omitempty"`
	CurrentLaptime        null.Val[float64] `json:"currentLaptime"`
	DeltaToBestLap        null.Val[float64] `json:"deltaToBestLap"`
	DeltaToSessionBestLap null.Val[float64] `json:"deltaToSessionBestLap"`
	BestLapTime           null.Val[float64] `json:"bestLapTime"`
	SessionBestLapTime    null.Val[float64] `json:"sessionBestLapTime"`
	CrossedFinishLine     bool              `json:"crossedFinishLine"`
	// key: driver key, negative values for cars ahead
	DeltasAhead                   map[string]null.Val[float64] `json:"deltasAhead"`
	DeltasBehind                  map[string]null.Val[float64] `json:"deltasBehind"`
	LeaderCrossedFinishLineAtZero int                          `json:"leaderCrossedFinishLineAtZero"`
	SimulationTime                float64                      `json:"simulationTime"`
}

func NewFrameResult() *FrameResult {
	return &FrameResult{
		DeltasAhead:  make(map[string]null.Val[float64]),
		DeltasBehind: make(map[string]null.Val[float64]),
	}
}

// LapEvent is emitted whenever a driver completes a lap.
type LapEvent struct {
	DriverKey            string            `json:"driverKey"`
	MainDriver           bool              `json:"mainDriver"`
	CompletedLaps        int               `json:"completedLaps"`
	BestLapTime          null.Val[float64] `json:"bestLapTime"`
	SessionBestLapTime   null.Val[float64] `json:"sessionBestLapTime"`
	ShouldPersistBestLap bool              `json:"shouldPersistBestLap"`
	SimulationTime       float64           `json:"simulationTime"`
}
