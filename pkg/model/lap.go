package model

import (
	"time"

	"github.com/aarondl/opt/null"
	"github.com/gofrs/uuid/v5"
)

// Combination identifies the context laps are compared within.
type Combination struct {
	LayoutID              int `json:"layoutId" yaml:"layoutId"`
	CarID                 int `json:"carId" yaml:"carId"`
	ClassPerformanceIndex int `json:"classPerformanceIndex" yaml:"classPerformanceIndex"`
}

// LapRecord is a completed lap as stored by the persistence layer.
type LapRecord struct {
	ID          uuid.UUID   `json:"id" yaml:"id"`
	DriverKey   string      `json:"driverKey" yaml:"driverKey"`
	Combination Combination `json:"combination" yaml:"combination"`
	LapTime     float64     `json:"lapTime" yaml:"lapTime"`
	Valid       bool        `json:"valid" yaml:"valid"`
	// bucket width in meters of Points, null if no telemetry is attached
	PointsGap  null.Val[int] `json:"pointsGap" yaml:"-"`
	Points     []float64     `json:"points,omitempty" yaml:"-"`
	RecordedAt time.Time     `json:"recordedAt" yaml:"recordedAt"`
}

func (r *LapRecord) HasTelemetry() bool {
	return r.PointsGap.IsValue() && len(r.Points) > 0
}
