// Package storage defines the persistence of completed laps.
package storage

import (
	"context"

	"github.com/rehud/rehud-delta/pkg/model"
)

// MaxEntries is the number of laps kept per combination in addition to the best lap.
const MaxEntries = 20

// LapStore persists completed laps and best lap telemetry.
type LapStore interface {
	SaveLap(ctx context.Context, rec *model.LapRecord) error
	// LoadBestLap returns the fastest valid lap with telemetry, nil if there is none.
	LoadBestLap(ctx context.Context, c model.Combination) (*model.LapRecord, error)
	// ListLaps returns the most recent laps, newest first.
	ListLaps(ctx context.Context, c model.Combination, limit int) ([]*model.LapRecord, error)
	// ListCombinations returns all combinations with stored laps.
	ListCombinations(ctx context.Context) ([]model.Combination, error)
	// Prune keeps the keep most recent laps and the best lap, returns the number of deleted laps.
	Prune(ctx context.Context, c model.Combination, keep int) (int64, error)
	Close() error
}
