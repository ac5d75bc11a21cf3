package fleet

import (
	"fmt"
	"strings"

	"github.com/rehud/rehud-delta/pkg/model"
)

// DriverKey returns the stable identity of a driver.
func DriverKey(info model.DriverInfo) string {
	name, _, _ := strings.Cut(info.Name, "\x00")
	return fmt.Sprintf("%s_%d_%d_%d", name, info.UserID, info.SlotID, info.LiveryID)
}

// DistanceToDriverAhead returns the distance in meters from entry to ahead
// along the racing direction.
func DistanceToDriverAhead(trackLength float64, entry, ahead *model.DriverEntry) float64 {
	dist := ahead.LapDistance - entry.LapDistance
	if dist < 0 {
		dist += trackLength
	}
	return dist
}

func DistanceToDriverBehind(trackLength float64, entry, behind *model.DriverEntry) float64 {
	return DistanceToDriverAhead(trackLength, behind, entry)
}
