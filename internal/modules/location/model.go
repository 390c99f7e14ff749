// README: Live-position types: tracking sessions, updates and persisted snapshots.
package location

import (
	"time"

	"schoolride/internal/types"
)

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	RideID     types.ID
	Position   types.Point
	RecordedAt time.Time
}

// Session is the handle a driver holds while their position is being shared
// for one active ride.
type Session struct {
	ID        types.ID  `json:"session_id"`
	DriverID  types.ID  `json:"driver_id"`
	RideID    types.ID  `json:"ride_id"`
	StartedAt time.Time `json:"started_at"`
}

type Update struct {
	DriverID types.ID
	Seq      int64
	Position types.Point
	TsMs     int64
}

// Position is the latest known point for a ride, as published to subscribers.
type Position struct {
	DriverID  types.ID `json:"driver_id"`
	RideID    types.ID `json:"ride_id"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Seq       int64    `json:"seq"`
	Timestamp int64    `json:"timestamp"`
}

type UpdateResult struct {
	Accepted    bool `json:"accepted"`
	Snapshotted bool `json:"snapshotted"`
}
