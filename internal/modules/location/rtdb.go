// README: Firebase RTDB publisher; parent apps listen on ride_locations/{rideId}.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

const rideLocationsNode = "ride_locations"

// rtdbEntry mirrors the node stored per ride. Listeners overwrite their view
// with whatever arrives last.
type rtdbEntry struct {
	DriverID  string  `json:"driverId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Seq       int64   `json:"seq"`
	Timestamp int64   `json:"timestamp"`
	Active    bool    `json:"active"`
}

type RTDBPublisher struct {
	client *db.Client
}

func NewRTDBPublisher(client *db.Client) *RTDBPublisher {
	return &RTDBPublisher{client: client}
}

func (p *RTDBPublisher) Publish(ctx context.Context, pos Position) error {
	ref := p.client.NewRef(fmt.Sprintf("%s/%s", rideLocationsNode, pos.RideID))
	if err := ref.Set(ctx, rtdbEntry{
		DriverID:  string(pos.DriverID),
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Seq:       pos.Seq,
		Timestamp: pos.Timestamp,
		Active:    true,
	}); err != nil {
		return fmt.Errorf("publishing ride location %s: %w", pos.RideID, err)
	}
	return nil
}

// End flips the active flag so listeners can stop rendering the marker.
func (p *RTDBPublisher) End(ctx context.Context, s Session) error {
	ref := p.client.NewRef(fmt.Sprintf("%s/%s", rideLocationsNode, s.RideID))
	if err := ref.Update(ctx, map[string]interface{}{"active": false}); err != nil {
		return fmt.Errorf("ending ride location %s: %w", s.RideID, err)
	}
	return nil
}
