// README: Identifier and coordinate value types shared by all modules.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// Point is a bare coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// Location is a geocoded point. Treat it as immutable once produced.
type Location struct {
	Lat     float64 `json:"lat" firestore:"lat"`
	Lng     float64 `json:"lng" firestore:"lng"`
	Address string  `json:"address" firestore:"address"`
}

func (l Location) Point() Point {
	return Point{Lat: l.Lat, Lng: l.Lng}
}

// IsZero reports whether the location carries no coordinates at all.
func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0
}

// Valid rejects out-of-range coordinates and the (0,0) placeholder clients send for "unset".
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
