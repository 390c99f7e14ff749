// README: Driver profile, vehicle, commute route and seat availability.
package driver

import (
	"time"

	"schoolride/internal/modules/profile"
	"schoolride/internal/types"
)

type Vehicle struct {
	Type     string `json:"type"`
	Capacity int    `json:"capacity"`
	Plate    string `json:"plate"`
	Model    string `json:"model"`
}

// Routes is the driver's daily commute; either end may be unset until the driver fills it in.
type Routes struct {
	StartPoint *types.Location `json:"start_point,omitempty"`
	EndPoint   *types.Location `json:"end_point,omitempty"`
}

func (r Routes) Complete() bool {
	return r.StartPoint != nil && r.EndPoint != nil
}

type Driver struct {
	ID          types.ID       `json:"id"`
	Vehicle     Vehicle        `json:"vehicle"`
	Routes      Routes         `json:"routes"`
	Status      profile.Status `json:"status"`
	BookingOpen bool           `json:"booking_open"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Bookable reports whether parents may book seats with this driver.
func (d *Driver) Bookable() bool {
	return d.Status == profile.StatusApproved && d.BookingOpen
}

type Availability struct {
	TotalSeats     int `json:"total_seats"`
	BookedSeats    int `json:"booked_seats"`
	AvailableSeats int `json:"available_seats"`
}

// NewAvailability does not clamp; an overbooked driver reports negative seats.
func NewAvailability(total, booked int) Availability {
	return Availability{TotalSeats: total, BookedSeats: booked, AvailableSeats: total - booked}
}

func (a Availability) Percent() float64 {
	if a.TotalSeats <= 0 {
		return 0
	}
	return float64(a.AvailableSeats) / float64(a.TotalSeats) * 100
}
