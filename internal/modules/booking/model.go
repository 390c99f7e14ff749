// README: Booking aggregate, status flow and the recurring-schedule predicate.
package booking

import (
	"time"

	"schoolride/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

const (
	ActorParent = "parent"
	ActorDriver = "driver"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

type Booking struct {
	ID             types.ID       `json:"id"`
	ParentID       types.ID       `json:"parent_id"`
	DriverID       types.ID       `json:"driver_id"`
	ChildID        types.ID       `json:"child_id"`
	Pickup         types.Location `json:"pickup"`
	Dropoff        types.Location `json:"dropoff"`
	RideDate       time.Time      `json:"ride_date"`
	EndDate        time.Time      `json:"end_date"`
	RecurringDays  int            `json:"recurring_days"`
	DailyTime      string         `json:"daily_time"`
	RouteKm        float64        `json:"route_km"`
	Status         Status         `json:"status"`
	StatusVersion  int            `json:"status_version"`
	CancelledDates []time.Time    `json:"cancelled_dates"`
	TotalPrice     int64          `json:"total_price"`
	Currency       string         `json:"currency"`
	CreatedAt      time.Time      `json:"created_at"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions is the booking status flow. Completed and cancelled are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// HoldsSeat reports whether the booking counts against the driver's capacity.
func (b *Booking) HoldsSeat() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

func (b *Booking) Involves(uid types.ID) bool {
	return b.ParentID == uid || b.DriverID == uid
}

func (b *Booking) InRange(date time.Time) bool {
	d := types.Day(date)
	return !d.Before(types.Day(b.RideDate)) && !d.After(types.Day(b.EndDate))
}

func (b *Booking) IsCancelledOn(date time.Time) bool {
	d := types.Day(date)
	for _, c := range b.CancelledDates {
		if types.Day(c).Equal(d) {
			return true
		}
	}
	return false
}

// Occurs reports whether the driver runs this booking on date.
func (b *Booking) Occurs(date time.Time) bool {
	return b.Status == StatusConfirmed &&
		b.InRange(date) &&
		types.IsWeekday(date) &&
		!b.IsCancelledOn(date)
}
