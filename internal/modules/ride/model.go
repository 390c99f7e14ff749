// README: Active ride for one driver and date; per-child attendance state machine.
package ride

import (
	"errors"
	"sort"
	"time"

	"schoolride/internal/modules/booking"
	"schoolride/internal/types"
)

var (
	ErrRideCompleted     = errors.New("ride already completed")
	ErrInvalidTransition = errors.New("invalid attendance transition")
	ErrChildNotOnRide    = errors.New("child is not on this ride")
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type ChildStatus string

const (
	ChildPending    ChildStatus = "pending"
	ChildPickedUp   ChildStatus = "picked_up"
	ChildAbsent     ChildStatus = "absent"
	ChildDroppedOff ChildStatus = "dropped_off"
)

// AllowedChildTransitions is the attendance flow. Absent and dropped_off are terminal.
var AllowedChildTransitions = map[ChildStatus][]ChildStatus{
	ChildPending:  {ChildPickedUp, ChildAbsent},
	ChildPickedUp: {ChildDroppedOff},
}

func CanTransition(from, to ChildStatus) bool {
	for _, s := range AllowedChildTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s ChildStatus) Terminal() bool {
	return s == ChildAbsent || s == ChildDroppedOff
}

type RideChild struct {
	ChildID       types.ID       `json:"child_id" firestore:"childId"`
	BookingID     types.ID       `json:"booking_id" firestore:"bookingId"`
	ParentID      types.ID       `json:"parent_id" firestore:"parentId"`
	Pickup        types.Location `json:"pickup" firestore:"pickup"`
	Dropoff       types.Location `json:"dropoff" firestore:"dropoff"`
	ScheduledTime string         `json:"scheduled_time" firestore:"scheduledTime"`
	Status        ChildStatus    `json:"status" firestore:"status"`
	PickedUpAt    *time.Time     `json:"picked_up_at,omitempty" firestore:"pickedUpAt"`
	AbsentAt      *time.Time     `json:"absent_at,omitempty" firestore:"absentAt"`
	DroppedOffAt  *time.Time     `json:"dropped_off_at,omitempty" firestore:"droppedOffAt"`
}

// Counts are derived from the children on every change; PickedUp includes children already dropped off.
type Counts struct {
	PickedUp   int `json:"picked_up" firestore:"pickedUp"`
	Absent     int `json:"absent" firestore:"absent"`
	DroppedOff int `json:"dropped_off" firestore:"droppedOff"`
	Total      int `json:"total" firestore:"total"`
}

type Emergency struct {
	Message  string      `json:"message" firestore:"message"`
	Point    types.Point `json:"point" firestore:"point"`
	RaisedAt time.Time   `json:"raised_at" firestore:"raisedAt"`
}

type ActiveRide struct {
	ID             types.ID    `json:"id" firestore:"id"`
	DriverID       types.ID    `json:"driver_id" firestore:"driverId"`
	Date           string      `json:"date" firestore:"date"`
	Status         Status      `json:"status" firestore:"status"`
	Children       []RideChild `json:"children" firestore:"children"`
	Counts         Counts      `json:"counts" firestore:"counts"`
	Emergencies    []Emergency `json:"emergencies,omitempty" firestore:"emergencies"`
	StartedAt      time.Time   `json:"started_at" firestore:"startedAt"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" firestore:"completedAt"`
	CompletedEarly bool        `json:"completed_early" firestore:"completedEarly"`
	UpdatedAt      time.Time   `json:"updated_at" firestore:"updatedAt"`
}

// RideID is the document key: one ride per driver per calendar date.
func RideID(driverID types.ID, date time.Time) types.ID {
	return types.ID(string(driverID) + "_" + types.FormatDay(date))
}

// NewActiveRide builds a ride from the bookings occurring on date, ordered by pickup time.
// A child booked twice on the same day appears once.
func NewActiveRide(driverID types.ID, date time.Time, bookings []booking.Booking, now time.Time) *ActiveRide {
	sorted := append([]booking.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DailyTime != sorted[j].DailyTime {
			return sorted[i].DailyTime < sorted[j].DailyTime
		}
		return sorted[i].ChildID < sorted[j].ChildID
	})

	r := &ActiveRide{
		ID:        RideID(driverID, date),
		DriverID:  driverID,
		Date:      types.FormatDay(date),
		Status:    StatusInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
	seen := make(map[types.ID]bool, len(sorted))
	for _, b := range sorted {
		if seen[b.ChildID] {
			continue
		}
		seen[b.ChildID] = true
		r.Children = append(r.Children, RideChild{
			ChildID:       b.ChildID,
			BookingID:     b.ID,
			ParentID:      b.ParentID,
			Pickup:        b.Pickup,
			Dropoff:       b.Dropoff,
			ScheduledTime: b.DailyTime,
			Status:        ChildPending,
		})
	}
	r.recount()
	return r
}

func (r *ActiveRide) Completed() bool {
	return r.Status == StatusCompleted
}

func (r *ActiveRide) Child(childID types.ID) (*RideChild, bool) {
	for i := range r.Children {
		if r.Children[i].ChildID == childID {
			return &r.Children[i], true
		}
	}
	return nil, false
}

func (r *ActiveRide) HasParent(parentID types.ID) bool {
	for _, c := range r.Children {
		if c.ParentID == parentID {
			return true
		}
	}
	return false
}

// ParentIDs lists each parent on the ride once, in ride order.
func (r *ActiveRide) ParentIDs() []types.ID {
	seen := make(map[types.ID]bool)
	var out []types.ID
	for _, c := range r.Children {
		if !seen[c.ParentID] {
			seen[c.ParentID] = true
			out = append(out, c.ParentID)
		}
	}
	return out
}

// SetChildStatus applies one attendance transition and completes the ride when every child is terminal.
func (r *ActiveRide) SetChildStatus(childID types.ID, to ChildStatus, now time.Time) error {
	if r.Completed() {
		return ErrRideCompleted
	}
	c, ok := r.Child(childID)
	if !ok {
		return ErrChildNotOnRide
	}
	if !CanTransition(c.Status, to) {
		return ErrInvalidTransition
	}
	c.Status = to
	at := now
	switch to {
	case ChildPickedUp:
		c.PickedUpAt = &at
	case ChildAbsent:
		c.AbsentAt = &at
	case ChildDroppedOff:
		c.DroppedOffAt = &at
	}
	r.recount()
	r.UpdatedAt = now
	if r.allTerminal() {
		r.Status = StatusCompleted
		r.CompletedAt = &at
	}
	return nil
}

// CompleteEarly ends the ride with children possibly still pending.
func (r *ActiveRide) CompleteEarly(now time.Time) error {
	if r.Completed() {
		return ErrRideCompleted
	}
	at := now
	r.Status = StatusCompleted
	r.CompletedAt = &at
	r.CompletedEarly = true
	r.UpdatedAt = now
	return nil
}

func (r *ActiveRide) allTerminal() bool {
	for _, c := range r.Children {
		if !c.Status.Terminal() {
			return false
		}
	}
	return true
}

func (r *ActiveRide) recount() {
	var c Counts
	for _, ch := range r.Children {
		switch ch.Status {
		case ChildPickedUp:
			c.PickedUp++
		case ChildDroppedOff:
			c.PickedUp++
			c.DroppedOff++
		case ChildAbsent:
			c.Absent++
		}
	}
	c.Total = len(r.Children)
	r.Counts = c
}
