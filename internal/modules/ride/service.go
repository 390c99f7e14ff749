// README: Ride service: shift start, attendance updates, early completion, emergencies and live watch.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/metrics"
	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/notification"
	"schoolride/internal/types"
)

var (
	ErrNotFound   = errors.New("ride not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("not allowed on this ride")
	ErrNoBookings = errors.New("no bookings for this date")
)

type store interface {
	Create(ctx context.Context, r *ActiveRide) error
	Get(ctx context.Context, id types.ID) (*ActiveRide, error)
	Update(ctx context.Context, id types.ID, fn func(*ActiveRide) error) (*ActiveRide, error)
	Watch(ctx context.Context, id types.ID, fn func(*ActiveRide) error) error
}

type BookingSource interface {
	ActiveForDriverOn(ctx context.Context, driverID types.ID, date time.Time) ([]booking.Booking, error)
}

type AdminSource interface {
	AdminIDs(ctx context.Context) ([]types.ID, error)
}

// Tracker starts and stops live location tracking for the ride's driver.
type Tracker interface {
	StartTracking(ctx context.Context, driverID, rideID types.ID) (location.Session, error)
	StopTracking(ctx context.Context, driverID types.ID) error
}

type Deps struct {
	Bookings BookingSource
	Admins   AdminSource
	Notifier notification.Dispatcher
	Tracker  Tracker
	Log      *zap.Logger
}

type Service struct {
	store    store
	bookings BookingSource
	admins   AdminSource
	notifier notification.Dispatcher
	tracker  Tracker
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store store, deps Deps) *Service {
	return &Service{
		store:    store,
		bookings: deps.Bookings,
		admins:   deps.Admins,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		log:      logger.OrNop(deps.Log),
		now:      time.Now,
	}
}

// StartShift opens the driver's ride for date. Starting again returns the existing ride.
func (s *Service) StartShift(ctx context.Context, driverID types.ID, date time.Time) (*ActiveRide, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	day := types.Day(date)
	id := RideID(driverID, day)

	existing, err := s.store.Get(ctx, id)
	if err == nil {
		s.resumeTracking(ctx, existing)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	bookings, err := s.bookings.ActiveForDriverOn(ctx, driverID, day)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, ErrNoBookings
	}
	r := NewActiveRide(driverID, day, bookings, s.now())
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, errExists) {
			existing, err := s.store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			s.resumeTracking(ctx, existing)
			return existing, nil
		}
		return nil, err
	}
	s.startTracking(ctx, r)
	return r, nil
}

// resumeTracking reopens the in-memory session of an unfinished ride, e.g. after a restart.
func (s *Service) resumeTracking(ctx context.Context, r *ActiveRide) {
	if !r.Completed() {
		s.startTracking(ctx, r)
	}
}

type StatusCommand struct {
	RideID   types.ID
	DriverID types.ID
	ChildID  types.ID
	Status   ChildStatus
}

// UpdateChildStatus commits one attendance change and then notifies the parents concerned.
func (s *Service) UpdateChildStatus(ctx context.Context, cmd StatusCommand) (*ActiveRide, error) {
	if cmd.RideID == "" || cmd.ChildID == "" || cmd.Status == "" {
		return nil, ErrBadRequest
	}
	r, err := s.store.Update(ctx, cmd.RideID, func(r *ActiveRide) error {
		if r.DriverID != cmd.DriverID {
			return ErrForbidden
		}
		return r.SetChildStatus(cmd.ChildID, cmd.Status, s.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.AttendanceTransitions.WithLabelValues(string(cmd.Status)).Inc()

	if c, ok := r.Child(cmd.ChildID); ok {
		notification.Fanout(ctx, s.notifier, s.log, attendanceNotice(r, c))
	}
	if r.Completed() {
		s.finish(ctx, r)
	}
	return r, nil
}

func (s *Service) CompleteEarly(ctx context.Context, rideID, driverID types.ID) (*ActiveRide, error) {
	r, err := s.store.Update(ctx, rideID, func(r *ActiveRide) error {
		if r.DriverID != driverID {
			return ErrForbidden
		}
		return r.CompleteEarly(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, r)
	return r, nil
}

func (s *Service) finish(ctx context.Context, r *ActiveRide) {
	cmds := make([]notification.Command, 0, len(r.Children))
	for _, parentID := range r.ParentIDs() {
		cmds = append(cmds, notification.Command{
			RecipientID: parentID,
			Kind:        notification.KindTripCompleted,
			Title:       "Trip completed",
			Body:        fmt.Sprintf("Today's school ride (%s) has finished.", r.Date),
			Data:        map[string]string{"ride_id": string(r.ID)},
		})
	}
	notification.Fanout(ctx, s.notifier, s.log, cmds...)
	if s.tracker != nil {
		if err := s.tracker.StopTracking(ctx, r.DriverID); err != nil {
			s.log.Warn("stop tracking failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
	}
}

func (s *Service) startTracking(ctx context.Context, r *ActiveRide) {
	if s.tracker == nil {
		return
	}
	if _, err := s.tracker.StartTracking(ctx, r.DriverID, r.ID); err != nil {
		s.log.Warn("start tracking failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
	}
}

type EmergencyCommand struct {
	RideID   types.ID
	DriverID types.ID
	Message  string
	Point    types.Point
}

// RaiseEmergency records the emergency on the ride and alerts every parent on it and all admins.
// It is accepted on completed rides as well.
func (s *Service) RaiseEmergency(ctx context.Context, cmd EmergencyCommand) (*ActiveRide, error) {
	if cmd.RideID == "" || cmd.Message == "" {
		return nil, ErrBadRequest
	}
	r, err := s.store.Update(ctx, cmd.RideID, func(r *ActiveRide) error {
		if r.DriverID != cmd.DriverID {
			return ErrForbidden
		}
		r.Emergencies = append(r.Emergencies, Emergency{Message: cmd.Message, Point: cmd.Point, RaisedAt: s.now()})
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	recipients := r.ParentIDs()
	if s.admins != nil {
		admins, err := s.admins.AdminIDs(ctx)
		if err != nil {
			s.log.Warn("load admins for emergency failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
		recipients = append(recipients, admins...)
	}
	data := map[string]string{
		"ride_id":   string(r.ID),
		"driver_id": string(r.DriverID),
		"lat":       fmt.Sprintf("%.6f", cmd.Point.Lat),
		"lng":       fmt.Sprintf("%.6f", cmd.Point.Lng),
	}
	cmds := make([]notification.Command, 0, len(recipients))
	for _, id := range recipients {
		cmds = append(cmds, notification.Command{
			RecipientID: id,
			Kind:        notification.KindEmergency,
			Title:       "Emergency on school ride",
			Body:        cmd.Message,
			Data:        data,
		})
	}
	if s.notifier != nil {
		if failed := len(cmds) - notification.Fanout(ctx, s.notifier, s.log, cmds...); failed > 0 {
			s.log.Error("emergency alerts not fully delivered",
				zap.String("ride_id", string(r.ID)), zap.Int("failed", failed), zap.Int("recipients", len(cmds)))
		}
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*ActiveRide, error) {
	return s.store.Get(ctx, id)
}

// GetFor loads a ride visible to the caller: its driver or a parent with a child on it.
func (s *Service) GetFor(ctx context.Context, id, callerID types.ID) (*ActiveRide, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DriverID != callerID && !r.HasParent(callerID) {
		return nil, ErrForbidden
	}
	return r, nil
}

// Watch streams ride snapshots to fn; each call carries the latest full state.
func (s *Service) Watch(ctx context.Context, id types.ID, fn func(*ActiveRide) error) error {
	return s.store.Watch(ctx, id, fn)
}

func attendanceNotice(r *ActiveRide, c *RideChild) notification.Command {
	var title, body string
	switch c.Status {
	case ChildPickedUp:
		title, body = "Picked up", "Your child has been picked up."
	case ChildAbsent:
		title, body = "Marked absent", "Your child was marked absent for today's ride."
	default:
		title, body = "Dropped off", "Your child has been dropped off at school."
	}
	return notification.Command{
		RecipientID: c.ParentID,
		Kind:        notification.KindAttendance,
		Title:       title,
		Body:        body,
		Data: map[string]string{
			"ride_id":  string(r.ID),
			"child_id": string(c.ChildID),
			"status":   string(c.Status),
		},
	}
}
