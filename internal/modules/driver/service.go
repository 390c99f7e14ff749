// README: Driver service: vehicle and route management, admin approval, seat availability.
package driver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/modules/profile"
	"schoolride/internal/types"
)

var (
	ErrNotFound     = errors.New("driver not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("invalid driver state")
)

type store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	UpsertVehicle(ctx context.Context, id types.ID, v Vehicle) (*Driver, error)
	UpsertRoutes(ctx context.Context, id types.ID, r Routes) (*Driver, error)
	SetBookingOpen(ctx context.Context, id types.ID, open bool) error
	SetStatus(ctx context.Context, id types.ID, status string, bookingOpen bool) error
	ListBookable(ctx context.Context) ([]Driver, error)
	CountActiveBookings(ctx context.Context, id types.ID) (int, error)
}

// RouteIndexer keeps the geo index of route start points in sync.
type RouteIndexer interface {
	IndexRoute(ctx context.Context, driverID types.ID, start types.Point) error
	RemoveRoute(ctx context.Context, driverID types.ID) error
}

// ProfileStatusSetter mirrors approval decisions onto the account profile.
type ProfileStatusSetter interface {
	SetStatus(ctx context.Context, id types.ID, status profile.Status) error
}

type Service struct {
	store    store
	indexer  RouteIndexer
	profiles ProfileStatusSetter
	log      *zap.Logger
}

func NewService(store store, indexer RouteIndexer, profiles ProfileStatusSetter, log *zap.Logger) *Service {
	return &Service{store: store, indexer: indexer, profiles: profiles, log: logger.OrNop(log)}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) UpdateVehicle(ctx context.Context, id types.ID, v Vehicle) (*Driver, error) {
	v.Type = strings.TrimSpace(v.Type)
	v.Plate = strings.TrimSpace(v.Plate)
	if id == "" || v.Type == "" || v.Capacity <= 0 {
		return nil, ErrBadRequest
	}
	return s.store.UpsertVehicle(ctx, id, v)
}

func (s *Service) UpdateRoutes(ctx context.Context, id types.ID, r Routes) (*Driver, error) {
	if id == "" || !r.Complete() || !r.StartPoint.Point().Valid() || !r.EndPoint.Point().Valid() {
		return nil, ErrBadRequest
	}
	d, err := s.store.UpsertRoutes(ctx, id, r)
	if err != nil {
		return nil, err
	}
	if d.Bookable() {
		s.index(ctx, d)
	}
	return d, nil
}

func (s *Service) SetBookingOpen(ctx context.Context, id types.ID, open bool) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if open && (d.Status != profile.StatusApproved || d.Vehicle.Capacity <= 0 || !d.Routes.Complete()) {
		return ErrInvalidState
	}
	if err := s.store.SetBookingOpen(ctx, id, open); err != nil {
		return err
	}
	d.BookingOpen = open
	if open {
		s.index(ctx, d)
	} else {
		s.unindex(ctx, id)
	}
	return nil
}

// SetStatus records an admin decision on the driver and mirrors it onto the profile.
// Suspending also closes bookings.
func (s *Service) SetStatus(ctx context.Context, id types.ID, status profile.Status) error {
	if !status.Valid() {
		return ErrBadRequest
	}
	if err := s.store.SetStatus(ctx, id, string(status), status == profile.StatusApproved); err != nil {
		return err
	}
	if status != profile.StatusApproved {
		s.unindex(ctx, id)
	}
	if s.profiles != nil {
		if err := s.profiles.SetStatus(ctx, id, status); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Approve(ctx context.Context, id types.ID) error {
	return s.SetStatus(ctx, id, profile.StatusApproved)
}

func (s *Service) ListBookable(ctx context.Context) ([]Driver, error) {
	return s.store.ListBookable(ctx)
}

// Availability counts seats held by pending and confirmed bookings. It does not lock,
// so two concurrent bookings can both observe the last seat.
func (s *Service) Availability(ctx context.Context, id types.ID) (Availability, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	booked, err := s.store.CountActiveBookings(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	return NewAvailability(d.Vehicle.Capacity, booked), nil
}

func (s *Service) index(ctx context.Context, d *Driver) {
	if s.indexer == nil || d.Routes.StartPoint == nil {
		return
	}
	if err := s.indexer.IndexRoute(ctx, d.ID, d.Routes.StartPoint.Point()); err != nil {
		s.log.Warn("index driver route failed", zap.String("driver_id", string(d.ID)), zap.Error(err))
	}
}

func (s *Service) unindex(ctx context.Context, id types.ID) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.RemoveRoute(ctx, id); err != nil {
		s.log.Warn("remove driver route failed", zap.String("driver_id", string(id)), zap.Error(err))
	}
}
