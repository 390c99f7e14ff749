// README: Booking service: driver selection, status transitions, date exceptions and extensions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/metrics"
	"schoolride/internal/modules/child"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/matching"
	"schoolride/internal/modules/notification"
	"schoolride/internal/modules/pricing"
	"schoolride/internal/types"
)

var (
	ErrInvalidState         = errors.New("invalid state transition")
	ErrNotFound             = errors.New("booking not found")
	ErrConflict             = errors.New("booking state conflict")
	ErrBadRequest           = errors.New("bad request")
	ErrForbidden            = errors.New("not a party to this booking")
	ErrIncompatibleRoute    = errors.New("driver route is not compatible with the child's trip")
	ErrConfirmationRequired = errors.New("route match needs confirmation")
	ErrNoSeats              = errors.New("driver has no available seats")
	ErrDriverUnavailable    = errors.New("driver is not accepting bookings")
)

const maxExtensionDays = 200

type store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AddCancelledDate(ctx context.Context, id types.ID, date time.Time, version int) (bool, error)
	Extend(ctx context.Context, id types.ID, endDate time.Time, addDays int, addPrice int64, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListByParent(ctx context.Context, parentID types.ID) ([]Booking, error)
	ListByDriver(ctx context.Context, driverID types.ID, status Status) ([]Booking, error)
	ListConfirmedCovering(ctx context.Context, driverID types.ID, date time.Time) ([]Booking, error)
}

type ChildSource interface {
	Get(ctx context.Context, id types.ID) (*child.Child, error)
}

type DriverSource interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	Availability(ctx context.Context, id types.ID) (driver.Availability, error)
}

type Pricer interface {
	Quote(ctx context.Context, req pricing.TripRequest) (pricing.Quote, error)
	FallbackDaily(ctx context.Context, routeKm float64) int64
}

// Router measures the driven distance between two points.
type Router interface {
	RouteDistanceKm(ctx context.Context, origin, dest types.Point) (float64, error)
}

// ExtensionBiller adds an extension's price to the booking's outstanding balance.
type ExtensionBiller interface {
	AddExtension(ctx context.Context, bookingID types.ID, amount int64) error
}

type Service struct {
	store    store
	children ChildSource
	drivers  DriverSource
	pricer   Pricer
	router   Router
	notifier notification.Dispatcher
	biller   ExtensionBiller
	log      *zap.Logger
	now      func() time.Time
}

type Deps struct {
	Children ChildSource
	Drivers  DriverSource
	Pricer   Pricer
	Router   Router
	Notifier notification.Dispatcher
	Log      *zap.Logger
}

func NewService(store store, deps Deps) *Service {
	return &Service{
		store:    store,
		children: deps.Children,
		drivers:  deps.Drivers,
		pricer:   deps.Pricer,
		router:   deps.Router,
		notifier: deps.Notifier,
		log:      logger.OrNop(deps.Log),
		now:      time.Now,
	}
}

// SetExtensionBiller wires billing after construction; payment depends on this service.
func (s *Service) SetExtensionBiller(b ExtensionBiller) {
	s.biller = b
}

type CreateCommand struct {
	ParentID  types.ID
	ChildID   types.ID
	DriverID  types.ID
	RideDate  time.Time
	EndDate   time.Time
	DailyTime string
	// ConfirmWarning acknowledges a Good or Fair route match.
	ConfirmWarning bool
}

type Created struct {
	Booking *Booking       `json:"booking"`
	Match   matching.Match `json:"match"`
	Quote   pricing.Quote  `json:"quote"`
}

type CancelCommand struct {
	BookingID types.ID
	ActorID   types.ID
	ActorType string
}

type CancelDateCommand struct {
	BookingID types.ID
	ParentID  types.ID
	Date      time.Time
}

type ExtendCommand struct {
	BookingID      types.ID
	ParentID       types.ID
	AdditionalDays int
}

type Extended struct {
	Booking     *Booking    `json:"booking"`
	ExtendPrice types.Money `json:"extend_price"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Created, error) {
	if err := s.validateCreate(&cmd); err != nil {
		return nil, err
	}
	c, err := s.children.Get(ctx, cmd.ChildID)
	if err != nil {
		return nil, err
	}
	if c.ParentID != cmd.ParentID {
		return nil, ErrForbidden
	}
	d, err := s.drivers.Get(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if !d.Bookable() {
		return nil, ErrDriverUnavailable
	}

	route := matching.RouteOf(c)
	match := matching.Classify(route, d.Routes)
	if !match.Tier.Listable() {
		return nil, ErrIncompatibleRoute
	}
	if match.Tier.RequiresConfirmation() && !cmd.ConfirmWarning {
		return nil, ErrConfirmationRequired
	}

	// Read without a lock; concurrent creates may both take the last seat.
	avail, err := s.drivers.Availability(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if avail.AvailableSeats <= 0 {
		return nil, ErrNoSeats
	}

	days := pricing.CountSchoolDays(cmd.RideDate, cmd.EndDate)
	if days == 0 {
		return nil, ErrBadRequest
	}
	routeKm := s.routeKm(ctx, route)
	quote, err := s.pricer.Quote(ctx, pricing.TripRequest{
		PickupKm:        match.PickupKm,
		SchoolKm:        match.SchoolKm,
		RouteKm:         routeKm,
		SchoolDays:      days,
		AvailabilityPct: avail.Percent(),
	})
	if err != nil {
		return nil, fmt.Errorf("quote booking: %w", err)
	}

	now := s.now()
	b := &Booking{
		ID:            types.NewID(),
		ParentID:      cmd.ParentID,
		DriverID:      cmd.DriverID,
		ChildID:       cmd.ChildID,
		Pickup:        c.TripStartLocation,
		Dropoff:       c.SchoolLocation,
		RideDate:      cmd.RideDate,
		EndDate:       cmd.EndDate,
		RecurringDays: days,
		DailyTime:     cmd.DailyTime,
		RouteKm:       routeKm,
		Status:        StatusPending,
		TotalPrice:    quote.Total,
		Currency:      quote.Currency,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusNone, StatusPending, ActorParent, &cmd.ParentID)
	metrics.BookingsCreated.WithLabelValues(string(match.Tier)).Inc()

	notification.Fanout(ctx, s.notifier, s.log, notification.Command{
		RecipientID: b.DriverID,
		Kind:        notification.KindBookingRequest,
		Title:       "New booking request",
		Body:        fmt.Sprintf("%s from %s, %d school days", c.FullName, types.FormatDay(b.RideDate), days),
		Data:        map[string]string{"booking_id": string(b.ID), "child_id": string(c.ID)},
	})
	return &Created{Booking: b, Match: match, Quote: quote}, nil
}

func (s *Service) validateCreate(cmd *CreateCommand) error {
	if cmd.ParentID == "" || cmd.ChildID == "" || cmd.DriverID == "" || cmd.RideDate.IsZero() {
		return ErrBadRequest
	}
	cmd.RideDate = types.Day(cmd.RideDate)
	if cmd.EndDate.IsZero() {
		cmd.EndDate = cmd.RideDate
	}
	cmd.EndDate = types.Day(cmd.EndDate)
	if cmd.EndDate.Before(cmd.RideDate) || cmd.RideDate.Before(types.Day(s.now())) {
		return ErrBadRequest
	}
	cmd.DailyTime = strings.TrimSpace(cmd.DailyTime)
	if cmd.DailyTime != "" {
		if _, err := time.Parse("15:04", cmd.DailyTime); err != nil {
			return ErrBadRequest
		}
	}
	return nil
}

// routeKm returns 0 when no router is configured or it fails; pricing then uses the leg sum.
func (s *Service) routeKm(ctx context.Context, route matching.ChildRoute) float64 {
	if s.router == nil {
		return 0
	}
	km, err := s.router.RouteDistanceKm(ctx, route.Pickup, route.School)
	if err != nil {
		s.log.Warn("route distance unavailable; pricing by straight-line legs", zap.Error(err))
		return 0
	}
	return km
}

// Confirm marks a pending booking confirmed once its upfront payment has succeeded.
func (s *Service) Confirm(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := s.transition(ctx, id, StatusConfirmed, ActorSystem, nil)
	if err != nil {
		return nil, err
	}
	notification.Fanout(ctx, s.notifier, s.log,
		statusNotice(b, b.ParentID, "Booking confirmed", "Your school ride booking is confirmed."),
		statusNotice(b, b.DriverID, "Booking confirmed", "A parent has paid and the booking is confirmed."),
	)
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	if cmd.BookingID == "" || cmd.ActorID == "" {
		return nil, ErrBadRequest
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if cmd.ActorType != ActorAdmin && !b.Involves(cmd.ActorID) {
		return nil, ErrForbidden
	}
	b, err = s.transitionFrom(ctx, b, StatusCancelled, cmd.ActorType, &cmd.ActorID)
	if err != nil {
		return nil, err
	}
	var cmds []notification.Command
	if cmd.ActorID != b.ParentID {
		cmds = append(cmds, statusNotice(b, b.ParentID, "Booking cancelled", "Your school ride booking was cancelled."))
	}
	if cmd.ActorID != b.DriverID {
		cmds = append(cmds, statusNotice(b, b.DriverID, "Booking cancelled", "A booking with you was cancelled."))
	}
	notification.Fanout(ctx, s.notifier, s.log, cmds...)
	return b, nil
}

func (s *Service) Complete(ctx context.Context, id, actorID types.ID, actorType string) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorType != ActorAdmin && b.DriverID != actorID {
		return nil, ErrForbidden
	}
	b, err = s.transitionFrom(ctx, b, StatusCompleted, actorType, &actorID)
	if err != nil {
		return nil, err
	}
	notification.Fanout(ctx, s.notifier, s.log,
		statusNotice(b, b.ParentID, "Booking completed", "Your school ride booking has finished."))
	return b, nil
}

func (s *Service) transition(ctx context.Context, id types.ID, to Status, actorType string, actorID *types.ID) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transitionFrom(ctx, b, to, actorType, actorID)
}

func (s *Service) transitionFrom(ctx context.Context, b *Booking, to Status, actorType string, actorID *types.ID) (*Booking, error) {
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, to, b.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	from := b.Status
	now := s.now()
	b.Status = to
	b.StatusVersion++
	switch to {
	case StatusConfirmed:
		b.ConfirmedAt = &now
	case StatusCompleted:
		b.CompletedAt = &now
	case StatusCancelled:
		b.CancelledAt = &now
	}
	s.appendEvent(ctx, b.ID, from, to, actorType, actorID)
	return b, nil
}

// CancelDate skips one school day of a booking. Cancelling an already skipped date is a no-op.
func (s *Service) CancelDate(ctx context.Context, cmd CancelDateCommand) (*Booking, error) {
	if cmd.BookingID == "" || cmd.ParentID == "" || cmd.Date.IsZero() {
		return nil, ErrBadRequest
	}
	date := types.Day(cmd.Date)
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.ParentID != cmd.ParentID {
		return nil, ErrForbidden
	}
	if !b.HoldsSeat() {
		return nil, ErrInvalidState
	}
	if !b.InRange(date) || !types.IsWeekday(date) || date.Before(types.Day(s.now())) {
		return nil, ErrBadRequest
	}
	if b.IsCancelledOn(date) {
		return b, nil
	}
	ok, err := s.store.AddCancelledDate(ctx, b.ID, date, b.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	b.CancelledDates = append(b.CancelledDates, date)
	b.StatusVersion++
	notification.Fanout(ctx, s.notifier, s.log, notification.Command{
		RecipientID: b.DriverID,
		Kind:        notification.KindBookingStatus,
		Title:       "Ride skipped",
		Body:        fmt.Sprintf("No pickup needed on %s.", types.FormatDay(date)),
		Data:        map[string]string{"booking_id": string(b.ID), "date": types.FormatDay(date)},
	})
	return b, nil
}

// Extend pushes the end date forward by AdditionalDays school days and prices
// them pro rata against the existing booking.
func (s *Service) Extend(ctx context.Context, cmd ExtendCommand) (*Extended, error) {
	if cmd.BookingID == "" || cmd.ParentID == "" || cmd.AdditionalDays <= 0 || cmd.AdditionalDays > maxExtensionDays {
		return nil, ErrBadRequest
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.ParentID != cmd.ParentID {
		return nil, ErrForbidden
	}
	if b.Status != StatusConfirmed {
		return nil, ErrInvalidState
	}
	price := pricing.ExtendPrice(b.TotalPrice, b.RecurringDays, cmd.AdditionalDays, s.pricer.FallbackDaily(ctx, b.RouteKm))
	end := pricing.AddSchoolDays(b.EndDate, cmd.AdditionalDays)

	ok, err := s.store.Extend(ctx, b.ID, end, cmd.AdditionalDays, price, b.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	b.EndDate = end
	b.RecurringDays += cmd.AdditionalDays
	b.TotalPrice += price
	b.StatusVersion++

	if s.biller != nil {
		if err := s.biller.AddExtension(ctx, b.ID, price); err != nil {
			s.log.Error("bill booking extension failed",
				zap.String("booking_id", string(b.ID)), zap.Int64("amount", price), zap.Error(err))
		}
	}
	notification.Fanout(ctx, s.notifier, s.log, notification.Command{
		RecipientID: b.DriverID,
		Kind:        notification.KindBookingStatus,
		Title:       "Booking extended",
		Body:        fmt.Sprintf("Extended by %d school days until %s.", cmd.AdditionalDays, types.FormatDay(end)),
		Data:        map[string]string{"booking_id": string(b.ID)},
	})
	return &Extended{Booking: b, ExtendPrice: types.Money{Amount: price, Currency: b.Currency}}, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByParent(ctx context.Context, parentID types.ID) ([]Booking, error) {
	if parentID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByParent(ctx, parentID)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID, status Status) ([]Booking, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByDriver(ctx, driverID, status)
}

// ActiveForDriverOn returns the bookings the driver must serve on date, ordered by daily time.
func (s *Service) ActiveForDriverOn(ctx context.Context, driverID types.ID, date time.Time) ([]Booking, error) {
	date = types.Day(date)
	covering, err := s.store.ListConfirmedCovering(ctx, driverID, date)
	if err != nil {
		return nil, err
	}
	out := covering[:0]
	for _, b := range covering {
		if b.Occurs(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorType string, actorID *types.ID) {
	if err := s.store.AppendEvent(ctx, &Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	}); err != nil {
		s.log.Warn("append booking event failed", zap.String("booking_id", string(id)), zap.Error(err))
	}
}

func statusNotice(b *Booking, to types.ID, title, body string) notification.Command {
	return notification.Command{
		RecipientID: to,
		Kind:        notification.KindBookingStatus,
		Title:       title,
		Body:        body,
		Data:        map[string]string{"booking_id": string(b.ID), "status": string(b.Status)},
	}
}
