// README: Payment service: upfront/balance charges, extension billing and the overdue-balance monitor.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/config"
	"schoolride/internal/logger"
	"schoolride/internal/metrics"
	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/notification"
	"schoolride/internal/types"
)

var (
	ErrNotFound      = errors.New("payment transaction not found")
	ErrBadRequest    = errors.New("bad request")
	ErrForbidden     = errors.New("not a party to this payment")
	ErrInvalidState  = errors.New("invalid payment state")
	ErrConflict      = errors.New("payment state conflict")
	ErrOverpayment   = errors.New("amount exceeds the outstanding total")
	ErrPaymentFailed = errors.New("payment failed")
)

type store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id types.ID) (*Transaction, error)
	GetByBooking(ctx context.Context, bookingID types.ID) (*Transaction, error)
	ListByParent(ctx context.Context, parentID types.ID) ([]Transaction, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Transaction, error)
	Save(ctx context.Context, t *Transaction, rec *Record) (bool, error)
}

type Bookings interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	Confirm(ctx context.Context, id types.ID) (*booking.Booking, error)
}

type Service struct {
	store    store
	gateway  Gateway
	bookings Bookings
	notifier notification.Dispatcher
	cfg      config.PaymentConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store store, gateway Gateway, bookings Bookings, notifier notification.Dispatcher, cfg config.PaymentConfig, log *zap.Logger) *Service {
	if cfg.MonitorTick <= 0 {
		cfg.MonitorTick = time.Hour
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		bookings: bookings,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

type CreateCommand struct {
	BookingID types.ID
	ParentID  types.ID
	Customer  Customer
}

type BalanceCommand struct {
	TransactionID types.ID
	ParentID      types.ID
	Customer      Customer
}

// CreateForBooking opens the transaction for a pending booking and charges the upfront part.
// A declined charge leaves the transaction failed; the transaction is returned together with
// ErrPaymentFailed. A failed transaction may be retried by calling this again.
func (s *Service) CreateForBooking(ctx context.Context, cmd CreateCommand) (*Transaction, error) {
	if cmd.BookingID == "" || cmd.ParentID == "" {
		return nil, ErrBadRequest
	}
	b, err := s.bookings.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.ParentID != cmd.ParentID {
		return nil, ErrForbidden
	}
	if b.Status != booking.StatusPending || b.TotalPrice <= 0 {
		return nil, ErrInvalidState
	}

	t, err := s.store.GetByBooking(ctx, b.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		t, err = s.open(ctx, b)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case t.Status != StatusFailed:
		return nil, ErrConflict
	}

	t, err = s.charge(ctx, t, KindUpfront, t.Upfront-t.UpfrontPaid, cmd.Customer)
	if err != nil {
		return t, err
	}

	if _, err := s.bookings.Confirm(ctx, b.ID); err != nil {
		s.log.Error("confirm booking after upfront payment failed",
			zap.String("booking_id", string(b.ID)), zap.String("transaction_id", string(t.ID)), zap.Error(err))
	}
	notification.Fanout(ctx, s.notifier, s.log, notification.Command{
		RecipientID: t.ParentID,
		Kind:        notification.KindPayment,
		Title:       "Upfront payment received",
		Body:        fmt.Sprintf("%s %d paid. Balance of %s %d due %s.", t.Currency, t.UpfrontPaid, t.Currency, t.Outstanding(), types.FormatDay(t.BalanceDueDate)),
		Data:        map[string]string{"transaction_id": string(t.ID), "booking_id": string(t.BookingID)},
	})
	return t, nil
}

func (s *Service) open(ctx context.Context, b *booking.Booking) (*Transaction, error) {
	split := NewSplit(b.TotalPrice, b.EndDate)
	now := s.now()
	currency := b.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	t := &Transaction{
		ID:             types.NewID(),
		BookingID:      b.ID,
		ParentID:       b.ParentID,
		DriverID:       b.DriverID,
		Total:          split.Total,
		Upfront:        split.Upfront,
		Balance:        split.Balance,
		BalanceDueDate: split.BalanceDueDate,
		Currency:       currency,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// PayBalance charges everything still outstanding; it also clears a suspension.
func (s *Service) PayBalance(ctx context.Context, cmd BalanceCommand) (*Transaction, error) {
	if cmd.TransactionID == "" || cmd.ParentID == "" {
		return nil, ErrBadRequest
	}
	t, err := s.store.Get(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.ParentID != cmd.ParentID {
		return nil, ErrForbidden
	}
	if (t.Status != StatusPartial && t.Status != StatusSuspended) || t.Outstanding() <= 0 {
		return nil, ErrInvalidState
	}
	t, err = s.charge(ctx, t, KindBalance, t.Outstanding(), cmd.Customer)
	if err != nil {
		return t, err
	}
	notification.Fanout(ctx, s.notifier, s.log, notification.Command{
		RecipientID: t.ParentID,
		Kind:        notification.KindPayment,
		Title:       "Balance paid",
		Body:        fmt.Sprintf("Thank you. %s %d received in full.", t.Currency, t.Paid()),
		Data:        map[string]string{"transaction_id": string(t.ID), "booking_id": string(t.BookingID)},
	})
	return t, nil
}

// charge makes one gateway attempt and persists its outcome. The returned transaction
// reflects the stored state even when the charge was declined.
func (s *Service) charge(ctx context.Context, t *Transaction, kind Kind, amount int64, customer Customer) (*Transaction, error) {
	if amount <= 0 {
		return t, ErrInvalidState
	}
	if amount > t.Outstanding() {
		return t, ErrOverpayment
	}
	res, gwErr := s.gateway.Charge(ctx, ChargeRequest{
		OrderID:  fmt.Sprintf("%s-%s-%d", t.ID, kind, t.Version),
		Amount:   amount,
		Currency: t.Currency,
		Customer: customer,
		Items:    fmt.Sprintf("School ride %s payment", kind),
	})
	succeeded := gwErr == nil && res.Success

	rec := &Record{
		ID:         types.NewID(),
		Kind:       kind,
		Breakdown:  NewBreakdown(amount),
		GatewayRef: res.TransactionID,
		Succeeded:  succeeded,
		Message:    res.Message,
		CreatedAt:  s.now(),
	}
	if gwErr != nil {
		rec.Message = gwErr.Error()
	}

	next := *t
	next.Records = append(append([]Record(nil), t.Records...), *rec)
	switch {
	case succeeded && kind == KindUpfront:
		next.UpfrontPaid += amount
		next.Status = DerivedStatus(next.Total, next.Paid())
	case succeeded:
		next.BalancePaid += amount
		next.Status = DerivedStatus(next.Total, next.Paid())
	case t.Paid() == 0:
		next.Status = StatusFailed
	}

	outcome := "declined"
	if succeeded {
		outcome = "succeeded"
	} else if gwErr != nil {
		outcome = "error"
	}
	metrics.PaymentsProcessed.WithLabelValues(string(kind), outcome).Inc()

	ok, err := s.store.Save(ctx, &next, rec)
	if err != nil || !ok {
		if succeeded {
			s.log.Error("charge captured but not recorded",
				zap.String("transaction_id", string(t.ID)), zap.String("gateway_ref", res.TransactionID),
				zap.Int64("amount", amount), zap.Error(err))
		}
		if err != nil {
			return t, err
		}
		return t, ErrConflict
	}
	next.Version++

	if !succeeded {
		if gwErr != nil {
			return &next, fmt.Errorf("%w: %w", ErrPaymentFailed, gwErr)
		}
		return &next, fmt.Errorf("%w: %s", ErrPaymentFailed, res.Message)
	}
	return &next, nil
}

// AddExtension grows the balance by an extension price and moves the due date with the
// booking's new end date.
func (s *Service) AddExtension(ctx context.Context, bookingID types.ID, amount int64) error {
	if bookingID == "" || amount < 0 {
		return ErrBadRequest
	}
	if amount == 0 {
		return nil
	}
	t, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if t.Status == StatusFailed || t.Status == StatusPending {
		return ErrInvalidState
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	next := *t
	next.Total += amount
	next.Balance += amount
	next.BalanceDueDate = NewSplit(next.Total, b.EndDate).BalanceDueDate
	if next.Status != StatusSuspended {
		next.Status = DerivedStatus(next.Total, next.Paid())
	}
	ok, err := s.store.Save(ctx, &next, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// GetFor loads a transaction visible to the caller: its parent or its driver.
func (s *Service) GetFor(ctx context.Context, id, callerID types.ID) (*Transaction, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ParentID != callerID && t.DriverID != callerID {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *Service) ListByParent(ctx context.Context, parentID types.ID) ([]Transaction, error) {
	if parentID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByParent(ctx, parentID)
}

// SuspendOverdue suspends every partial transaction past its balance due date and tells the parent.
func (s *Service) SuspendOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.store.ListOverdue(ctx, types.Day(now))
	if err != nil {
		return 0, err
	}
	suspended := 0
	for i := range overdue {
		t := overdue[i]
		if !t.Overdue(now) {
			continue
		}
		t.Status = StatusSuspended
		ok, err := s.store.Save(ctx, &t, nil)
		if err != nil {
			s.log.Warn("suspend overdue transaction failed", zap.String("transaction_id", string(t.ID)), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		suspended++
		notification.Fanout(ctx, s.notifier, s.log, notification.Command{
			RecipientID: t.ParentID,
			Kind:        notification.KindBalanceOverdue,
			Title:       "Balance overdue",
			Body:        fmt.Sprintf("%s %d was due on %s.", t.Currency, t.Outstanding(), types.FormatDay(t.BalanceDueDate)),
			Data:        map[string]string{"transaction_id": string(t.ID), "booking_id": string(t.BookingID)},
		})
	}
	return suspended, nil
}

func (s *Service) RunBalanceDueMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MonitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SuspendOverdue(ctx)
			if err != nil {
				s.log.Error("balance due sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("suspended overdue transactions", zap.Int("count", n))
			}
		}
	}
}
