// README: Booking store backed by PostgreSQL.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const bookingColumns = `id, parent_id, driver_id, child_id,
	pickup_lat, pickup_lng, pickup_address, dropoff_lat, dropoff_lng, dropoff_address,
	ride_date, end_date, recurring_days, daily_time, route_km,
	status, status_version, cancelled_dates, total_price, currency,
	created_at, confirmed_at, completed_at, cancelled_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b       Booking
		endDate *time.Time
	)
	err := row.Scan(&b.ID, &b.ParentID, &b.DriverID, &b.ChildID,
		&b.Pickup.Lat, &b.Pickup.Lng, &b.Pickup.Address,
		&b.Dropoff.Lat, &b.Dropoff.Lng, &b.Dropoff.Address,
		&b.RideDate, &endDate, &b.RecurringDays, &b.DailyTime, &b.RouteKm,
		&b.Status, &b.StatusVersion, &b.CancelledDates, &b.TotalPrice, &b.Currency,
		&b.CreatedAt, &b.ConfirmedAt, &b.CompletedAt, &b.CancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if endDate != nil {
		b.EndDate = *endDate
	} else {
		b.EndDate = b.RideDate
	}
	return &b, nil
}

func collect(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, b *Booking) error {
	cancelled := b.CancelledDates
	if cancelled == nil {
		cancelled = []time.Time{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, parent_id, driver_id, child_id,
			pickup_lat, pickup_lng, pickup_address, dropoff_lat, dropoff_lng, dropoff_address,
			ride_date, end_date, recurring_days, daily_time, route_km,
			status, status_version, cancelled_dates, total_price, currency, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21
		)`,
		string(b.ID), string(b.ParentID), string(b.DriverID), string(b.ChildID),
		b.Pickup.Lat, b.Pickup.Lng, b.Pickup.Address,
		b.Dropoff.Lat, b.Dropoff.Lng, b.Dropoff.Address,
		b.RideDate, b.EndDate, b.RecurringDays, b.DailyTime, b.RouteKm,
		string(b.Status), b.StatusVersion, cancelled, b.TotalPrice, b.Currency, b.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
}

// UpdateStatus applies the transition only if nobody else changed the row since version.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
			status_version = status_version + 1,
			confirmed_at = CASE WHEN $1 = 'confirmed' THEN NOW() ELSE confirmed_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AddCancelledDate(ctx context.Context, id types.ID, date time.Time, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET cancelled_dates = array_append(cancelled_dates, $1::date),
			status_version = status_version + 1
		WHERE id = $2 AND status_version = $3`,
		date, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Extend(ctx context.Context, id types.ID, endDate time.Time, addDays int, addPrice int64, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET end_date = $1,
			recurring_days = recurring_days + $2,
			total_price = total_price + $3,
			status_version = status_version + 1
		WHERE id = $4 AND status = 'confirmed' AND status_version = $5`,
		endDate, addDays, addPrice, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_state_events (booking_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID), string(e.FromStatus), string(e.ToStatus), e.ActorType, actor, e.CreatedAt,
	)
	return err
}

func (s *Store) ListByParent(ctx context.Context, parentID types.ID) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE parent_id = $1 ORDER BY created_at DESC`, string(parentID))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID, status Status) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE driver_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY ride_date, daily_time`, string(driverID), string(status))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListConfirmedCovering returns the driver's confirmed bookings whose range covers date.
func (s *Store) ListConfirmedCovering(ctx context.Context, driverID types.ID, date time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE driver_id = $1 AND status = 'confirmed'
		  AND ride_date <= $2::date AND COALESCE(end_date, ride_date) >= $2::date
		ORDER BY daily_time`, string(driverID), date)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}
