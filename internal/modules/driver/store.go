// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"

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

const driverColumns = `id, vehicle_type, vehicle_capacity, vehicle_plate, vehicle_model,
	route_start_lat, route_start_lng, route_start_address,
	route_end_lat, route_end_lng, route_end_address,
	status, booking_open, updated_at`

func scanDriver(row pgx.Row) (*Driver, error) {
	var (
		d                      Driver
		sLat, sLng, eLat, eLng sql.NullFloat64
		sAddr, eAddr           sql.NullString
	)
	err := row.Scan(&d.ID, &d.Vehicle.Type, &d.Vehicle.Capacity, &d.Vehicle.Plate, &d.Vehicle.Model,
		&sLat, &sLng, &sAddr, &eLat, &eLng, &eAddr, &d.Status, &d.BookingOpen, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sLat.Valid && sLng.Valid {
		d.Routes.StartPoint = &types.Location{Lat: sLat.Float64, Lng: sLng.Float64, Address: sAddr.String}
	}
	if eLat.Valid && eLng.Valid {
		d.Routes.EndPoint = &types.Location{Lat: eLat.Float64, Lng: eLng.Float64, Address: eAddr.String}
	}
	return &d, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return scanDriver(s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id)))
}

func (s *Store) UpsertVehicle(ctx context.Context, id types.ID, v Vehicle) (*Driver, error) {
	return scanDriver(s.db.QueryRow(ctx, `
		INSERT INTO drivers (id, vehicle_type, vehicle_capacity, vehicle_plate, vehicle_model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			vehicle_type = EXCLUDED.vehicle_type,
			vehicle_capacity = EXCLUDED.vehicle_capacity,
			vehicle_plate = EXCLUDED.vehicle_plate,
			vehicle_model = EXCLUDED.vehicle_model,
			updated_at = NOW()
		RETURNING `+driverColumns,
		string(id), v.Type, v.Capacity, v.Plate, v.Model,
	))
}

func (s *Store) UpsertRoutes(ctx context.Context, id types.ID, r Routes) (*Driver, error) {
	return scanDriver(s.db.QueryRow(ctx, `
		INSERT INTO drivers (id, route_start_lat, route_start_lng, route_start_address,
			route_end_lat, route_end_lng, route_end_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			route_start_lat = EXCLUDED.route_start_lat,
			route_start_lng = EXCLUDED.route_start_lng,
			route_start_address = EXCLUDED.route_start_address,
			route_end_lat = EXCLUDED.route_end_lat,
			route_end_lng = EXCLUDED.route_end_lng,
			route_end_address = EXCLUDED.route_end_address,
			updated_at = NOW()
		RETURNING `+driverColumns,
		string(id),
		r.StartPoint.Lat, r.StartPoint.Lng, r.StartPoint.Address,
		r.EndPoint.Lat, r.EndPoint.Lng, r.EndPoint.Address,
	))
}

func (s *Store) SetBookingOpen(ctx context.Context, id types.ID, open bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET booking_open = $2, updated_at = NOW() WHERE id = $1`, string(id), open)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus creates the driver row when an admin decides before the driver has filled in any details.
func (s *Store) SetStatus(ctx context.Context, id types.ID, status string, bookingOpen bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, status) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			booking_open = drivers.booking_open AND $3,
			updated_at = NOW()`, string(id), status, bookingOpen)
	return err
}

func (s *Store) ListBookable(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+driverColumns+` FROM drivers
		WHERE status = 'approved' AND booking_open
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CountActiveBookings counts bookings holding a seat: pending or confirmed.
func (s *Store) CountActiveBookings(ctx context.Context, id types.ID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE driver_id = $1 AND status IN ('pending', 'confirmed')`, string(id)).Scan(&n)
	return n, err
}
