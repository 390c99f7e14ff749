// README: Location store backed by Redis GEO (latest positions) and Postgres snapshots.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

const (
	driverGeoKey     = "location:drivers"
	latestKeyPattern = "location:latest:%s"
	latestTTL        = 12 * time.Hour
)

var ErrNoPosition = errors.New("no known position")

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// SetPosition stores the driver's latest point in the GEO set and the full
// position payload under a per-driver key.
func (s *Store) SetPosition(ctx context.Context, p Position) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(p.DriverID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	})
	pipe.Set(ctx, fmt.Sprintf(latestKeyPattern, p.DriverID), body, latestTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Position(ctx context.Context, driverID types.ID) (Position, error) {
	val, err := s.redis.Get(ctx, fmt.Sprintf(latestKeyPattern, driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, ErrNoPosition
	}
	if err != nil {
		return Position{}, err
	}
	var p Position
	if err := json.Unmarshal(val, &p); err != nil {
		return Position{}, err
	}
	return p, nil
}

func (s *Store) ClearPosition(ctx context.Context, driverID types.ID) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, driverGeoKey, string(driverID))
	pipe.Del(ctx, fmt.Sprintf(latestKeyPattern, driverID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_snapshots (driver_id, ride_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(snap.DriverID),
		string(snap.RideID),
		snap.Position.Lat,
		snap.Position.Lng,
		snap.RecordedAt,
	)
	return err
}
