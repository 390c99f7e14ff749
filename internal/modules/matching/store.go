// README: Matching store backed by a Redis GEO index of driver route start points.
package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

const routeStartGeoKey = "matching:routes:start"

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) IndexRoute(ctx context.Context, driverID types.ID, start types.Point) error {
	return s.redis.GeoAdd(ctx, routeStartGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: start.Lng,
		Latitude:  start.Lat,
	}).Err()
}

func (s *Store) RemoveRoute(ctx context.Context, driverID types.ID) error {
	return s.redis.ZRem(ctx, routeStartGeoKey, string(driverID)).Err()
}

// NearbyRouteStarts returns drivers whose route starts within radiusKm of p, nearest first.
func (s *Store) NearbyRouteStarts(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, routeStartGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
