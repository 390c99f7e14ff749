package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"schoolride/internal/types"
)

// RouteService answers driving distance and duration between two points.
type RouteService struct {
	api  API
	opts Options
}

func NewRouteService(api API, opts Options) *RouteService {
	return &RouteService{api: api, opts: opts}
}

// TravelEstimate returns the driving duration and distance in kilometres of the first route found.
func (s *RouteService) TravelEstimate(ctx context.Context, origin, destination types.Point) (time.Duration, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin).String(),
		Destination: latLng(destination).String(),
		Mode:        maps.TravelModeDriving,
		Language:    s.opts.Language,
		Region:      s.opts.Region,
	}

	routes, _, err := s.api.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, ErrNotFound
	}

	leg := routes[0].Legs[0]
	return leg.Duration, float64(leg.Distance.Meters) / 1000, nil
}

func (s *RouteService) RouteDistanceKm(ctx context.Context, origin, destination types.Point) (float64, error) {
	_, km, err := s.TravelEstimate(ctx, origin, destination)
	return km, err
}

func latLng(p types.Point) *maps.LatLng {
	return &maps.LatLng{Lat: p.Lat, Lng: p.Lng}
}
