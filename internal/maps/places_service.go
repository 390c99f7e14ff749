package maps

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"schoolride/internal/logger"
	"schoolride/internal/types"
)

// Place represents a simplified nearby-search result.
type Place struct {
	Name    string      `json:"name"`
	Address string      `json:"address"`
	PlaceID string      `json:"place_id"`
	Point   types.Point `json:"point"`
	Rating  float32     `json:"rating"`
}

type Prediction struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}

const maxNearbyRadiusM = 50000

// PlacesService wraps geocoding, nearby search and autocomplete. Geocoding answers are cached.
type PlacesService struct {
	api   API
	cache *Cache
	opts  Options
	log   *zap.Logger
}

func NewPlacesService(api API, cache *Cache, opts Options, log *zap.Logger) *PlacesService {
	return &PlacesService{api: api, cache: cache, opts: opts, log: logger.OrNop(log)}
}

func (s *PlacesService) Geocode(ctx context.Context, address string) (types.Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Location{}, ErrBadRequest
	}
	key := "geocode:" + strings.ToLower(address)
	var loc types.Location
	if s.cached(ctx, key, &loc) {
		return loc, nil
	}

	results, err := s.api.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   strings.ToLower(s.opts.Region),
		Language: s.opts.Language,
	})
	if err != nil {
		return types.Location{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return types.Location{}, ErrNotFound
	}
	loc = types.Location{
		Lat:     results[0].Geometry.Location.Lat,
		Lng:     results[0].Geometry.Location.Lng,
		Address: results[0].FormattedAddress,
	}
	s.store(ctx, key, loc)
	return loc, nil
}

func (s *PlacesService) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	if !p.Valid() {
		return "", ErrBadRequest
	}
	key := fmt.Sprintf("reverse:%.5f,%.5f", p.Lat, p.Lng)
	var address string
	if s.cached(ctx, key, &address) {
		return address, nil
	}

	results, err := s.api.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   latLng(p),
		Language: s.opts.Language,
	})
	if err != nil {
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNotFound
	}
	address = results[0].FormattedAddress
	s.store(ctx, key, address)
	return address, nil
}

// NearbySearch finds places matching keyword within radiusM metres of p.
func (s *PlacesService) NearbySearch(ctx context.Context, keyword string, p types.Point, radiusM int) ([]Place, error) {
	if !p.Valid() || radiusM <= 0 {
		return nil, ErrBadRequest
	}
	if radiusM > maxNearbyRadiusM {
		radiusM = maxNearbyRadiusM
	}
	resp, err := s.api.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: latLng(p),
		Radius:   uint(radiusM),
		Keyword:  strings.TrimSpace(keyword),
		Language: s.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	results := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		address := r.FormattedAddress
		if address == "" {
			address = r.Vicinity
		}
		results = append(results, Place{
			Name:    r.Name,
			Address: address,
			PlaceID: r.PlaceID,
			Point:   types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Rating:  r.Rating,
		})
	}
	return results, nil
}

// Predict returns autocomplete predictions restricted to the configured region.
func (s *PlacesService) Predict(ctx context.Context, input string, token maps.PlaceAutocompleteSessionToken) ([]Prediction, error) {
	req := &maps.PlaceAutocompleteRequest{
		Input:        input,
		Language:     s.opts.Language,
		SessionToken: token,
	}
	if s.opts.Region != "" {
		req.Components = map[maps.Component][]string{maps.ComponentCountry: {strings.ToLower(s.opts.Region)}}
	}
	resp, err := s.api.PlaceAutocomplete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("autocomplete api error: %w", err)
	}
	out := make([]Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, Prediction{Description: p.Description, PlaceID: p.PlaceID})
	}
	return out, nil
}

func (s *PlacesService) cached(ctx context.Context, key string, out interface{}) bool {
	hit, err := s.cache.Get(ctx, key, out)
	if err != nil {
		s.log.Warn("maps cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *PlacesService) store(ctx context.Context, key string, v interface{}) {
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.log.Warn("maps cache write failed", zap.String("key", key), zap.Error(err))
	}
}
