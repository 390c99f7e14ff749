// README: Matching service lists bookable drivers compatible with a child's route.
package matching

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"schoolride/internal/config"
	"schoolride/internal/logger"
	"schoolride/internal/modules/child"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/location"
	"schoolride/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type ChildSource interface {
	Get(ctx context.Context, id types.ID) (*child.Child, error)
}

type DriverSource interface {
	ListBookable(ctx context.Context) ([]driver.Driver, error)
	Availability(ctx context.Context, id types.ID) (driver.Availability, error)
}

type CandidateIndex interface {
	NearbyRouteStarts(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Service struct {
	children ChildSource
	drivers  DriverSource
	index    CandidateIndex
	cfg      config.MatchingConfig
	log      *zap.Logger
}

// NewService accepts a nil index; candidates are then screened in memory only.
func NewService(children ChildSource, drivers DriverSource, index CandidateIndex, cfg config.MatchingConfig, log *zap.Logger) *Service {
	if cfg.LegLimitKm <= 0 {
		cfg.LegLimitKm = DefaultLegLimitKm
	}
	return &Service{children: children, drivers: drivers, index: index, cfg: cfg, log: logger.OrNop(log)}
}

func RouteOf(c *child.Child) ChildRoute {
	return ChildRoute{Pickup: c.TripStartLocation.Point(), School: c.SchoolLocation.Point()}
}

// ListDrivers returns listable drivers with at least one free seat, best match first.
// Ties on distance keep the store order.
func (s *Service) ListDrivers(ctx context.Context, childID types.ID) ([]Candidate, error) {
	if childID == "" {
		return nil, ErrBadRequest
	}
	c, err := s.children.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	route := RouteOf(c)

	bookable, err := s.drivers.ListBookable(ctx)
	if err != nil {
		return nil, err
	}
	nearby := s.nearby(ctx, route.Pickup)

	out := make([]Candidate, 0, len(bookable))
	for _, d := range bookable {
		if nearby != nil {
			if _, ok := nearby[d.ID]; !ok {
				continue
			}
		}
		if !ScreenLoose(route, d.Routes, s.cfg.LegLimitKm) {
			continue
		}
		m := Classify(route, d.Routes)
		if !m.Tier.Listable() {
			continue
		}
		avail, err := s.drivers.Availability(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if avail.AvailableSeats <= 0 {
			continue
		}
		out = append(out, Candidate{
			Driver:       d,
			Match:        m,
			Warning:      m.Tier.RequiresConfirmation(),
			Availability: avail,
		})
	}
	location.SortByDistance(out, func(c Candidate) float64 { return c.Match.TotalKm })
	return out, nil
}

// nearby returns nil when the index is absent or unavailable, which disables the prefilter.
func (s *Service) nearby(ctx context.Context, pickup types.Point) map[types.ID]struct{} {
	if s.index == nil {
		return nil
	}
	ids, err := s.index.NearbyRouteStarts(ctx, pickup, s.cfg.LegLimitKm)
	if err != nil {
		s.log.Warn("route index search failed; screening all bookable drivers", zap.Error(err))
		return nil
	}
	set := make(map[types.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
