// README: Pricing service quotes recurring trips and pro-rates booking extensions.
package pricing

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"schoolride/internal/config"
	"schoolride/internal/logger"
	"schoolride/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type RateSource interface {
	GetRate(ctx context.Context, key string) (Rate, error)
}

type Service struct {
	store RateSource
	cfg   config.PricingConfig
	log   *zap.Logger
}

// NewService accepts a nil store; the configured per-km rate is used then.
func NewService(store RateSource, cfg config.PricingConfig, log *zap.Logger) *Service {
	if cfg.PerKmRate <= 0 {
		cfg.PerKmRate = DefaultPerKm
	}
	if cfg.Currency == "" {
		cfg.Currency = types.DefaultCurrency
	}
	return &Service{store: store, cfg: cfg, log: logger.OrNop(log)}
}

// AvailabilityFactor raises the price as free seats get scarce.
func AvailabilityFactor(pct float64) float64 {
	switch {
	case pct >= 50:
		return 1.00
	case pct >= 25:
		return 1.10
	default:
		return 1.20
	}
}

func (s *Service) Quote(ctx context.Context, req TripRequest) (Quote, error) {
	if req.SchoolDays < 0 || req.PickupKm < 0 || req.SchoolKm < 0 || req.RouteKm < 0 {
		return Quote{}, ErrBadRequest
	}
	rate := s.rate(ctx)
	q := Quote{
		DistanceKm: req.DistanceKm(),
		Days:       req.SchoolDays,
		Factor:     AvailabilityFactor(req.AvailabilityPct),
		Currency:   rate.Currency,
	}
	q.DailyRate = DailyRate(q.DistanceKm, rate.PerKm)
	q.Total = int64(math.Round(float64(q.DailyRate) * float64(q.Days) * q.Factor))
	return q, nil
}

// DailyRate is the per-school-day price for a distance.
func DailyRate(distanceKm float64, perKm int64) int64 {
	return int64(math.Round(distanceKm * float64(perKm)))
}

// ExtendPrice pro-rates totalPrice over additionalDays. Bookings without a
// recorded day count fall back to fallbackDaily per day.
func ExtendPrice(totalPrice int64, recurringDays, additionalDays int, fallbackDaily int64) int64 {
	if additionalDays <= 0 {
		return 0
	}
	if recurringDays <= 0 {
		return fallbackDaily * int64(additionalDays)
	}
	return int64(math.Round(float64(totalPrice) * float64(additionalDays) / float64(recurringDays)))
}

// FallbackDaily is the daily rate used for extensions of bookings without a day count.
func (s *Service) FallbackDaily(ctx context.Context, routeKm float64) int64 {
	if routeKm > 0 {
		return DailyRate(routeKm, s.rate(ctx).PerKm)
	}
	return s.cfg.FallbackDailyFee
}

func (s *Service) rate(ctx context.Context) Rate {
	def := Rate{Key: RateSchoolRun, PerKm: s.cfg.PerKmRate, Currency: s.cfg.Currency}
	if s.store == nil {
		return def
	}
	r, err := s.store.GetRate(ctx, RateSchoolRun)
	if err != nil {
		if !errors.Is(err, ErrRateNotFound) {
			s.log.Warn("load pricing rate failed; using configured rate", zap.Error(err))
		}
		return def
	}
	if r.PerKm <= 0 {
		return def
	}
	if r.Currency == "" {
		r.Currency = def.Currency
	}
	return r
}
