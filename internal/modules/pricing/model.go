// README: Pricing rate and trip quote definitions for recurring school runs.
package pricing

const (
	// RateSchoolRun is the pricing_rates key for recurring school runs.
	RateSchoolRun = "school_run"

	DefaultPerKm = 25
)

type Rate struct {
	Key      string
	PerKm    int64
	Currency string
}

type TripRequest struct {
	PickupKm float64
	SchoolKm float64
	// RouteKm, when positive, replaces the leg sum with a routed distance.
	RouteKm         float64
	SchoolDays      int
	AvailabilityPct float64
}

func (r TripRequest) DistanceKm() float64 {
	if r.RouteKm > 0 {
		return r.RouteKm
	}
	return r.PickupKm + r.SchoolKm
}

type Quote struct {
	DistanceKm float64 `json:"distance_km"`
	DailyRate  int64   `json:"daily_rate"`
	Days       int     `json:"days"`
	Factor     float64 `json:"factor"`
	Total      int64   `json:"total"`
	Currency   string  `json:"currency"`
}
