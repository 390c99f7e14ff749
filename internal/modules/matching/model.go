// README: Route compatibility tiers between a child's trip and a driver's commute.
package matching

import (
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/location"
	"schoolride/internal/types"
)

type Tier string

const (
	TierExcellent Tier = "Excellent"
	TierGood      Tier = "Good"
	TierFair      Tier = "Fair"
	TierPoor      Tier = "Poor"
	TierUnknown   Tier = "Unknown"
)

// Summed-distance tier thresholds in km.
const (
	excellentBelowKm = 2.0
	goodBelowKm      = 5.0
	fairBelowKm      = 10.0
)

// DefaultLegLimitKm bounds each leg of the loose screen.
const DefaultLegLimitKm = 20.0

// Rank orders tiers from best (0) to worst; Unknown sorts last.
func (t Tier) Rank() int {
	switch t {
	case TierExcellent:
		return 0
	case TierGood:
		return 1
	case TierFair:
		return 2
	case TierPoor:
		return 3
	default:
		return 4
	}
}

// Listable reports whether the tier may be offered to a parent at all.
func (t Tier) Listable() bool {
	return t == TierExcellent || t == TierGood || t == TierFair
}

// RequiresConfirmation reports whether the parent must acknowledge a warning before booking.
func (t Tier) RequiresConfirmation() bool {
	return t == TierGood || t == TierFair
}

// ChildRoute is the pair of points a child travels between.
type ChildRoute struct {
	Pickup types.Point
	School types.Point
}

type Match struct {
	Tier     Tier    `json:"tier"`
	PickupKm float64 `json:"pickup_km"`
	SchoolKm float64 `json:"school_km"`
	TotalKm  float64 `json:"total_km"`
}

// Classify compares the child's pickup with the route start and the school with the route end.
func Classify(child ChildRoute, route driver.Routes) Match {
	if !route.Complete() {
		return Match{Tier: TierUnknown}
	}
	m := Match{
		PickupKm: location.HaversineKm(child.Pickup, route.StartPoint.Point()),
		SchoolKm: location.HaversineKm(child.School, route.EndPoint.Point()),
	}
	m.TotalKm = m.PickupKm + m.SchoolKm
	m.Tier = tierFor(m.TotalKm)
	return m
}

func tierFor(totalKm float64) Tier {
	switch {
	case totalKm < excellentBelowKm:
		return TierExcellent
	case totalKm < goodBelowKm:
		return TierGood
	case totalKm < fairBelowKm:
		return TierFair
	default:
		return TierPoor
	}
}

// ScreenLoose applies the per-leg limit to each leg independently. Any listable tier passes it.
func ScreenLoose(child ChildRoute, route driver.Routes, legLimitKm float64) bool {
	if !route.Complete() {
		return false
	}
	if legLimitKm <= 0 {
		legLimitKm = DefaultLegLimitKm
	}
	return location.HaversineKm(child.Pickup, route.StartPoint.Point()) <= legLimitKm &&
		location.HaversineKm(child.School, route.EndPoint.Point()) <= legLimitKm
}

// Candidate is one entry of a driver listing for a child.
type Candidate struct {
	Driver       driver.Driver       `json:"driver"`
	Match        Match               `json:"match"`
	Warning      bool                `json:"warning"`
	Availability driver.Availability `json:"availability"`
}
