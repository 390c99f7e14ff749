package matching

import (
	"context"
	"errors"
	"testing"

	"schoolride/internal/config"
	"schoolride/internal/modules/child"
	"schoolride/internal/modules/driver"
	"schoolride/internal/modules/profile"
	"schoolride/internal/types"
)

func loc(lat, lng float64) *types.Location {
	return &types.Location{Lat: lat, Lng: lng}
}

var exampleChild = ChildRoute{
	Pickup: types.Point{Lat: 6.9271, Lng: 79.8612},
	School: types.Point{Lat: 6.9319, Lng: 79.8478},
}

func TestClassify_ExampleIsExcellent(t *testing.T) {
	m := Classify(exampleChild, driver.Routes{StartPoint: loc(6.9280, 79.8600), EndPoint: loc(6.9310, 79.8490)})
	if m.Tier != TierExcellent {
		t.Fatalf("tier = %s, want Excellent", m.Tier)
	}
	if m.PickupKm <= 0 || m.SchoolKm <= 0 || m.TotalKm > 0.5 {
		t.Fatalf("unexpected distances: %+v", m)
	}
	if m.TotalKm != m.PickupKm+m.SchoolKm {
		t.Fatalf("total %v != %v + %v", m.TotalKm, m.PickupKm, m.SchoolKm)
	}
}

func TestClassify_MissingRouteIsUnknown(t *testing.T) {
	cases := []driver.Routes{
		{},
		{StartPoint: loc(6.9280, 79.8600)},
		{EndPoint: loc(6.9310, 79.8490)},
	}
	for i, r := range cases {
		if got := Classify(exampleChild, r).Tier; got != TierUnknown {
			t.Errorf("case %d: tier = %s, want Unknown", i, got)
		}
	}
}

func TestTierFor_Thresholds(t *testing.T) {
	cases := []struct {
		km   float64
		want Tier
	}{
		{0, TierExcellent},
		{1.99, TierExcellent},
		{2, TierGood},
		{4.99, TierGood},
		{5, TierFair},
		{9.99, TierFair},
		{10, TierPoor},
		{250, TierPoor},
	}
	for _, tc := range cases {
		if got := tierFor(tc.km); got != tc.want {
			t.Errorf("tierFor(%v) = %s, want %s", tc.km, got, tc.want)
		}
	}
}

func TestClassify_MonotonicInDistance(t *testing.T) {
	prev := -1
	// Move the route start north in ~1.1km steps; the tier must never improve.
	for i := 0; i < 15; i++ {
		r := driver.Routes{
			StartPoint: loc(exampleChild.Pickup.Lat+float64(i)*0.01, exampleChild.Pickup.Lng),
			EndPoint:   loc(exampleChild.School.Lat, exampleChild.School.Lng),
		}
		rank := Classify(exampleChild, r).Tier.Rank()
		if rank < prev {
			t.Fatalf("step %d: rank %d improved over %d", i, rank, prev)
		}
		prev = rank
	}
	if prev != TierPoor.Rank() {
		t.Fatalf("final rank = %d, want Poor", prev)
	}
}

func TestScreenLoose_SupersetOfListable(t *testing.T) {
	for i := 0; i < 40; i++ {
		for j := 0; j < 40; j += 3 {
			r := driver.Routes{
				StartPoint: loc(exampleChild.Pickup.Lat+float64(i)*0.005, exampleChild.Pickup.Lng),
				EndPoint:   loc(exampleChild.School.Lat, exampleChild.School.Lng-float64(j)*0.005),
			}
			if Classify(exampleChild, r).Tier.Listable() && !ScreenLoose(exampleChild, r, DefaultLegLimitKm) {
				t.Fatalf("listable route (%d,%d) failed loose screen", i, j)
			}
		}
	}
}

func TestScreenLoose_EachLegIndependent(t *testing.T) {
	// Pickup leg ~15km, school leg 0: passes the loose screen but is Poor by sum.
	r := driver.Routes{
		StartPoint: loc(exampleChild.Pickup.Lat+0.135, exampleChild.Pickup.Lng),
		EndPoint:   loc(exampleChild.School.Lat, exampleChild.School.Lng),
	}
	if !ScreenLoose(exampleChild, r, DefaultLegLimitKm) {
		t.Fatalf("expected loose screen to pass")
	}
	if got := Classify(exampleChild, r).Tier; got != TierPoor {
		t.Fatalf("tier = %s, want Poor", got)
	}
	far := driver.Routes{StartPoint: loc(exampleChild.Pickup.Lat+0.3, exampleChild.Pickup.Lng), EndPoint: r.EndPoint}
	if ScreenLoose(exampleChild, far, DefaultLegLimitKm) {
		t.Fatalf("expected ~33km pickup leg to fail")
	}
}

func TestRequiresConfirmation(t *testing.T) {
	want := map[Tier]bool{TierExcellent: false, TierGood: true, TierFair: true, TierPoor: false, TierUnknown: false}
	for tier, w := range want {
		if got := tier.RequiresConfirmation(); got != w {
			t.Errorf("%s.RequiresConfirmation() = %v, want %v", tier, got, w)
		}
	}
}

type stubChildren map[types.ID]*child.Child

func (s stubChildren) Get(_ context.Context, id types.ID) (*child.Child, error) {
	c, ok := s[id]
	if !ok {
		return nil, child.ErrNotFound
	}
	return c, nil
}

type stubDrivers struct {
	drivers []driver.Driver
	avail   map[types.ID]driver.Availability
}

func (s *stubDrivers) ListBookable(context.Context) ([]driver.Driver, error) {
	return s.drivers, nil
}

func (s *stubDrivers) Availability(_ context.Context, id types.ID) (driver.Availability, error) {
	return s.avail[id], nil
}

type stubIndex struct {
	ids []types.ID
	err error
}

func (s *stubIndex) NearbyRouteStarts(context.Context, types.Point, float64) ([]types.ID, error) {
	return s.ids, s.err
}

func bookable(id types.ID, start, end *types.Location) driver.Driver {
	return driver.Driver{
		ID:          id,
		Vehicle:     driver.Vehicle{Type: "van", Capacity: 4},
		Routes:      driver.Routes{StartPoint: start, EndPoint: end},
		Status:      profile.StatusApproved,
		BookingOpen: true,
	}
}

func listFixture() (stubChildren, *stubDrivers) {
	children := stubChildren{"c1": {
		ID:                "c1",
		TripStartLocation: types.Location{Lat: exampleChild.Pickup.Lat, Lng: exampleChild.Pickup.Lng},
		SchoolLocation:    types.Location{Lat: exampleChild.School.Lat, Lng: exampleChild.School.Lng},
	}}
	school := loc(exampleChild.School.Lat, exampleChild.School.Lng)
	drivers := &stubDrivers{
		drivers: []driver.Driver{
			bookable("good", loc(exampleChild.Pickup.Lat+0.03, exampleChild.Pickup.Lng), school),
			bookable("excellent", loc(6.9280, 79.8600), loc(6.9310, 79.8490)),
			bookable("poor", loc(exampleChild.Pickup.Lat+0.135, exampleChild.Pickup.Lng), school),
			bookable("full", loc(6.9280, 79.8600), school),
			bookable("noroute", nil, nil),
		},
		avail: map[types.ID]driver.Availability{
			"good":      driver.NewAvailability(4, 1),
			"excellent": driver.NewAvailability(4, 0),
			"poor":      driver.NewAvailability(4, 0),
			"full":      driver.NewAvailability(4, 4),
			"noroute":   driver.NewAvailability(4, 0),
		},
	}
	return children, drivers
}

func TestListDrivers_FiltersAndSorts(t *testing.T) {
	children, drivers := listFixture()
	svc := NewService(children, drivers, nil, config.MatchingConfig{}, nil)

	got, err := svc.ListDrivers(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].Driver.ID != "excellent" || got[0].Warning {
		t.Errorf("first = %s warning=%v, want excellent without warning", got[0].Driver.ID, got[0].Warning)
	}
	if got[1].Driver.ID != "good" || !got[1].Warning || got[1].Match.Tier != TierGood {
		t.Errorf("second = %+v, want good with warning", got[1])
	}
	if got[1].Availability.AvailableSeats != 3 {
		t.Errorf("availability = %+v", got[1].Availability)
	}
}

func TestListDrivers_IndexPrefilter(t *testing.T) {
	children, drivers := listFixture()
	svc := NewService(children, drivers, &stubIndex{ids: []types.ID{"good"}}, config.MatchingConfig{}, nil)
	got, err := svc.ListDrivers(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Driver.ID != "good" {
		t.Fatalf("got %+v, want only good", got)
	}
}

func TestListDrivers_IndexFailureFallsBack(t *testing.T) {
	children, drivers := listFixture()
	svc := NewService(children, drivers, &stubIndex{err: errors.New("redis down")}, config.MatchingConfig{}, nil)
	got, err := svc.ListDrivers(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
}

func TestListDrivers_UnknownChild(t *testing.T) {
	_, drivers := listFixture()
	svc := NewService(stubChildren{}, drivers, nil, config.MatchingConfig{}, nil)
	if _, err := svc.ListDrivers(context.Background(), "nope"); !errors.Is(err, child.ErrNotFound) {
		t.Fatalf("err = %v, want child.ErrNotFound", err)
	}
}
