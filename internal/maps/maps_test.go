package maps

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"

	"schoolride/internal/types"
)

type fakeAPI struct {
	mu           sync.Mutex
	geocodeCalls int
	geocode      []maps.GeocodingResult
	routes       []maps.Route
	nearby       maps.PlacesSearchResponse
	lastNearby   *maps.NearbySearchRequest
	lastComplete *maps.PlaceAutocompleteRequest
	err          error
}

func (f *fakeAPI) Geocode(_ context.Context, _ *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geocodeCalls++
	return f.geocode, f.err
}

func (f *fakeAPI) ReverseGeocode(_ context.Context, _ *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	return f.geocode, f.err
}

func (f *fakeAPI) Directions(_ context.Context, _ *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	return f.routes, nil, f.err
}

func (f *fakeAPI) NearbySearch(_ context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
	f.lastNearby = r
	return f.nearby, f.err
}

func (f *fakeAPI) PlaceAutocomplete(_ context.Context, r *maps.PlaceAutocompleteRequest) (maps.AutocompleteResponse, error) {
	f.lastComplete = r
	return maps.AutocompleteResponse{Predictions: []maps.AutocompletePrediction{{Description: "Royal College, Colombo", PlaceID: "p1"}}}, f.err
}

var colombo = types.Point{Lat: 6.9271, Lng: 79.8612}

func royalCollege() []maps.GeocodingResult {
	var r maps.GeocodingResult
	r.FormattedAddress = "Rajakeeya Mawatha, Colombo 07"
	r.Geometry.Location = maps.LatLng{Lat: 6.9022, Lng: 79.8607}
	return []maps.GeocodingResult{r}
}

func TestRouteDistanceKm(t *testing.T) {
	api := &fakeAPI{routes: []maps.Route{{Legs: []*maps.Leg{{Distance: maps.Distance{Meters: 12500}, Duration: 25 * time.Minute}}}}}
	svc := NewRouteService(api, Options{Region: "LK"})

	km, err := svc.RouteDistanceKm(context.Background(), colombo, types.Point{Lat: 6.85, Lng: 79.9})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if km != 12.5 {
		t.Errorf("km = %v, want 12.5", km)
	}

	api.routes = nil
	if _, err := svc.RouteDistanceKm(context.Background(), colombo, colombo); !errors.Is(err, ErrNotFound) {
		t.Errorf("no route: err = %v", err)
	}
}

func TestGeocode(t *testing.T) {
	api := &fakeAPI{geocode: royalCollege()}
	svc := NewPlacesService(api, nil, Options{Region: "LK", Language: "en"}, nil)
	ctx := context.Background()

	loc, err := svc.Geocode(ctx, "Royal College")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if loc.Lat != 6.9022 || loc.Address != "Rajakeeya Mawatha, Colombo 07" {
		t.Errorf("loc = %+v", loc)
	}
	if _, err := svc.Geocode(ctx, "  "); !errors.Is(err, ErrBadRequest) {
		t.Errorf("blank: err = %v", err)
	}
	api.geocode = nil
	if _, err := svc.Geocode(ctx, "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no result: err = %v", err)
	}
}

func TestReverseGeocode_RejectsInvalidPoint(t *testing.T) {
	svc := NewPlacesService(&fakeAPI{geocode: royalCollege()}, nil, Options{}, nil)
	if _, err := svc.ReverseGeocode(context.Background(), types.Point{}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v", err)
	}
	addr, err := svc.ReverseGeocode(context.Background(), colombo)
	if err != nil || addr == "" {
		t.Errorf("reverse = %q, %v", addr, err)
	}
}

func TestNearbySearch(t *testing.T) {
	var school maps.PlacesSearchResult
	school.Name = "Royal College"
	school.Vicinity = "Colombo 07"
	school.PlaceID = "p1"
	api := &fakeAPI{nearby: maps.PlacesSearchResponse{Results: []maps.PlacesSearchResult{school}}}
	svc := NewPlacesService(api, nil, Options{}, nil)

	places, err := svc.NearbySearch(context.Background(), "school", colombo, 90000)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(places) != 1 || places[0].Address != "Colombo 07" {
		t.Errorf("places = %+v", places)
	}
	if api.lastNearby.Radius != maxNearbyRadiusM {
		t.Errorf("radius = %d, want clamp to %d", api.lastNearby.Radius, maxNearbyRadiusM)
	}
	if _, err := svc.NearbySearch(context.Background(), "school", colombo, 0); !errors.Is(err, ErrBadRequest) {
		t.Errorf("zero radius: err = %v", err)
	}
}

func TestPredict_RestrictsToRegion(t *testing.T) {
	api := &fakeAPI{}
	svc := NewPlacesService(api, nil, Options{Region: "LK"}, nil)
	out, err := svc.Predict(context.Background(), "royal", maps.NewPlaceAutocompleteSessionToken())
	if err != nil || len(out) != 1 {
		t.Fatalf("predict = %+v, %v", out, err)
	}
	if got := api.lastComplete.Components[maps.ComponentCountry]; len(got) != 1 || got[0] != "lk" {
		t.Errorf("components = %v", api.lastComplete.Components)
	}
}

// gatedPredictor blocks each call until its input is released.
type gatedPredictor struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedPredictor) gate(input string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[input]
	if !ok {
		ch = make(chan struct{})
		g.gates[input] = ch
	}
	return ch
}

func (g *gatedPredictor) Predict(ctx context.Context, input string, _ maps.PlaceAutocompleteSessionToken) ([]Prediction, error) {
	select {
	case <-g.gate(input):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []Prediction{{Description: input}}, nil
}

func TestAutocompleter_SupersededRequestIsStale(t *testing.T) {
	p := &gatedPredictor{gates: make(map[string]chan struct{})}
	a := NewAutocompleter(p)
	ctx := context.Background()

	first := make(chan error, 1)
	started := p.gate("ro")
	go func() {
		_, err := a.Predict(ctx, "s1", "ro")
		first <- err
	}()
	// Wait until the first call has registered its generation.
	for {
		a.mu.Lock()
		s := a.sessions["s1"]
		a.mu.Unlock()
		if s != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	close(p.gate("roy"))
	out, err := a.Predict(ctx, "s1", "roy")
	if err != nil || len(out) != 1 || out[0].Description != "roy" {
		t.Fatalf("second predict = %+v, %v", out, err)
	}

	close(started)
	if err := <-first; !errors.Is(err, ErrStale) {
		t.Errorf("first predict err = %v, want ErrStale", err)
	}
}

func TestAutocompleter_ShortInputAndSessions(t *testing.T) {
	p := &gatedPredictor{gates: make(map[string]chan struct{})}
	close(p.gate("kandy"))
	a := NewAutocompleter(p)
	ctx := context.Background()

	if out, err := a.Predict(ctx, "s1", "k"); err != nil || len(out) != 0 {
		t.Errorf("short input = %+v, %v", out, err)
	}
	if _, err := a.Predict(ctx, "", "kandy"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("missing session: err = %v", err)
	}
	if _, err := a.Predict(ctx, "s2", "kandy"); err != nil {
		t.Errorf("independent session: %v", err)
	}
	a.End("s2")
	if _, ok := a.sessions["s2"]; ok {
		t.Errorf("session not forgotten")
	}
}

func TestAutocompleter_EvictsIdleSessions(t *testing.T) {
	a := NewAutocompleter(&gatedPredictor{gates: make(map[string]chan struct{})})
	clock := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	ctx := context.Background()

	for _, key := range []string{"u1:a", "u1:b", "u2:a"} {
		if _, err := a.Predict(ctx, key, "k"); err != nil {
			t.Fatalf("predict %s: %v", key, err)
		}
	}
	clock = clock.Add(sessionIdleTTL - time.Second)
	if _, err := a.Predict(ctx, "u1:a", "k"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	clock = clock.Add(2 * time.Second)
	if _, err := a.Predict(ctx, "u3:a", "k"); err != nil {
		t.Fatalf("predict u3: %v", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sessions) != 2 {
		t.Fatalf("sessions = %d, want 2 (refreshed and new)", len(a.sessions))
	}
	for _, key := range []string{"u1:a", "u3:a"} {
		if _, ok := a.sessions[key]; !ok {
			t.Errorf("session %s evicted", key)
		}
	}
}

func TestGeocode_CachedInRedis(t *testing.T) {
	addr := os.Getenv("SCHOOLRIDE_TEST_REDIS")
	if addr == "" {
		t.Skip("SCHOOLRIDE_TEST_REDIS not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	rdb.Del(ctx, cachePrefix+"geocode:royal college")

	api := &fakeAPI{geocode: royalCollege()}
	svc := NewPlacesService(api, NewCache(rdb, time.Minute), Options{}, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Geocode(ctx, "Royal College"); err != nil {
			t.Fatalf("geocode: %v", err)
		}
	}
	if api.geocodeCalls != 1 {
		t.Errorf("api calls = %d, want 1", api.geocodeCalls)
	}
}
