package location

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

type memPositionStore struct {
	mu        sync.Mutex
	latest    map[types.ID]Position
	snapshots []Snapshot
	snapErr   error
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{latest: make(map[types.ID]Position)}
}

func (m *memPositionStore) SetPosition(_ context.Context, p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[p.DriverID] = p
	return nil
}

func (m *memPositionStore) Position(_ context.Context, id types.ID) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.latest[id]
	if !ok {
		return Position{}, ErrNoPosition
	}
	return p, nil
}

func (m *memPositionStore) ClearPosition(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, id)
	return nil
}

func (m *memPositionStore) AppendSnapshot(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapErr != nil {
		return m.snapErr
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

type stubPublisher struct {
	published []Position
	ended     []Session
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, pos Position) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, pos)
	return nil
}

func (p *stubPublisher) End(_ context.Context, s Session) error {
	p.ended = append(p.ended, s)
	return nil
}

func TestUpdatePosition_RequiresSession(t *testing.T) {
	svc := NewService(newMemPositionStore(), nil, NewTracker(time.Minute), nil)
	_, err := svc.UpdatePosition(context.Background(), Update{
		DriverID: "d1", Seq: 1, Position: types.Point{Lat: 6.92, Lng: 79.86},
	})
	if err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestUpdatePosition_LatestWins(t *testing.T) {
	store := newMemPositionStore()
	pub := &stubPublisher{}
	svc := NewService(store, pub, NewTracker(time.Hour), nil)
	ctx := context.Background()

	if _, err := svc.StartTracking(ctx, "d1", "d1_2026-10-14"); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := svc.UpdatePosition(ctx, Update{DriverID: "d1", Seq: 2, Position: types.Point{Lat: 6.93, Lng: 79.85}})
	if err != nil || !res.Accepted || !res.Snapshotted {
		t.Fatalf("first update: %+v %v", res, err)
	}
	res, err = svc.UpdatePosition(ctx, Update{DriverID: "d1", Seq: 1, Position: types.Point{Lat: 1, Lng: 1}})
	if err != nil || res.Accepted {
		t.Fatalf("stale update should be dropped: %+v %v", res, err)
	}

	cur, err := svc.Current(ctx, "d1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Lat != 6.93 || cur.RideID != "d1_2026-10-14" {
		t.Fatalf("unexpected current position: %+v", cur)
	}
	if len(pub.published) != 1 || len(store.snapshots) != 1 {
		t.Fatalf("published=%d snapshots=%d", len(pub.published), len(store.snapshots))
	}
}

func TestUpdatePosition_SideEffectFailuresAreSwallowed(t *testing.T) {
	store := newMemPositionStore()
	store.snapErr = errors.New("db down")
	svc := NewService(store, &stubPublisher{err: errors.New("rtdb down")}, NewTracker(time.Hour), nil)
	ctx := context.Background()
	_, _ = svc.StartTracking(ctx, "d1", "r1")

	res, err := svc.UpdatePosition(ctx, Update{DriverID: "d1", Seq: 1, Position: types.Point{Lat: 6.9, Lng: 79.8}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Accepted || res.Snapshotted {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUpdatePosition_RejectsInvalidPoint(t *testing.T) {
	svc := NewService(newMemPositionStore(), nil, NewTracker(time.Hour), nil)
	_, err := svc.UpdatePosition(context.Background(), Update{DriverID: "d1", Seq: 1, Position: types.Point{Lat: 95, Lng: 10}})
	if err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestStopTracking_EndsRealtimeNode(t *testing.T) {
	pub := &stubPublisher{}
	svc := NewService(newMemPositionStore(), pub, NewTracker(time.Hour), nil)
	ctx := context.Background()
	_, _ = svc.StartTracking(ctx, "d1", "r1")
	if err := svc.StopTracking(ctx, "d1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(pub.ended) != 1 || pub.ended[0].RideID != "r1" {
		t.Fatalf("expected realtime node ended, got %+v", pub.ended)
	}
}

func TestStore_SetPositionRedis(t *testing.T) {
	redisAddr := os.Getenv("SCHOOLRIDE_TEST_REDIS")
	if redisAddr == "" {
		t.Skip("SCHOOLRIDE_TEST_REDIS not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := NewStore(nil, rdb)
	ctx := context.Background()
	id := types.ID("driver_test_" + time.Now().Format("150405.000000"))
	if err := store.SetPosition(ctx, Position{DriverID: id, RideID: "r1", Lat: 6.9271, Lng: 79.8612, Seq: 1}); err != nil {
		t.Fatalf("set position: %v", err)
	}
	pos, err := rdb.GeoPos(ctx, driverGeoKey, string(id)).Result()
	if err != nil || len(pos) == 0 || pos[0] == nil {
		t.Fatalf("expected geo position, got %v %v", pos, err)
	}
	got, err := store.Position(ctx, id)
	if err != nil || got.RideID != "r1" {
		t.Fatalf("position: %+v %v", got, err)
	}
	if err := store.ClearPosition(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Position(ctx, id); err != ErrNoPosition {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}
