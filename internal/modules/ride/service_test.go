package ride

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"schoolride/internal/modules/booking"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/notification"
	"schoolride/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	rides    map[types.ID][]byte
	watchers map[types.ID][]chan *ActiveRide
}

func newMemStore() *memStore {
	return &memStore{rides: make(map[types.ID][]byte), watchers: make(map[types.ID][]chan *ActiveRide)}
}

func (m *memStore) load(id types.ID) (*ActiveRide, bool) {
	raw, ok := m.rides[id]
	if !ok {
		return nil, false
	}
	var r ActiveRide
	_ = json.Unmarshal(raw, &r)
	return &r, true
}

func (m *memStore) put(r *ActiveRide) {
	raw, _ := json.Marshal(r)
	m.rides[r.ID] = raw
	for _, ch := range m.watchers[r.ID] {
		cp, _ := m.load(r.ID)
		select {
		case ch <- cp:
		default:
		}
	}
}

func (m *memStore) Create(_ context.Context, r *ActiveRide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return errExists
	}
	m.put(r)
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*ActiveRide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *memStore) Update(_ context.Context, id types.ID, fn func(*ActiveRide) error) (*ActiveRide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	m.put(r)
	return r, nil
}

func (m *memStore) Watch(ctx context.Context, id types.ID, fn func(*ActiveRide) error) error {
	ch := make(chan *ActiveRide, 8)
	m.mu.Lock()
	m.watchers[id] = append(m.watchers[id], ch)
	if r, ok := m.load(id); ok {
		ch <- r
	}
	m.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-ch:
			if err := fn(r); err != nil {
				return err
			}
		}
	}
}

type stubBookings map[types.ID][]booking.Booking

func (s stubBookings) ActiveForDriverOn(_ context.Context, driverID types.ID, _ time.Time) ([]booking.Booking, error) {
	return s[driverID], nil
}

type stubAdmins []types.ID

func (a stubAdmins) AdminIDs(context.Context) ([]types.ID, error) {
	return a, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Command
	fail bool
}

func (n *recordingNotifier) Dispatch(_ context.Context, cmd notification.Command) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, cmd)
	if n.fail {
		return errors.New("broker down")
	}
	return nil
}

func (n *recordingNotifier) count(kind notification.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, cmd := range n.sent {
		if cmd.Kind == kind {
			c++
		}
	}
	return c
}

type stubTracker struct {
	started, stopped []types.ID
}

func (t *stubTracker) StartTracking(_ context.Context, driverID, rideID types.ID) (location.Session, error) {
	t.started = append(t.started, rideID)
	return location.Session{DriverID: driverID, RideID: rideID}, nil
}

func (t *stubTracker) StopTracking(_ context.Context, driverID types.ID) error {
	t.stopped = append(t.stopped, driverID)
	return nil
}

var shiftDay = time.Date(2026, 2, 9, 6, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *recordingNotifier
	tracker  *stubTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), notifier: &recordingNotifier{}, tracker: &stubTracker{}}
	f.svc = NewService(f.store, Deps{
		Bookings: stubBookings{
			"d1": {
				{ID: "b2", ParentID: "p2", ChildID: "c2", DailyTime: "07:15"},
				{ID: "b1", ParentID: "p1", ChildID: "c1", DailyTime: "06:45"},
				{ID: "b3", ParentID: "p1", ChildID: "c3", DailyTime: "07:15"},
			},
		},
		Admins:   stubAdmins{"admin-1"},
		Notifier: f.notifier,
		Tracker:  f.tracker,
	})
	f.svc.now = func() time.Time { return shiftDay }
	return f
}

func (f *fixture) start(t *testing.T) *ActiveRide {
	t.Helper()
	r, err := f.svc.StartShift(context.Background(), "d1", shiftDay)
	if err != nil {
		t.Fatalf("start shift: %v", err)
	}
	return r
}

func (f *fixture) mark(t *testing.T, childID types.ID, st ChildStatus) *ActiveRide {
	t.Helper()
	r, err := f.svc.UpdateChildStatus(context.Background(), StatusCommand{
		RideID: RideID("d1", shiftDay), DriverID: "d1", ChildID: childID, Status: st,
	})
	if err != nil {
		t.Fatalf("mark %s %s: %v", childID, st, err)
	}
	return r
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ChildStatus
		want     bool
	}{
		{ChildPending, ChildPickedUp, true},
		{ChildPending, ChildAbsent, true},
		{ChildPending, ChildDroppedOff, false},
		{ChildPickedUp, ChildDroppedOff, true},
		{ChildPickedUp, ChildAbsent, false},
		{ChildAbsent, ChildPickedUp, false},
		{ChildDroppedOff, ChildPickedUp, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStartShift(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	if r.ID != "d1_2026-02-09" {
		t.Errorf("id = %s", r.ID)
	}
	order := []types.ID{"c1", "c2", "c3"}
	if len(r.Children) != len(order) {
		t.Fatalf("children = %+v", r.Children)
	}
	for i, id := range order {
		if r.Children[i].ChildID != id || r.Children[i].Status != ChildPending {
			t.Errorf("child %d = %+v, want %s pending", i, r.Children[i], id)
		}
	}
	if r.Counts.Total != 3 || r.Status != StatusInProgress {
		t.Errorf("ride = %+v", r)
	}
	if len(f.tracker.started) != 1 || f.tracker.started[0] != r.ID {
		t.Errorf("tracking started = %v", f.tracker.started)
	}

	again := f.start(t)
	if again.ID != r.ID || len(again.Children) != 3 {
		t.Errorf("second start was not idempotent")
	}
	if len(f.tracker.started) != 2 || f.tracker.started[1] != r.ID {
		t.Errorf("second start should reopen tracking for the same ride: %v", f.tracker.started)
	}

	if _, err := f.svc.StartShift(context.Background(), "nobody", shiftDay); !errors.Is(err, ErrNoBookings) {
		t.Errorf("no bookings: err = %v", err)
	}
}

func TestUpdateChildStatus_CompletesWhenAllTerminal(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	r := f.mark(t, "c1", ChildPickedUp)
	if r.Counts.PickedUp != 1 || r.Children[0].PickedUpAt == nil {
		t.Fatalf("after pickup: %+v", r)
	}
	f.mark(t, "c2", ChildAbsent)
	f.mark(t, "c3", ChildPickedUp)
	f.mark(t, "c1", ChildDroppedOff)
	r = f.mark(t, "c3", ChildDroppedOff)

	if !r.Completed() || r.CompletedAt == nil || r.CompletedEarly {
		t.Fatalf("ride not completed: %+v", r)
	}
	want := Counts{PickedUp: 2, Absent: 1, DroppedOff: 2, Total: 3}
	if r.Counts != want {
		t.Errorf("counts = %+v, want %+v", r.Counts, want)
	}
	if got := f.notifier.count(notification.KindAttendance); got != 5 {
		t.Errorf("attendance notices = %d, want 5", got)
	}
	if got := f.notifier.count(notification.KindTripCompleted); got != 2 {
		t.Errorf("trip completed notices = %d, want 2 (one per parent)", got)
	}
	if len(f.tracker.stopped) != 1 {
		t.Errorf("tracking not stopped")
	}

	_, err := f.svc.UpdateChildStatus(context.Background(), StatusCommand{
		RideID: r.ID, DriverID: "d1", ChildID: "c2", Status: ChildPickedUp,
	})
	if !errors.Is(err, ErrRideCompleted) {
		t.Errorf("update after completion: err = %v", err)
	}
}

func TestUpdateChildStatus_Rejections(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  StatusCommand
		want error
	}{
		{"skip pickup", StatusCommand{RideID: r.ID, DriverID: "d1", ChildID: "c1", Status: ChildDroppedOff}, ErrInvalidTransition},
		{"unknown child", StatusCommand{RideID: r.ID, DriverID: "d1", ChildID: "cx", Status: ChildPickedUp}, ErrChildNotOnRide},
		{"other driver", StatusCommand{RideID: r.ID, DriverID: "d2", ChildID: "c1", Status: ChildPickedUp}, ErrForbidden},
		{"unknown ride", StatusCommand{RideID: "nope", DriverID: "d1", ChildID: "c1", Status: ChildPickedUp}, ErrNotFound},
		{"missing status", StatusCommand{RideID: r.ID, DriverID: "d1", ChildID: "c1"}, ErrBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := f.svc.UpdateChildStatus(ctx, c.cmd); !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestUpdateChildStatus_NotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.notifier.fail = true
	r := f.mark(t, "c1", ChildPickedUp)
	if r.Children[0].Status != ChildPickedUp {
		t.Errorf("status not committed")
	}
}

func TestCompleteEarly(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.CompleteEarly(ctx, r.ID, "d2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other driver: err = %v", err)
	}
	done, err := f.svc.CompleteEarly(ctx, r.ID, "d1")
	if err != nil {
		t.Fatalf("complete early: %v", err)
	}
	if !done.Completed() || !done.CompletedEarly {
		t.Errorf("ride = %+v", done)
	}
	if _, err := f.svc.CompleteEarly(ctx, r.ID, "d1"); !errors.Is(err, ErrRideCompleted) {
		t.Errorf("twice: err = %v", err)
	}
}

func TestRaiseEmergency(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	got, err := f.svc.RaiseEmergency(context.Background(), EmergencyCommand{
		RideID: r.ID, DriverID: "d1", Message: "flat tyre", Point: types.Point{Lat: 6.9, Lng: 79.86},
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if len(got.Emergencies) != 1 || got.Emergencies[0].Message != "flat tyre" {
		t.Errorf("emergencies = %+v", got.Emergencies)
	}
	if n := f.notifier.count(notification.KindEmergency); n != 3 {
		t.Errorf("emergency notices = %d, want 3 (two parents, one admin)", n)
	}
}

func TestRaiseEmergency_LogsUndeliveredAlerts(t *testing.T) {
	cases := []struct {
		name       string
		fail       bool
		wantErrors int
	}{
		{"all delivered", false, 0},
		{"all failed", true, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			core, logs := observer.New(zap.ErrorLevel)
			f.svc.log = zap.New(core)
			r := f.start(t)
			f.notifier.fail = c.fail

			if _, err := f.svc.RaiseEmergency(context.Background(), EmergencyCommand{
				RideID: r.ID, DriverID: "d1", Message: "engine trouble",
			}); err != nil {
				t.Fatalf("raise: %v", err)
			}
			entries := logs.FilterMessage("emergency alerts not fully delivered").All()
			if len(entries) != c.wantErrors {
				t.Fatalf("error logs = %d, want %d", len(entries), c.wantErrors)
			}
			if c.wantErrors > 0 {
				fields := entries[0].ContextMap()
				if fields["failed"] != int64(3) || fields["recipients"] != int64(3) {
					t.Errorf("fields = %v", fields)
				}
			}
		})
	}
}

type memPositions struct {
	mu  sync.Mutex
	pos map[types.ID]location.Position
}

func (m *memPositions) SetPosition(_ context.Context, p location.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[p.DriverID] = p
	return nil
}

func (m *memPositions) Position(_ context.Context, driverID types.ID) (location.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pos[driverID]
	if !ok {
		return location.Position{}, location.ErrNoPosition
	}
	return p, nil
}

func (m *memPositions) ClearPosition(_ context.Context, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pos, driverID)
	return nil
}

func (m *memPositions) AppendSnapshot(context.Context, location.Snapshot) error { return nil }

func TestStartShift_ResumesTrackingAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.start(t)

	// A fresh tracker has no sessions, as after a process restart.
	loc := location.NewService(&memPositions{pos: map[types.ID]location.Position{}}, nil, location.NewTracker(0), nil)
	f.svc.tracker = loc

	if _, err := f.svc.StartShift(ctx, "d1", shiftDay); err != nil {
		t.Fatalf("restart shift: %v", err)
	}
	res, err := loc.UpdatePosition(ctx, location.Update{DriverID: "d1", Seq: 1, Position: types.Point{Lat: 6.9, Lng: 79.86}})
	if err != nil || !res.Accepted {
		t.Fatalf("update after restart: res=%+v err=%v", res, err)
	}
	if sess, ok := loc.Session("d1"); !ok || sess.RideID != r.ID {
		t.Fatalf("session = %+v ok=%v", sess, ok)
	}
}

func TestStartShift_CompletedRideDoesNotTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.start(t)
	if _, err := f.svc.CompleteEarly(ctx, r.ID, "d1"); err != nil {
		t.Fatalf("complete early: %v", err)
	}
	before := len(f.tracker.started)
	if _, err := f.svc.StartShift(ctx, "d1", shiftDay); err != nil {
		t.Fatalf("start after completion: %v", err)
	}
	if len(f.tracker.started) != before {
		t.Errorf("tracking reopened for a completed ride: %v", f.tracker.started)
	}
}

func TestGetFor(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	ctx := context.Background()

	for _, caller := range []types.ID{"d1", "p1", "p2"} {
		if _, err := f.svc.GetFor(ctx, r.ID, caller); err != nil {
			t.Errorf("%s: %v", caller, err)
		}
	}
	if _, err := f.svc.GetFor(ctx, r.ID, "p9"); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: err = %v", err)
	}
}

func TestWatch_DeliversLatestSnapshot(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := make(chan Counts, 8)
	done := make(chan error, 1)
	go func() {
		done <- f.svc.Watch(ctx, r.ID, func(r *ActiveRide) error {
			seen <- r.Counts
			return nil
		})
	}()

	if c := <-seen; c.PickedUp != 0 {
		t.Fatalf("initial snapshot = %+v", c)
	}
	f.mark(t, "c1", ChildPickedUp)
	select {
	case c := <-seen:
		if c.PickedUp != 1 {
			t.Errorf("update snapshot = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}
