// README: Tracker owns the in-process set of live tracking sessions.
package location

import (
	"errors"
	"sync"
	"time"

	"schoolride/internal/types"
)

var (
	ErrNoSession     = errors.New("no active tracking session")
	ErrSessionExists = errors.New("tracking session already active")
)

type trackedSession struct {
	Session
	lastSeq      int64
	lastSnapshot time.Time
}

// Tracker is created by whoever starts tracking and passed to the parts that
// need to query or stop it.
type Tracker struct {
	mu       sync.Mutex
	sessions map[types.ID]*trackedSession
	interval time.Duration
	now      func() time.Time
}

func NewTracker(snapshotInterval time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[types.ID]*trackedSession),
		interval: snapshotInterval,
		now:      time.Now,
	}
}

// Start opens a session for the driver. A driver has at most one session; a
// second Start for the same ride returns the existing one.
func (t *Tracker) Start(driverID, rideID types.ID) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[driverID]; ok {
		if s.RideID == rideID {
			return s.Session, nil
		}
		return Session{}, ErrSessionExists
	}
	s := &trackedSession{Session: Session{
		ID:        types.NewID(),
		DriverID:  driverID,
		RideID:    rideID,
		StartedAt: t.now(),
	}}
	t.sessions[driverID] = s
	return s.Session, nil
}

func (t *Tracker) Stop(driverID types.ID) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[driverID]
	if !ok {
		return Session{}, ErrNoSession
	}
	delete(t.sessions, driverID)
	return s.Session, nil
}

func (t *Tracker) Get(driverID types.ID) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[driverID]
	if !ok {
		return Session{}, false
	}
	return s.Session, true
}

// Accept records seq for the driver's session. Stale or duplicate sequence
// numbers are rejected. snapshot is true when a persisted snapshot is due.
func (t *Tracker) Accept(driverID types.ID, seq int64) (s Session, accepted, snapshot bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.sessions[driverID]
	if !ok {
		return Session{}, false, false, ErrNoSession
	}
	if seq <= ts.lastSeq {
		return ts.Session, false, false, nil
	}
	ts.lastSeq = seq
	now := t.now()
	if ts.lastSnapshot.IsZero() || now.Sub(ts.lastSnapshot) >= t.interval {
		ts.lastSnapshot = now
		snapshot = true
	}
	return ts.Session, true, snapshot, nil
}
