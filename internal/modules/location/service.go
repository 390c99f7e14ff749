// README: Location service handles live driver positions with throttled snapshot flushing.
package location

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type PositionStore interface {
	SetPosition(ctx context.Context, p Position) error
	Position(ctx context.Context, driverID types.ID) (Position, error)
	ClearPosition(ctx context.Context, driverID types.ID) error
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

// Publisher pushes the latest position to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, pos Position) error
	End(ctx context.Context, s Session) error
}

type Service struct {
	store     PositionStore
	publisher Publisher
	tracker   *Tracker
	log       *zap.Logger
}

// NewService wires the service to a tracker it does not own; publisher may be nil.
func NewService(store PositionStore, publisher Publisher, tracker *Tracker, log *zap.Logger) *Service {
	return &Service{store: store, publisher: publisher, tracker: tracker, log: logger.OrNop(log)}
}

func (s *Service) StartTracking(ctx context.Context, driverID, rideID types.ID) (Session, error) {
	if driverID == "" || rideID == "" {
		return Session{}, ErrBadRequest
	}
	return s.tracker.Start(driverID, rideID)
}

func (s *Service) StopTracking(ctx context.Context, driverID types.ID) error {
	sess, err := s.tracker.Stop(driverID)
	if err != nil {
		return err
	}
	if err := s.store.ClearPosition(ctx, driverID); err != nil {
		s.log.Warn("clear position failed", zap.String("driver_id", string(driverID)), zap.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.End(ctx, sess); err != nil {
			s.log.Warn("end realtime location failed", zap.String("ride_id", string(sess.RideID)), zap.Error(err))
		}
	}
	return nil
}

// UpdatePosition stores the newest point. The Redis write is the primary step;
// realtime publish and snapshot persistence are best effort.
func (s *Service) UpdatePosition(ctx context.Context, u Update) (UpdateResult, error) {
	if u.DriverID == "" || !u.Position.Valid() {
		return UpdateResult{}, ErrBadRequest
	}
	sess, accepted, snapshot, err := s.tracker.Accept(u.DriverID, u.Seq)
	if err != nil {
		return UpdateResult{}, err
	}
	if !accepted {
		return UpdateResult{}, nil
	}
	ts := u.TsMs
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	pos := Position{
		DriverID:  u.DriverID,
		RideID:    sess.RideID,
		Lat:       u.Position.Lat,
		Lng:       u.Position.Lng,
		Seq:       u.Seq,
		Timestamp: ts,
	}
	if err := s.store.SetPosition(ctx, pos); err != nil {
		return UpdateResult{}, err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, pos); err != nil {
			s.log.Warn("realtime publish failed", zap.String("ride_id", string(sess.RideID)), zap.Error(err))
		}
	}
	res := UpdateResult{Accepted: true}
	if snapshot {
		if err := s.store.AppendSnapshot(ctx, Snapshot{
			DriverID:   u.DriverID,
			RideID:     sess.RideID,
			Position:   u.Position,
			RecordedAt: time.UnixMilli(ts),
		}); err != nil {
			s.log.Warn("snapshot flush failed", zap.String("driver_id", string(u.DriverID)), zap.Error(err))
		} else {
			res.Snapshotted = true
		}
	}
	return res, nil
}

func (s *Service) Current(ctx context.Context, driverID types.ID) (Position, error) {
	return s.store.Position(ctx, driverID)
}

func (s *Service) Session(driverID types.ID) (Session, bool) {
	return s.tracker.Get(driverID)
}
