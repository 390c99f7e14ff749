// README: Notification delivery (inbox record + push), dispatch strategies and fan-out.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolride/internal/logger"
	"schoolride/internal/metrics"
	"schoolride/internal/types"
)

var (
	ErrNotFound   = errors.New("notification not found")
	ErrBadRequest = errors.New("bad request")
)

const defaultListLimit = 50

// Dispatcher hands a command off for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

type inboxStore interface {
	Insert(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID types.ID) error
}

type PushSender interface {
	Send(ctx context.Context, tokens []string, cmd Command) error
}

type TokenSource interface {
	DeviceTokens(ctx context.Context, userID types.ID) ([]string, error)
}

type Service struct {
	store  inboxStore
	push   PushSender
	tokens TokenSource
	log    *zap.Logger
	now    func() time.Time
}

// NewService accepts nil push and tokens; delivery is then inbox-only.
func NewService(store inboxStore, push PushSender, tokens TokenSource, log *zap.Logger) *Service {
	return &Service{store: store, push: push, tokens: tokens, log: logger.OrNop(log), now: time.Now}
}

// Deliver writes the inbox record and then pushes to the recipient's devices.
// The inbox record stands even when the push fails.
func (s *Service) Deliver(ctx context.Context, cmd Command) error {
	if err := validate(cmd); err != nil {
		return err
	}
	n := &Notification{
		ID:          types.NewID(),
		RecipientID: cmd.RecipientID,
		Kind:        cmd.Kind,
		Title:       cmd.Title,
		Body:        cmd.Body,
		Data:        cmd.Data,
		CreatedAt:   s.now(),
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return err
	}
	if s.push == nil || s.tokens == nil {
		return nil
	}
	tokens, err := s.tokens.DeviceTokens(ctx, cmd.RecipientID)
	if err != nil {
		return err
	}
	return s.push.Send(ctx, tokens, cmd)
}

func (s *Service) ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error) {
	if userID == "" {
		return nil, ErrBadRequest
	}
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	return s.store.ListForUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, id, userID types.ID) error {
	if id == "" || userID == "" {
		return ErrBadRequest
	}
	return s.store.MarkRead(ctx, id, userID)
}

func validate(cmd Command) error {
	if cmd.RecipientID == "" || cmd.Kind == "" || strings.TrimSpace(cmd.Title) == "" {
		return ErrBadRequest
	}
	return nil
}

// DirectDispatcher delivers inline; used when no broker is configured.
type DirectDispatcher struct {
	svc *Service
}

func NewDirectDispatcher(svc *Service) *DirectDispatcher {
	return &DirectDispatcher{svc: svc}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	return d.svc.Deliver(ctx, cmd)
}

// Fanout dispatches every command independently. Failures are logged and counted, never returned.
func Fanout(ctx context.Context, d Dispatcher, log *zap.Logger, cmds ...Command) int {
	log = logger.OrNop(log)
	if d == nil {
		return 0
	}
	sent := 0
	for _, cmd := range cmds {
		if err := d.Dispatch(ctx, cmd); err != nil {
			metrics.NotificationFailures.WithLabelValues("dispatch").Inc()
			log.Warn("notification dispatch failed",
				zap.String("recipient_id", string(cmd.RecipientID)),
				zap.String("kind", string(cmd.Kind)),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
