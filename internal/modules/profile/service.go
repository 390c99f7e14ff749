// README: Profile service: lookup, first-sign-in registration and admin user management.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolride/internal/types"
)

var (
	ErrNotFound   = errors.New("profile not found")
	ErrBadRequest = errors.New("bad request")
)

type store interface {
	Get(ctx context.Context, id types.ID) (*Profile, error)
	Insert(ctx context.Context, p *Profile) (*Profile, error)
	Update(ctx context.Context, id types.ID, f Fields) (*Profile, error)
	SetStatus(ctx context.Context, id types.ID, status Status) error
	List(ctx context.Context, role Role, status Status) ([]Profile, error)
	AddDeviceToken(ctx context.Context, id types.ID, token string) error
	DeviceTokens(ctx context.Context, id types.ID) ([]string, error)
}

type Service struct {
	store store
}

func NewService(store store) *Service {
	return &Service{store: store}
}

type UpsertCommand struct {
	ID    types.ID
	Role  Role
	Name  string
	Email string
	Phone string
}

// Upsert creates the profile on first sign-in. Parents are approved
// immediately; drivers wait for an admin.
func (s *Service) Upsert(ctx context.Context, cmd UpsertCommand) (*Profile, error) {
	if cmd.ID == "" || !cmd.Role.Valid() || cmd.Role == RoleAdmin {
		return nil, ErrBadRequest
	}
	if strings.TrimSpace(cmd.Email) == "" && strings.TrimSpace(cmd.Phone) == "" {
		return nil, ErrBadRequest
	}
	status := StatusApproved
	if cmd.Role == RoleDriver {
		status = StatusPending
	}
	return s.store.Insert(ctx, &Profile{
		ID:        cmd.ID,
		Role:      cmd.Role,
		Name:      strings.TrimSpace(cmd.Name),
		Email:     strings.TrimSpace(cmd.Email),
		Phone:     strings.TrimSpace(cmd.Phone),
		Status:    status,
		CreatedAt: time.Now(),
	})
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id types.ID, f Fields) (*Profile, error) {
	if f.Name == nil && f.Email == nil && f.Phone == nil {
		return nil, ErrBadRequest
	}
	return s.store.Update(ctx, id, f)
}

func (s *Service) List(ctx context.Context, role Role, status Status) ([]Profile, error) {
	if role != "" && !role.Valid() {
		return nil, ErrBadRequest
	}
	if status != "" && !status.Valid() {
		return nil, ErrBadRequest
	}
	return s.store.List(ctx, role, status)
}

func (s *Service) SetStatus(ctx context.Context, id types.ID, status Status) error {
	if !status.Valid() {
		return ErrBadRequest
	}
	return s.store.SetStatus(ctx, id, status)
}

// AdminIDs lists approved admins; used for emergency fan-out.
func (s *Service) AdminIDs(ctx context.Context) ([]types.ID, error) {
	admins, err := s.store.List(ctx, RoleAdmin, StatusApproved)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *Service) RegisterDeviceToken(ctx context.Context, id types.ID, token string) error {
	token = strings.TrimSpace(token)
	if id == "" || token == "" {
		return ErrBadRequest
	}
	return s.store.AddDeviceToken(ctx, id, token)
}

func (s *Service) DeviceTokens(ctx context.Context, id types.ID) ([]string, error) {
	return s.store.DeviceTokens(ctx, id)
}
