// README: Child service: parent-owned CRUD with input validation.
package child

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolride/internal/types"
)

var (
	ErrNotFound   = errors.New("child not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("child belongs to another parent")
)

type store interface {
	Create(ctx context.Context, c *Child) error
	Get(ctx context.Context, id types.ID) (*Child, error)
	ListByParent(ctx context.Context, parentID types.ID) ([]Child, error)
	Update(ctx context.Context, c *Child) (*Child, error)
	Delete(ctx context.Context, id, parentID types.ID) error
}

type Service struct {
	store store
}

func NewService(store store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Child, error) {
	if err := validate(&cmd); err != nil {
		return nil, err
	}
	now := time.Now()
	c := fromCommand(types.NewID(), cmd)
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads any child; callers that must enforce ownership use GetOwned.
func (s *Service) Get(ctx context.Context, id types.ID) (*Child, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetOwned(ctx context.Context, id, parentID types.ID) (*Child, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ParentID != parentID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, parentID types.ID) ([]Child, error) {
	if parentID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByParent(ctx, parentID)
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Child, error) {
	if cmd.ID == "" {
		return nil, ErrBadRequest
	}
	cmd.CreateCommand.ParentID = cmd.ParentID
	if err := validate(&cmd.CreateCommand); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, fromCommand(cmd.ID, cmd.CreateCommand))
}

func (s *Service) Delete(ctx context.Context, id, parentID types.ID) error {
	if id == "" || parentID == "" {
		return ErrBadRequest
	}
	return s.store.Delete(ctx, id, parentID)
}

func validate(cmd *CreateCommand) error {
	cmd.FullName = strings.TrimSpace(cmd.FullName)
	cmd.SchoolName = strings.TrimSpace(cmd.SchoolName)
	if cmd.ParentID == "" || cmd.FullName == "" || cmd.SchoolName == "" {
		return ErrBadRequest
	}
	if !cmd.SchoolLocation.Point().Valid() || !cmd.TripStartLocation.Point().Valid() {
		return ErrBadRequest
	}
	if cmd.DateOfBirth != nil && cmd.DateOfBirth.After(time.Now()) {
		return ErrBadRequest
	}
	return nil
}

func fromCommand(id types.ID, cmd CreateCommand) *Child {
	return &Child{
		ID:                id,
		ParentID:          cmd.ParentID,
		FullName:          cmd.FullName,
		DateOfBirth:       cmd.DateOfBirth,
		Gender:            strings.TrimSpace(cmd.Gender),
		SchoolName:        cmd.SchoolName,
		SchoolLocation:    cmd.SchoolLocation,
		TripStartLocation: cmd.TripStartLocation,
		StudentID:         strings.TrimSpace(cmd.StudentID),
		AvatarURL:         strings.TrimSpace(cmd.AvatarURL),
	}
}
