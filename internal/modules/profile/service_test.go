package profile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"schoolride/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[types.ID]*Profile
	tokens   map[types.ID][]string
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[types.ID]*Profile), tokens: make(map[types.ID][]string)}
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Insert(_ context.Context, p *Profile) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return p, nil
}

func (m *memStore) Update(_ context.Context, id types.ID, f Fields) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Email != nil {
		p.Email = *f.Email
	}
	if f.Phone != nil {
		p.Phone = *f.Phone
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SetStatus(_ context.Context, id types.ID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *memStore) List(_ context.Context, role Role, status Status) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for _, p := range m.profiles {
		if (role == "" || p.Role == role) && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) AddDeviceToken(_ context.Context, id types.ID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens[id] {
		if t == token {
			return nil
		}
	}
	m.tokens[id] = append(m.tokens[id], token)
	return nil
}

func (m *memStore) DeviceTokens(_ context.Context, id types.ID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens[id]...), nil
}

func TestUpsert_StatusByRole(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	parent, err := svc.Upsert(ctx, UpsertCommand{ID: "p1", Role: RoleParent, Email: "p@example.com"})
	if err != nil {
		t.Fatalf("upsert parent: %v", err)
	}
	if parent.Status != StatusApproved {
		t.Errorf("parent status = %s, want approved", parent.Status)
	}

	drv, err := svc.Upsert(ctx, UpsertCommand{ID: "d1", Role: RoleDriver, Phone: "+94770000000"})
	if err != nil {
		t.Fatalf("upsert driver: %v", err)
	}
	if drv.Status != StatusPending {
		t.Errorf("driver status = %s, want pending", drv.Status)
	}
}

func TestUpsert_KeepsExisting(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()
	if _, err := svc.Upsert(ctx, UpsertCommand{ID: "p1", Role: RoleParent, Name: "First", Email: "a@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, err := svc.Upsert(ctx, UpsertCommand{ID: "p1", Role: RoleParent, Name: "Second", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if again.Name != "First" {
		t.Errorf("name = %q, want First", again.Name)
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc := NewService(newMemStore())
	cases := []struct {
		name string
		cmd  UpsertCommand
	}{
		{"missing id", UpsertCommand{Role: RoleParent, Email: "x@example.com"}},
		{"bad role", UpsertCommand{ID: "u", Role: "pilot", Email: "x@example.com"}},
		{"self admin", UpsertCommand{ID: "u", Role: RoleAdmin, Email: "x@example.com"}},
		{"no contact", UpsertCommand{ID: "u", Role: RoleParent}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Upsert(context.Background(), tc.cmd); !errors.Is(err, ErrBadRequest) {
				t.Fatalf("err = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestUpdate_RequiresField(t *testing.T) {
	svc := NewService(newMemStore())
	if _, err := svc.Update(context.Background(), "p1", Fields{}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestAdminIDs(t *testing.T) {
	store := newMemStore()
	store.profiles["a1"] = &Profile{ID: "a1", Role: RoleAdmin, Status: StatusApproved}
	store.profiles["a2"] = &Profile{ID: "a2", Role: RoleAdmin, Status: StatusSuspended}
	store.profiles["p1"] = &Profile{ID: "p1", Role: RoleParent, Status: StatusApproved}

	ids, err := NewService(store).AdminIDs(context.Background())
	if err != nil {
		t.Fatalf("admin ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("ids = %v, want [a1]", ids)
	}
}

func TestSetStatus(t *testing.T) {
	store := newMemStore()
	store.profiles["d1"] = &Profile{ID: "d1", Role: RoleDriver, Status: StatusPending}
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.SetStatus(ctx, "d1", "banned"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
	if err := svc.SetStatus(ctx, "d1", StatusApproved); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if store.profiles["d1"].Status != StatusApproved {
		t.Errorf("status = %s", store.profiles["d1"].Status)
	}
	if err := svc.SetStatus(ctx, "missing", StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegisterDeviceToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	if err := svc.RegisterDeviceToken(ctx, "p1", "  "); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
	_ = svc.RegisterDeviceToken(ctx, "p1", "tok")
	_ = svc.RegisterDeviceToken(ctx, "p1", "tok")
	tokens, _ := svc.DeviceTokens(ctx, "p1")
	if len(tokens) != 1 {
		t.Fatalf("tokens = %v, want one", tokens)
	}
}
