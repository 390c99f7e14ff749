// README: Profile store backed by PostgreSQL.
package profile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const profileColumns = `id, role, name, email, phone, status, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Role, &p.Name, &p.Email, &p.Phone, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, string(id)))
}

// Insert creates the profile if absent and returns the stored row either way.
func (s *Store) Insert(ctx context.Context, p *Profile) (*Profile, error) {
	return scanProfile(s.db.QueryRow(ctx, `
		INSERT INTO profiles (id, role, name, email, phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING `+profileColumns,
		string(p.ID), string(p.Role), p.Name, p.Email, p.Phone, string(p.Status), p.CreatedAt,
	))
}

func (s *Store) Update(ctx context.Context, id types.ID, f Fields) (*Profile, error) {
	return scanProfile(s.db.QueryRow(ctx, `
		UPDATE profiles SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns,
		string(id), f.Name, f.Email, f.Phone,
	))
}

func (s *Store) SetStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE profiles SET status = $2, updated_at = NOW() WHERE id = $1`, string(id), string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, role Role, status Status) ([]Profile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE ($1 = '' OR role = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, string(role), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) AddDeviceToken(ctx context.Context, id types.ID, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token) VALUES ($1, $2)
		ON CONFLICT (user_id, token) DO NOTHING`, string(id), token)
	return err
}

func (s *Store) DeviceTokens(ctx context.Context, id types.ID) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT token FROM device_tokens WHERE user_id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
