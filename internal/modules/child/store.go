// README: Child store backed by PostgreSQL.
package child

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

const childColumns = `id, parent_id, full_name, date_of_birth, gender, school_name,
	school_lat, school_lng, school_address, pickup_lat, pickup_lng, pickup_address,
	student_id, avatar_url, created_at, updated_at`

func scanChild(row pgx.Row) (*Child, error) {
	var c Child
	err := row.Scan(&c.ID, &c.ParentID, &c.FullName, &c.DateOfBirth, &c.Gender, &c.SchoolName,
		&c.SchoolLocation.Lat, &c.SchoolLocation.Lng, &c.SchoolLocation.Address,
		&c.TripStartLocation.Lat, &c.TripStartLocation.Lng, &c.TripStartLocation.Address,
		&c.StudentID, &c.AvatarURL, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) Create(ctx context.Context, c *Child) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO children (id, parent_id, full_name, date_of_birth, gender, school_name,
			school_lat, school_lng, school_address, pickup_lat, pickup_lng, pickup_address,
			student_id, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		string(c.ID), string(c.ParentID), c.FullName, c.DateOfBirth, c.Gender, c.SchoolName,
		c.SchoolLocation.Lat, c.SchoolLocation.Lng, c.SchoolLocation.Address,
		c.TripStartLocation.Lat, c.TripStartLocation.Lng, c.TripStartLocation.Address,
		c.StudentID, c.AvatarURL, c.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Child, error) {
	return scanChild(s.db.QueryRow(ctx, `SELECT `+childColumns+` FROM children WHERE id = $1`, string(id)))
}

func (s *Store) ListByParent(ctx context.Context, parentID types.ID) ([]Child, error) {
	rows, err := s.db.Query(ctx, `SELECT `+childColumns+` FROM children WHERE parent_id = $1 ORDER BY created_at`, string(parentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Update rewrites the child only when it belongs to parentID.
func (s *Store) Update(ctx context.Context, c *Child) (*Child, error) {
	return scanChild(s.db.QueryRow(ctx, `
		UPDATE children SET
			full_name = $3, date_of_birth = $4, gender = $5, school_name = $6,
			school_lat = $7, school_lng = $8, school_address = $9,
			pickup_lat = $10, pickup_lng = $11, pickup_address = $12,
			student_id = $13, avatar_url = $14, updated_at = NOW()
		WHERE id = $1 AND parent_id = $2
		RETURNING `+childColumns,
		string(c.ID), string(c.ParentID), c.FullName, c.DateOfBirth, c.Gender, c.SchoolName,
		c.SchoolLocation.Lat, c.SchoolLocation.Lng, c.SchoolLocation.Address,
		c.TripStartLocation.Lat, c.TripStartLocation.Lng, c.TripStartLocation.Address,
		c.StudentID, c.AvatarURL,
	))
}

func (s *Store) Delete(ctx context.Context, id, parentID types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM children WHERE id = $1 AND parent_id = $2`, string(id), string(parentID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
