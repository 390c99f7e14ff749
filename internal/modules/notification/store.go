// README: In-app notification inbox backed by PostgreSQL.
package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, title, body, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(n.ID), string(n.RecipientID), string(n.Kind), n.Title, n.Body, data, n.CreatedAt,
	)
	return err
}

func (s *Store) ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, recipient_id, kind, title, body, data, read_at, created_at
		FROM notifications WHERE recipient_id = $1
		ORDER BY created_at DESC LIMIT $2`, string(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Title, &n.Body, &n.Data, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, id, userID types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_id = $2`, string(id), string(userID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
