// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRateNotFound = errors.New("pricing rate not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, key string) (Rate, error) {
	var r Rate
	err := s.db.QueryRow(ctx, `SELECT rate_key, per_km, currency FROM pricing_rates WHERE rate_key = $1`, key).
		Scan(&r.Key, &r.PerKm, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}

func (s *Store) PutRate(ctx context.Context, r Rate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pricing_rates (rate_key, per_km, currency) VALUES ($1, $2, $3)
		ON CONFLICT (rate_key) DO UPDATE SET per_km = EXCLUDED.per_km, currency = EXCLUDED.currency`,
		r.Key, r.PerKm, r.Currency)
	return err
}
