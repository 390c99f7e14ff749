// README: Payment store backed by PostgreSQL.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const transactionColumns = `id, booking_id, parent_id, driver_id, total_amount, upfront_amount, balance_amount,
	balance_due_date, upfront_paid, balance_paid, currency, status, version, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.BookingID, &t.ParentID, &t.DriverID, &t.Total, &t.Upfront, &t.Balance,
		&t.BalanceDueDate, &t.UpfrontPaid, &t.BalancePaid, &t.Currency, &t.Status, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, t *Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_transactions (
			id, booking_id, parent_id, driver_id, total_amount, upfront_amount, balance_amount,
			balance_due_date, upfront_paid, balance_paid, currency, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		string(t.ID), string(t.BookingID), string(t.ParentID), string(t.DriverID),
		t.Total, t.Upfront, t.Balance, t.BalanceDueDate, t.UpfrontPaid, t.BalancePaid,
		t.Currency, string(t.Status), t.Version, t.CreatedAt,
	)
	return err
}

// Get loads the transaction with its charge records, oldest first.
func (s *Store) Get(ctx context.Context, id types.ID) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, string(id)))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, amount, gateway_fee, system_commission, driver_earning, gateway_ref, succeeded, message, created_at
		FROM payments WHERE transaction_id = $1 ORDER BY created_at`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Kind, &r.Breakdown.Amount, &r.Breakdown.GatewayFee, &r.Breakdown.SystemCommission,
			&r.Breakdown.DriverEarning, &r.GatewayRef, &r.Succeeded, &r.Message, &r.CreatedAt); err != nil {
			return nil, err
		}
		t.Records = append(t.Records, r)
	}
	return t, rows.Err()
}

func (s *Store) GetByBooking(ctx context.Context, bookingID types.ID) (*Transaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM payment_transactions
		WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`, string(bookingID)))
}

func (s *Store) ListByParent(ctx context.Context, parentID types.ID) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM payment_transactions
		WHERE parent_id = $1 ORDER BY created_at DESC`, string(parentID))
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListOverdue returns partially paid transactions whose balance due date is before asOf.
func (s *Store) ListOverdue(ctx context.Context, asOf time.Time) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM payment_transactions
		WHERE status = 'partial' AND balance_due_date < $1::date
		  AND upfront_paid + balance_paid < total_amount`, asOf)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// Save writes t if its version is unchanged and, when rec is non-nil, appends the charge record
// in the same database transaction.
func (s *Store) Save(ctx context.Context, t *Transaction, rec *Record) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payment_transactions SET
			total_amount = $1, balance_amount = $2, balance_due_date = $3,
			upfront_paid = $4, balance_paid = $5, status = $6,
			version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8`,
		t.Total, t.Balance, t.BalanceDueDate, t.UpfrontPaid, t.BalancePaid, string(t.Status),
		string(t.ID), t.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if rec != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payments (id, transaction_id, kind, amount, gateway_fee, system_commission, driver_earning,
				gateway_ref, succeeded, message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			string(rec.ID), string(t.ID), string(rec.Kind), rec.Breakdown.Amount, rec.Breakdown.GatewayFee,
			rec.Breakdown.SystemCommission, rec.Breakdown.DriverEarning, rec.GatewayRef, rec.Succeeded, rec.Message, rec.CreatedAt,
		); err != nil {
			return false, fmt.Errorf("insert payment record: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
