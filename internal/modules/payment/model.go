// README: Payment transaction for a booking and the individual gateway charges against it.
package payment

import (
	"time"

	"schoolride/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSuspended Status = "suspended"
)

type Kind string

const (
	KindUpfront Kind = "upfront"
	KindBalance Kind = "balance"
)

type Transaction struct {
	ID             types.ID  `json:"id"`
	BookingID      types.ID  `json:"booking_id"`
	ParentID       types.ID  `json:"parent_id"`
	DriverID       types.ID  `json:"driver_id"`
	Total          int64     `json:"total"`
	Upfront        int64     `json:"upfront"`
	Balance        int64     `json:"balance"`
	BalanceDueDate time.Time `json:"balance_due_date"`
	UpfrontPaid    int64     `json:"upfront_paid"`
	BalancePaid    int64     `json:"balance_paid"`
	Currency       string    `json:"currency"`
	Status         Status    `json:"status"`
	Version        int       `json:"-"`
	Records        []Record  `json:"records,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Record is one gateway charge attempt.
type Record struct {
	ID         types.ID  `json:"id"`
	Kind       Kind      `json:"kind"`
	Breakdown  Breakdown `json:"breakdown"`
	GatewayRef string    `json:"gateway_ref"`
	Succeeded  bool      `json:"succeeded"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (t *Transaction) Paid() int64 {
	return t.UpfrontPaid + t.BalancePaid
}

func (t *Transaction) Outstanding() int64 {
	return t.Total - t.Paid()
}

// DerivedStatus is the status implied by the paid amount alone.
func DerivedStatus(total, paid int64) Status {
	switch {
	case paid <= 0 && total > 0:
		return StatusPending
	case paid < total:
		return StatusPartial
	default:
		return StatusCompleted
	}
}

// Overdue reports whether an unpaid balance has passed its due date as of now.
func (t *Transaction) Overdue(now time.Time) bool {
	return t.Status == StatusPartial && t.Outstanding() > 0 && types.Day(now).After(types.Day(t.BalanceDueDate))
}
