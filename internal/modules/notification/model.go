// README: Notification commands and the in-app inbox record.
package notification

import (
	"time"

	"schoolride/internal/types"
)

type Kind string

const (
	KindBookingRequest  Kind = "booking_request"
	KindBookingStatus   Kind = "booking_status"
	KindPayment         Kind = "payment"
	KindBalanceOverdue  Kind = "balance_overdue"
	KindAttendance      Kind = "attendance"
	KindTripCompleted   Kind = "trip_completed"
	KindEmergency       Kind = "emergency"
	KindAccountApproval Kind = "account_status"
)

// Command is one message for one recipient. It is published only after the
// state change it describes has committed.
type Command struct {
	RecipientID types.ID          `json:"recipient_id"`
	Kind        Kind              `json:"kind"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

type Notification struct {
	ID          types.ID          `json:"id"`
	RecipientID types.ID          `json:"recipient_id"`
	Kind        Kind              `json:"kind"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
