// README: Account profile keyed by the identity provider uid.
package profile

import (
	"time"

	"schoolride/internal/types"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleDriver || r == RoleAdmin
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusSuspended
}

type Profile struct {
	ID        types.ID  `json:"id"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fields is a partial update; nil members are left unchanged.
type Fields struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}
