// README: Child registered by a parent, with the school and the trip start location.
package child

import (
	"time"

	"schoolride/internal/types"
)

type Child struct {
	ID                types.ID       `json:"id"`
	ParentID          types.ID       `json:"parent_id"`
	FullName          string         `json:"full_name"`
	DateOfBirth       *time.Time     `json:"date_of_birth,omitempty"`
	Gender            string         `json:"gender"`
	SchoolName        string         `json:"school_name"`
	SchoolLocation    types.Location `json:"school_location"`
	TripStartLocation types.Location `json:"trip_start_location"`
	StudentID         string         `json:"student_id"`
	AvatarURL         string         `json:"avatar_url"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type CreateCommand struct {
	ParentID          types.ID
	FullName          string
	DateOfBirth       *time.Time
	Gender            string
	SchoolName        string
	SchoolLocation    types.Location
	TripStartLocation types.Location
	StudentID         string
	AvatarURL         string
}

// UpdateCommand replaces the mutable fields; the same rules as create apply.
type UpdateCommand struct {
	ID       types.ID
	ParentID types.ID
	CreateCommand
}
