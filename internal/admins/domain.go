package admins

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state derived from deleted_at.
type Status string

const (
	StatusActive      Status = "active"
	StatusSoftDeleted Status = "soft_deleted"
)

// Admin is an administrative account. PasswordHash never leaves the service
// layer.
type Admin struct {
	ID           uuid.UUID  `json:"id"`
	IC           string     `json:"ic"`
	UserName     string     `json:"user_name"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	PasswordHash string     `json:"-"`
	RoleID       *uuid.UUID `json:"role_id,omitempty"`
	RoleValue    string     `json:"role,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Status derives the lifecycle state.
func (a Admin) Status() Status {
	if a.DeletedAt != nil {
		return StatusSoftDeleted
	}
	return StatusActive
}

// FullName joins the name parts for display.
func (a Admin) FullName() string {
	if a.FirstName == "" {
		return a.LastName
	}
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}
