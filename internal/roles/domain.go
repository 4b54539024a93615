package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/internal/permissions"
)

// Status is the lifecycle state derived from deleted_at.
type Status string

const (
	StatusActive      Status = "active"
	StatusSoftDeleted Status = "soft_deleted"
)

// Role groups permissions under a unique human-readable value.
type Role struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Value       string     `json:"value"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Permissions is the resolved assignment set, populated by
	// FindWithAssignments.
	Permissions []permissions.Permission `json:"permissions,omitempty"`
	// Admins lists referencing accounts, populated by FindWithAdmins.
	Admins []AdminRef `json:"admins,omitempty"`
}

// Status derives the lifecycle state.
func (r Role) Status() Status {
	if r.DeletedAt != nil {
		return StatusSoftDeleted
	}
	return StatusActive
}

// ActionKeys projects the resolved assignment set to action keys.
func (r Role) ActionKeys() []string {
	keys := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		keys = append(keys, p.ActionKey)
	}
	return keys
}

// AdminRef is the reduced admin shape embedded in role detail views.
type AdminRef struct {
	ID        uuid.UUID `json:"id"`
	UserName  string    `json:"user_name"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}
