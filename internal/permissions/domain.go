package permissions

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

// Permission represents a single permitted operation identified by its
// action key.
type Permission struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	ActionKey   string     `json:"action_key"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Status derives the lifecycle state.
func (p Permission) Status() Status {
	if p.DeletedAt != nil {
		return StatusSoftDeleted
	}
	return StatusActive
}

// GroupEntry is the per-permission shape inside a category group.
type GroupEntry struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ActionKey string    `json:"action_key"`
}

// CategoryGroup is the grouped-by-category read view consumed by permission
// editing screens.
type CategoryGroup struct {
	Category string       `json:"category"`
	Label    string       `json:"label"`
	Actions  []GroupEntry `json:"actions"`
}
