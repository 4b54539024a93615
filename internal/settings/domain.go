package settings

import (
	"time"

	"github.com/google/uuid"
)

// Modules a setting can belong to.
const (
	ModuleApp       = "app"
	ModuleDashboard = "dashboard"
)

// Setting is a key/value configuration entry scoped to a module.
type Setting struct {
	ID        uuid.UUID `json:"id"`
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnownModule reports whether m is a recognised settings module.
func KnownModule(m string) bool {
	return m == ModuleApp || m == ModuleDashboard
}
