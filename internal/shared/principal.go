package shared

import "github.com/google/uuid"

// Principal describes the authenticated actor attached to a request.
// RoleID is nil when the account carries no role reference; deciders treat
// that as "no role".
type Principal struct {
	ID     uuid.UUID  `json:"id"`
	Email  string     `json:"email"`
	Role   string     `json:"role"`
	RoleID *uuid.UUID `json:"role_id,omitempty"`
}

// HasRole reports whether the principal carries a role reference.
func (p *Principal) HasRole() bool {
	return p != nil && p.RoleID != nil
}
