package rbac

import (
	"fmt"
	"strings"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Gate declares the requirements protecting a route. Both gate types may be
// set; they combine with AND. Within Permissions the semantics are any-of: a
// single matching action key grants access. An empty slice leaves that gate
// type unprotected.
type Gate struct {
	Roles       []string
	Permissions []string
}

// DenyReason qualifies an authorization denial.
type DenyReason string

const (
	DenyNoRole                DenyReason = "no_role"
	DenyNoPermissionsAssigned DenyReason = "no_permissions_assigned"
	DenyMissingPermission     DenyReason = "missing_permission"
	DenyRoleNotAllowed        DenyReason = "role_not_allowed"
)

// DenyError is returned by the decider when access is refused. It unwraps to
// shared.ErrForbidden so transport layers map it to 403.
type DenyError struct {
	Reason   DenyReason
	Required []string
}

func (e *DenyError) Error() string {
	switch e.Reason {
	case DenyNoRole:
		return "forbidden: account carries no role"
	case DenyNoPermissionsAssigned:
		return "forbidden: role has no permissions assigned"
	case DenyMissingPermission:
		return fmt.Sprintf("forbidden: missing permission, requires one of [%s]", strings.Join(e.Required, ", "))
	case DenyRoleNotAllowed:
		return fmt.Sprintf("forbidden: role not allowed, requires one of [%s]", strings.Join(e.Required, ", "))
	}
	return "forbidden"
}

// Is makes errors.Is(err, shared.ErrForbidden) succeed.
func (e *DenyError) Is(target error) bool {
	return target == shared.ErrForbidden
}
