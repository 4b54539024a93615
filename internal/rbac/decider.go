package rbac

import (
	"context"
	"strings"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

// RoleSource resolves a role to its live action keys: assignments whose
// permission (and role) are not soft-deleted, projected to action_key. A
// missing or soft-deleted role resolves to an empty set.
type RoleSource interface {
	ResolveActionKeys(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// Decider evaluates route gates against the authenticated principal. It is
// the only reader of the PermissionCache and its only populator.
type Decider struct {
	cache  *PermissionCache
	roles  RoleSource
	logger *slog.Logger
	group  singleflight.Group
}

// NewDecider constructs a Decider.
func NewDecider(cache *PermissionCache, roles RoleSource, logger *slog.Logger) *Decider {
	return &Decider{cache: cache, roles: roles, logger: logger}
}

// Decide returns nil when the gate admits the principal. Role and permission
// gate types combine with AND; within the permission set a single match is
// enough. Empty gate slices are unprotected.
func (d *Decider) Decide(ctx context.Context, principal *shared.Principal, gate Gate) error {
	requiredRoles := normalize(gate.Roles)
	requiredKeys := normalize(gate.Permissions)

	if len(requiredRoles) == 0 && len(requiredKeys) == 0 {
		return nil
	}
	if principal == nil {
		return shared.ErrUnauthorized
	}

	if len(requiredRoles) > 0 {
		if !contains(requiredRoles, strings.ToLower(principal.Role)) {
			return &DenyError{Reason: DenyRoleNotAllowed, Required: requiredRoles}
		}
	}

	if len(requiredKeys) > 0 {
		if !principal.HasRole() {
			return &DenyError{Reason: DenyNoRole}
		}
		resolved, err := d.roleActionKeys(ctx, *principal.RoleID)
		if err != nil {
			return err
		}
		if len(resolved) == 0 {
			return &DenyError{Reason: DenyNoPermissionsAssigned}
		}
		if !intersects(resolved, requiredKeys) {
			return &DenyError{Reason: DenyMissingPermission, Required: requiredKeys}
		}
	}

	return nil
}

// roleActionKeys consults the cache and falls through to the RoleSource on
// miss, collapsing concurrent misses for the same role into one load.
func (d *Decider) roleActionKeys(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	if keys, ok := d.cache.Get(ctx, roleID); ok {
		return keys, nil
	}

	resultChan := d.group.DoChan(roleID.String(), func() (any, error) {
		keys, err := d.roles.ResolveActionKeys(ctx, roleID)
		if err != nil {
			return nil, err
		}
		d.cache.Put(ctx, roleID, keys)
		return keys, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func intersects(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[strings.ToLower(g)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
