package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/internal/permissions"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// PermissionFinder is the slice of the permission store the linker needs to
// filter desired ids down to live permissions.
type PermissionFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID, excludeDeleted bool) ([]permissions.Permission, error)
}

// Service implements role CRUD and the assignment replacement protocol. Cache
// invalidation for a role always happens after its transaction commits,
// never before, so a concurrent reader cannot repopulate the cache with
// pre-commit data.
type Service struct {
	repo   Repository
	perms  PermissionFinder
	cache  *rbac.PermissionCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, perms PermissionFinder, cache *rbac.PermissionCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, perms: perms, cache: cache, audit: audit, logger: logger}
}

// Input carries role metadata plus the full desired permission set. The set
// is always a replacement: an empty (or nil) slice yields a role with zero
// assignments.
type Input struct {
	Name          string
	Value         string
	Description   string
	PermissionIDs []uuid.UUID
}

// Create inserts a new role with its initial assignment set.
func (s *Service) Create(ctx context.Context, actor *shared.Principal, in Input) (*Role, error) {
	value := strings.TrimSpace(strings.ToLower(in.Value))
	if value == "" {
		return nil, fmt.Errorf("role value required: %w", shared.ErrValidation)
	}

	// Uniqueness precheck fails the operation before any mutation.
	if _, err := s.repo.FindByValue(ctx, value); err == nil {
		return nil, fmt.Errorf("role value %q already exists: %w", value, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	live, err := s.filterLive(ctx, in.PermissionIDs)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.Create(ctx, Role{
		Name:        strings.TrimSpace(in.Name),
		Value:       value,
		Description: strings.TrimSpace(in.Description),
	}, live)
	if err != nil {
		return nil, transactionErr(err)
	}

	s.recordAudit(ctx, actor, "role.create", id)
	return s.repo.FindWithAssignments(ctx, id, false)
}

// Update persists metadata changes and atomically replaces the role's
// assignment set, then invalidates the role's cache entry.
func (s *Service) Update(ctx context.Context, actor *shared.Principal, id uuid.UUID, in Input) (*Role, error) {
	current, err := s.repo.FindWithAssignments(ctx, id, false)
	if err != nil {
		return nil, err
	}

	value := strings.TrimSpace(strings.ToLower(in.Value))
	if value == "" {
		value = current.Value
	}
	if value != current.Value {
		// Validate the new value before any mutating statement.
		if _, err := s.repo.FindByValue(ctx, value); err == nil {
			return nil, fmt.Errorf("role value %q already exists: %w", value, shared.ErrConflict)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	live, err := s.filterLive(ctx, in.PermissionIDs)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Value = value
	if name := strings.TrimSpace(in.Name); name != "" {
		next.Name = name
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		next.Description = desc
	}

	if err := s.repo.ReplaceAssignments(ctx, next, live); err != nil {
		return nil, transactionErr(err)
	}

	// Happens-after the commit above.
	s.cache.Invalidate(ctx, id)
	s.recordAudit(ctx, actor, "role.update", id)
	return s.repo.FindWithAssignments(ctx, id, false)
}

// ReplacePermissions swaps the assignment set while keeping metadata.
func (s *Service) ReplacePermissions(ctx context.Context, actor *shared.Principal, id uuid.UUID, permissionIDs []uuid.UUID) (*Role, error) {
	current, err := s.repo.FindWithAssignments(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, actor, id, Input{
		Name:          current.Name,
		Value:         current.Value,
		Description:   current.Description,
		PermissionIDs: permissionIDs,
	})
}

// Get fetches a live role with its referencing admins.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Role, error) {
	return s.repo.FindWithAdmins(ctx, id, false)
}

// GetSoftRemoved fetches a role regardless of lifecycle state.
func (s *Service) GetSoftRemoved(ctx context.Context, id uuid.UUID) (*Role, error) {
	return s.repo.FindWithAdmins(ctx, id, true)
}

// GetWithAssignments fetches a live role with permissions expanded.
func (s *Service) GetWithAssignments(ctx context.Context, id uuid.UUID) (*Role, error) {
	return s.repo.FindWithAssignments(ctx, id, false)
}

// List returns live roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx, false)
}

// ListSoftRemoved returns roles including soft-deleted ones.
func (s *Service) ListSoftRemoved(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx, true)
}

// Remove hard-deletes a role. Blocked while any live admin references it;
// the role, its assignments and the cache stay untouched in that case.
func (s *Service) Remove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	count, err := s.repo.CountAdmins(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%d admin(s) hold this role: %w", count, shared.ErrRoleInUse)
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	s.recordAudit(ctx, actor, "role.remove", id)
	return nil
}

// SoftRemove marks a role deleted; its resolved set becomes empty for
// deciders, so the cache entry is dropped.
func (s *Service) SoftRemove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	s.recordAudit(ctx, actor, "role.soft_remove", id)
	return nil
}

// Restore reactivates a soft-deleted role.
func (s *Service) Restore(ctx context.Context, actor *shared.Principal, id uuid.UUID) (*Role, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	s.recordAudit(ctx, actor, "role.restore", id)
	return s.repo.FindWithAssignments(ctx, id, false)
}

// filterLive dedupes the desired ids and keeps only permissions that exist
// and are not soft-deleted. Unknown and deleted ids are dropped silently;
// this is the one intentional silent behaviour in the protocol.
func (s *Service) filterLive(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	found, err := s.perms.FindByIDs(ctx, unique, true)
	if err != nil {
		return nil, err
	}
	live := make([]uuid.UUID, 0, len(found))
	for _, p := range found {
		live = append(live, p.ID)
	}
	if dropped := len(unique) - len(live); dropped > 0 && s.logger != nil {
		s.logger.Debug("dropped unknown or deleted permission ids", slog.Int("count", dropped))
	}
	return live, nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Principal, action string, id uuid.UUID) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "role",
		EntityID: id.String(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

// transactionErr keeps domain sentinels intact and tags everything else as a
// rolled-back transaction failure.
func transactionErr(err error) error {
	if err == nil || errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrConflict) {
		return err
	}
	return errors.Join(shared.ErrTransaction, err)
}
