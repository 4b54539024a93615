package permissions

import (
	"context"
	"strings"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Service wraps permission business rules. Every mutation that can change a
// role's resolved action keys flushes the whole permission cache: the cache
// is keyed by role and carries no reverse index from permission to roles.
type Service struct {
	repo   Repository
	cache  *rbac.PermissionCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, cache *rbac.PermissionCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// CreateInput carries fields for a new permission.
type CreateInput struct {
	Name        string
	Category    string
	ActionKey   string
	Description string
}

// UpdateInput carries a partial update; nil fields keep their value.
type UpdateInput struct {
	Name        *string
	Category    *string
	ActionKey   *string
	Description *string
}

// Create inserts a new permission.
func (s *Service) Create(ctx context.Context, actor *shared.Principal, in CreateInput) (*Permission, error) {
	p := Permission{
		Name:        strings.TrimSpace(in.Name),
		Category:    normalizeToken(in.Category),
		ActionKey:   normalizeToken(in.ActionKey),
		Description: strings.TrimSpace(in.Description),
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "permission.create", created.ID)
	return created, nil
}

// Get fetches one live permission.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Permission, error) {
	return s.repo.Find(ctx, id, false)
}

// GetSoftRemoved fetches a permission regardless of lifecycle state.
func (s *Service) GetSoftRemoved(ctx context.Context, id uuid.UUID) (*Permission, error) {
	return s.repo.Find(ctx, id, true)
}

// List returns live permissions.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx, false)
}

// ListSoftRemoved returns permissions including soft-deleted ones.
func (s *Service) ListSoftRemoved(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx, true)
}

// ListGrouped returns the category → actions view for permission editing
// screens.
func (s *Service) ListGrouped(ctx context.Context) ([]CategoryGroup, error) {
	perms, err := s.repo.ListGrouped(ctx)
	if err != nil {
		return nil, err
	}

	titler := cases.Title(language.English)
	var groups []CategoryGroup
	index := make(map[string]int)
	for _, p := range perms {
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, CategoryGroup{
				Category: p.Category,
				Label:    titler.String(p.Category),
			})
		}
		groups[i].Actions = append(groups[i].Actions, GroupEntry{
			ID:        p.ID,
			Name:      p.Name,
			ActionKey: p.ActionKey,
		})
	}
	return groups, nil
}

// Update applies a partial update. Changing identity-affecting fields
// (category, action key) invalidates every cached role set.
func (s *Service) Update(ctx context.Context, actor *shared.Principal, id uuid.UUID, in UpdateInput) (*Permission, error) {
	current, err := s.repo.Find(ctx, id, false)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.Name != nil {
		next.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		next.Category = normalizeToken(*in.Category)
	}
	if in.ActionKey != nil {
		next.ActionKey = normalizeToken(*in.ActionKey)
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}

	if updated.ActionKey != current.ActionKey || updated.Category != current.Category {
		s.cache.InvalidateAll(ctx)
	}
	s.recordAudit(ctx, actor, "permission.update", id)
	return updated, nil
}

// SoftRemove marks a permission deleted. Existing assignments persist until
// pruned, but resolved sets exclude it immediately, hence the flush.
func (s *Service) SoftRemove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateAll(ctx)
	s.recordAudit(ctx, actor, "permission.soft_remove", id)
	return nil
}

// Restore reactivates a soft-deleted permission.
func (s *Service) Restore(ctx context.Context, actor *shared.Principal, id uuid.UUID) (*Permission, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)
	s.recordAudit(ctx, actor, "permission.restore", id)
	return s.repo.Find(ctx, id, false)
}

// Remove hard-deletes a permission from either lifecycle state.
func (s *Service) Remove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateAll(ctx)
	s.recordAudit(ctx, actor, "permission.remove", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Principal, action string, id uuid.UUID) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "permission",
		EntityID: id.String(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

func normalizeToken(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
