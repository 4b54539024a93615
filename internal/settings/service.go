package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Service wraps setting business rules. Keys are unique across all modules;
// a duplicate key fails the whole operation before any write.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput carries fields for a new setting.
type CreateInput struct {
	Module string
	Key    string
	Value  string
}

// UpdateInput carries a partial update; nil fields keep their value.
type UpdateInput struct {
	Module *string
	Key    *string
	Value  *string
}

// Create inserts a new setting after checking the key is unused.
func (s *Service) Create(ctx context.Context, actor *shared.Principal, in CreateInput) (*Setting, error) {
	module := strings.TrimSpace(in.Module)
	if !KnownModule(module) {
		return nil, fmt.Errorf("unknown settings module %q: %w", module, shared.ErrValidation)
	}
	key := strings.TrimSpace(in.Key)
	if err := s.checkKeyFree(ctx, key); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, Setting{
		Module: module,
		Key:    key,
		Value:  strings.TrimSpace(in.Value),
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "setting.create", created.ID)
	return created, nil
}

// Get fetches one setting.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Setting, error) {
	return s.repo.Find(ctx, id)
}

// List returns all settings.
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.repo.List(ctx)
}

// ListByModule returns the settings of one module.
func (s *Service) ListByModule(ctx context.Context, module string) ([]Setting, error) {
	module = strings.TrimSpace(module)
	if !KnownModule(module) {
		return nil, fmt.Errorf("unknown settings module %q: %w", module, shared.ErrValidation)
	}
	return s.repo.ListByModule(ctx, module)
}

// Update applies a partial update. A key change re-runs the uniqueness check
// before anything is written.
func (s *Service) Update(ctx context.Context, actor *shared.Principal, id uuid.UUID, in UpdateInput) (*Setting, error) {
	current, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.Module != nil {
		module := strings.TrimSpace(*in.Module)
		if !KnownModule(module) {
			return nil, fmt.Errorf("unknown settings module %q: %w", module, shared.ErrValidation)
		}
		next.Module = module
	}
	if in.Key != nil {
		key := strings.TrimSpace(*in.Key)
		if key != current.Key {
			if err := s.checkKeyFree(ctx, key); err != nil {
				return nil, err
			}
		}
		next.Key = key
	}
	if in.Value != nil {
		next.Value = strings.TrimSpace(*in.Value)
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "setting.update", id)
	return updated, nil
}

// Remove deletes a setting.
func (s *Service) Remove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "setting.remove", id)
	return nil
}

func (s *Service) checkKeyFree(ctx context.Context, key string) error {
	_, err := s.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		return fmt.Errorf("setting key %q already exists: %w", key, shared.ErrConflict)
	case errors.Is(err, shared.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Principal, action string, id uuid.UUID) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "setting",
		EntityID: id.String(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
