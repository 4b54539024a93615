package admins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/helmsman-hq/helmsman/internal/roles"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// RoleDirectory is the slice of the role store the service needs to validate
// role references.
type RoleDirectory interface {
	FindWithAssignments(ctx context.Context, id uuid.UUID, includeDeleted bool) (*roles.Role, error)
}

// Service wraps admin account business rules. Passwords are hashed with
// bcrypt before they reach the repository; a hash is never returned to
// callers.
type Service struct {
	repo   Repository
	roles  RoleDirectory
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, roles RoleDirectory, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

// CreateInput carries fields for a new admin account.
type CreateInput struct {
	IC        string
	UserName  string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	RoleID    *uuid.UUID
}

// UpdateInput carries a partial update; nil fields keep their value. A
// non-nil RoleID pointing at uuid.Nil clears the role.
type UpdateInput struct {
	IC        *string
	UserName  *string
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Password  *string
	RoleID    *uuid.UUID
}

// ProfileInput is the self-service subset of UpdateInput. Role and ic stay
// admin-managed.
type ProfileInput struct {
	UserName  *string
	FirstName *string
	LastName  *string
	Phone     *string
	Password  *string
}

// Create registers a new admin account.
func (s *Service) Create(ctx context.Context, actor *shared.Principal, in CreateInput) (*Admin, error) {
	if err := s.checkRole(ctx, in.RoleID); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, Admin{
		IC:           strings.TrimSpace(in.IC),
		UserName:     strings.TrimSpace(in.UserName),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        normalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		RoleID:       in.RoleID,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "admin.create", created.ID)
	return created, nil
}

// Get fetches one live admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return s.repo.Find(ctx, id, false)
}

// GetSoftRemoved fetches an admin regardless of lifecycle state.
func (s *Service) GetSoftRemoved(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return s.repo.Find(ctx, id, true)
}

// List returns one page of live admins plus pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Admin, shared.Pagination, error) {
	return s.list(ctx, false, page, perPage)
}

// ListSoftRemoved returns one page of admins including soft-deleted ones.
func (s *Service) ListSoftRemoved(ctx context.Context, page, perPage int) ([]Admin, shared.Pagination, error) {
	return s.list(ctx, true, page, perPage)
}

func (s *Service) list(ctx context.Context, includeDeleted bool, page, perPage int) ([]Admin, shared.Pagination, error) {
	total, err := s.repo.Count(ctx, includeDeleted)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	meta := shared.NewPagination(page, perPage, total)
	out, err := s.repo.List(ctx, includeDeleted, meta.PerPage, (meta.Page-1)*meta.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, meta, nil
}

// Update applies a partial update to a live admin.
func (s *Service) Update(ctx context.Context, actor *shared.Principal, id uuid.UUID, in UpdateInput) (*Admin, error) {
	current, err := s.repo.Find(ctx, id, false)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.IC != nil {
		next.IC = strings.TrimSpace(*in.IC)
	}
	if in.UserName != nil {
		next.UserName = strings.TrimSpace(*in.UserName)
	}
	if in.FirstName != nil {
		next.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		next.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		next.Email = normalizeEmail(*in.Email)
	}
	if in.Phone != nil {
		next.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Password != nil {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		next.PasswordHash = hash
	}
	if in.RoleID != nil {
		if *in.RoleID == uuid.Nil {
			next.RoleID = nil
		} else {
			if err := s.checkRole(ctx, in.RoleID); err != nil {
				return nil, err
			}
			next.RoleID = in.RoleID
		}
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "admin.update", id)
	return updated, nil
}

// Profile fetches the calling admin's own account.
func (s *Service) Profile(ctx context.Context, principal *shared.Principal) (*Admin, error) {
	if principal == nil {
		return nil, shared.ErrUnauthorized
	}
	return s.repo.Find(ctx, principal.ID, false)
}

// UpdateProfile applies the self-service subset of fields to the calling
// admin's own account.
func (s *Service) UpdateProfile(ctx context.Context, principal *shared.Principal, in ProfileInput) (*Admin, error) {
	if principal == nil {
		return nil, shared.ErrUnauthorized
	}
	return s.Update(ctx, principal, principal.ID, UpdateInput{
		UserName:  in.UserName,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Password:  in.Password,
	})
}

// SoftRemove marks an admin deleted; their sessions stay valid until they
// expire or are revoked, but the account no longer resolves for login.
func (s *Service) SoftRemove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "admin.soft_remove", id)
	return nil
}

// Restore reactivates a soft-deleted admin.
func (s *Service) Restore(ctx context.Context, actor *shared.Principal, id uuid.UUID) (*Admin, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "admin.restore", id)
	return s.repo.Find(ctx, id, false)
}

// Remove hard-deletes an admin from either lifecycle state.
func (s *Service) Remove(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if err := s.repo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "admin.remove", id)
	return nil
}

// checkRole verifies the referenced role exists and is live.
func (s *Service) checkRole(ctx context.Context, roleID *uuid.UUID) error {
	if roleID == nil || s.roles == nil {
		return nil
	}
	if _, err := s.roles.FindWithAssignments(ctx, *roleID, false); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("role %s does not exist: %w", roleID, shared.ErrValidation)
		}
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Principal, action string, id uuid.UUID) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "admin",
		EntityID: id.String(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters: %w", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
