package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/helmsman-hq/helmsman/internal/admins"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// AccountSource resolves login emails to admin accounts.
type AccountSource interface {
	FindByEmail(ctx context.Context, email string) (*admins.Admin, error)
}

// Service authenticates admins and manages their bearer tokens. Unknown
// email and wrong password both surface as ErrInvalidCredentials so the
// login form cannot be used to probe for accounts.
type Service struct {
	accounts AccountSource
	tokens   *TokenManager
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(accounts AccountSource, tokens *TokenManager, logger *slog.Logger) *Service {
	return &Service{accounts: accounts, tokens: tokens, logger: logger}
}

// Session is the result of a successful login.
type Session struct {
	Token string       `json:"token"`
	Admin admins.Admin `json:"admin"`
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("login %s: %w", email, shared.ErrInvalidCredentials)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("login %s: %w", email, shared.ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(ctx, shared.Principal{
		ID:     account.ID,
		Email:  account.Email,
		Role:   account.RoleValue,
		RoleID: account.RoleID,
	})
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("admin logged in", slog.String("email", email))
	}
	return &Session{Token: token, Admin: *account}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
