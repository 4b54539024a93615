package shared

import "errors"

var (
	// ErrNotFound indicates the entity is absent, or soft-deleted when an
	// active-only lookup was requested.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique-constraint violation among live rows.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates an authorization denial.
	ErrForbidden = errors.New("forbidden")
	// ErrRoleInUse blocks role removal while admins still reference it.
	ErrRoleInUse = errors.New("role referenced by existing admins")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or unresolvable bearer credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates a malformed or incomplete request payload.
	ErrValidation = errors.New("validation failed")
	// ErrTransaction wraps assignment-replacement failures after rollback.
	ErrTransaction = errors.New("transaction failed")
)
