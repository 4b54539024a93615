package admins

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Repository defines persistence operations for admin accounts.
type Repository interface {
	Create(ctx context.Context, admin Admin) (*Admin, error)
	Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Admin, error)
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	List(ctx context.Context, includeDeleted bool, limit, offset int) ([]Admin, error)
	Count(ctx context.Context, includeDeleted bool) (int, error)
	Update(ctx context.Context, admin Admin) (*Admin, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const adminColumns = `a.id, a.ic, a.user_name, a.first_name, a.last_name, a.email,
	a.phone_number, a.password_hash, a.role_id, COALESCE(r.value, ''),
	a.created_at, a.updated_at, a.deleted_at`

const adminJoin = ` FROM admins a LEFT JOIN roles r ON r.id = a.role_id AND r.deleted_at IS NULL`

// Create inserts a new admin account.
func (r *PGRepository) Create(ctx context.Context, admin Admin) (*Admin, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO admins (ic, user_name, first_name, last_name, email, phone_number, password_hash, role_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		admin.IC, admin.UserName, admin.FirstName, admin.LastName,
		admin.Email, admin.Phone, admin.PasswordHash, admin.RoleID).Scan(&id)
	if err != nil {
		return nil, translateUnique(err)
	}
	return r.Find(ctx, id, false)
}

// Find fetches one admin by id.
func (r *PGRepository) Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Admin, error) {
	query := `SELECT ` + adminColumns + adminJoin + ` WHERE a.id = $1`
	if !includeDeleted {
		query += ` AND a.deleted_at IS NULL`
	}
	return scanAdmin(r.pool.QueryRow(ctx, query, id))
}

// FindByEmail fetches a live admin by email. Used by login.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	query := `SELECT ` + adminColumns + adminJoin + ` WHERE a.email = $1 AND a.deleted_at IS NULL`
	return scanAdmin(r.pool.QueryRow(ctx, query, email))
}

// List returns a page of admins ordered by user name.
func (r *PGRepository) List(ctx context.Context, includeDeleted bool, limit, offset int) ([]Admin, error) {
	query := `SELECT ` + adminColumns + adminJoin
	if !includeDeleted {
		query += ` WHERE a.deleted_at IS NULL`
	}
	query += ` ORDER BY a.user_name LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Admin
	for rows.Next() {
		admin, err := scanAdminRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *admin)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of admins visible to List.
func (r *PGRepository) Count(ctx context.Context, includeDeleted bool) (int, error) {
	query := `SELECT count(*) FROM admins`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	var total int
	if err := r.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Update persists changes to a live admin.
func (r *PGRepository) Update(ctx context.Context, admin Admin) (*Admin, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE admins
		SET ic = $2, user_name = $3, first_name = $4, last_name = $5,
		    email = $6, phone_number = $7, password_hash = $8, role_id = $9,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		admin.ID, admin.IC, admin.UserName, admin.FirstName, admin.LastName,
		admin.Email, admin.Phone, admin.PasswordHash, admin.RoleID)
	if err != nil {
		return nil, translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.Find(ctx, admin.ID, false)
}

// SoftDelete marks a live admin as removed.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admins SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Restore reactivates a soft-deleted admin. Fails with ErrConflict when a
// live admin meanwhile claimed the same email or ic.
func (r *PGRepository) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admins SET deleted_at = NULL, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HardDelete removes the admin irreversibly.
func (r *PGRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.IC, &a.UserName, &a.FirstName, &a.LastName, &a.Email,
		&a.Phone, &a.PasswordHash, &a.RoleID, &a.RoleValue,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAdminRow(rows pgx.Rows) (*Admin, error) {
	var a Admin
	err := rows.Scan(&a.ID, &a.IC, &a.UserName, &a.FirstName, &a.LastName, &a.Email,
		&a.Phone, &a.PasswordHash, &a.RoleID, &a.RoleValue,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "admins_email_live":
			return fmt.Errorf("email already registered: %w", shared.ErrConflict)
		case "admins_ic_live":
			return fmt.Errorf("ic already registered: %w", shared.ErrConflict)
		}
		return fmt.Errorf("duplicate admin: %w", shared.ErrConflict)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
