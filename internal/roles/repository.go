package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helmsman-hq/helmsman/internal/permissions"
	"github.com/helmsman-hq/helmsman/internal/platform/db"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

// Repository defines persistence operations for roles and their assignment
// sets. Soft-delete filtering is a query parameter, never a separate code
// path.
type Repository interface {
	Create(ctx context.Context, role Role, permissionIDs []uuid.UUID) (uuid.UUID, error)
	FindWithAssignments(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Role, error)
	FindWithAdmins(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Role, error)
	FindByValue(ctx context.Context, value string) (*Role, error)
	List(ctx context.Context, includeDeleted bool) ([]Role, error)
	ReplaceAssignments(ctx context.Context, role Role, permissionIDs []uuid.UUID) error
	CountAdmins(ctx context.Context, id uuid.UUID) (int, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	ResolveActionKeys(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = "id, name, value, description, created_at, updated_at, deleted_at"

// Create inserts the role and its initial assignment rows in one
// transaction.
func (r *PGRepository) Create(ctx context.Context, role Role, permissionIDs []uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (name, value, description)
			VALUES ($1, $2, $3)
			RETURNING id`,
			role.Name, role.Value, role.Description).Scan(&id)
		if err != nil {
			return translateUnique(err)
		}
		return insertAssignments(ctx, tx, id, permissionIDs)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ReplaceAssignments persists role metadata and atomically replaces the
// assignment set: delete all rows for the role, insert one per desired
// permission. Any failure rolls the whole transaction back, so a partial
// set is never observable.
func (r *PGRepository) ReplaceAssignments(ctx context.Context, role Role, permissionIDs []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE roles
			SET name = $2, value = $3, description = $4, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL`,
			role.ID, role.Name, role.Value, role.Description)
		if err != nil {
			return translateUnique(err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		return insertAssignments(ctx, tx, role.ID, permissionIDs)
	})
}

func insertAssignments(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			roleID, pid); err != nil {
			return err
		}
	}
	return nil
}

// FindWithAssignments fetches a role with its permissions expanded.
// Assignments pointing at soft-deleted permissions are excluded from the
// expansion.
func (r *PGRepository) FindWithAssignments(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Role, error) {
	role, err := r.find(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.category, p.action_key, p.description, p.created_at, p.updated_at, p.deleted_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND p.deleted_at IS NULL
		ORDER BY p.category, p.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ActionKey, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, err
		}
		role.Permissions = append(role.Permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return role, nil
}

// FindWithAdmins fetches a role with its referencing admin accounts.
func (r *PGRepository) FindWithAdmins(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Role, error) {
	role, err := r.find(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_name, first_name, last_name
		FROM admins
		WHERE role_id = $1 AND deleted_at IS NULL
		ORDER BY user_name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a AdminRef
		if err := rows.Scan(&a.ID, &a.UserName, &a.FirstName, &a.LastName); err != nil {
			return nil, err
		}
		role.Admins = append(role.Admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return role, nil
}

// FindByValue fetches a live role by its unique value.
func (r *PGRepository) FindByValue(ctx context.Context, value string) (*Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE value = $1 AND deleted_at IS NULL`, value))
}

// List returns all roles ordered by value.
func (r *PGRepository) List(ctx context.Context, includeDeleted bool) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY value`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Value, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountAdmins reports how many live admins reference the role.
func (r *PGRepository) CountAdmins(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admins WHERE role_id = $1 AND deleted_at IS NULL`, id).Scan(&count)
	return count, err
}

// SoftDelete marks a live role as removed.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Restore reactivates a soft-deleted role. Fails with ErrConflict when a
// live role meanwhile claimed the same value.
func (r *PGRepository) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET deleted_at = NULL, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HardDelete removes the role irreversibly; assignment rows cascade.
func (r *PGRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ResolveActionKeys implements rbac.RoleSource: live assignments of a live
// role projected to action keys. Missing or soft-deleted roles resolve to an
// empty set.
func (r *PGRepository) ResolveActionKeys(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.action_key
		FROM role_permissions rp
		JOIN roles ro ON ro.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND ro.deleted_at IS NULL AND p.deleted_at IS NULL
		ORDER BY p.action_key`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *PGRepository) find(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanRole(r.pool.QueryRow(ctx, query, id))
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Value, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("duplicate role value: %w", shared.ErrConflict)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
