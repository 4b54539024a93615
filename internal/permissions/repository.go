package permissions

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

// Repository defines persistence operations for permissions. Soft-delete
// filtering is a query parameter, never a separate code path.
type Repository interface {
	Create(ctx context.Context, p Permission) (*Permission, error)
	Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID, excludeDeleted bool) ([]Permission, error)
	List(ctx context.Context, includeDeleted bool) ([]Permission, error)
	ListGrouped(ctx context.Context) ([]Permission, error)
	Update(ctx context.Context, p Permission) (*Permission, error)
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

const permissionColumns = "id, name, category, action_key, description, created_at, updated_at, deleted_at"

func scanPermission(row pgx.Row) (*Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.ActionKey, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a permission. A duplicate live action key maps to
// shared.ErrConflict; no partial row is persisted.
func (r *PGRepository) Create(ctx context.Context, p Permission) (*Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, category, action_key, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+permissionColumns,
		p.Name, p.Category, p.ActionKey, p.Description)
	created, err := scanPermission(row)
	if err != nil {
		return nil, translateUnique(err, "action key")
	}
	return created, nil
}

// Find fetches one permission by id.
func (r *PGRepository) Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanPermission(r.pool.QueryRow(ctx, query, id))
}

// FindByIDs returns the permissions matching ids. Unknown ids are simply
// absent from the result; with excludeDeleted, soft-deleted ones are too.
func (r *PGRepository) FindByIDs(ctx context.Context, ids []uuid.UUID, excludeDeleted bool) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id = ANY($1)`
	if excludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// List returns all permissions ordered by category then name.
func (r *PGRepository) List(ctx context.Context, includeDeleted bool) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY category, name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// ListGrouped returns live permissions in grouped-view order.
func (r *PGRepository) ListGrouped(ctx context.Context) ([]Permission, error) {
	return r.List(ctx, false)
}

// Update persists metadata changes on a live permission.
func (r *PGRepository) Update(ctx context.Context, p Permission) (*Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET name = $2, category = $3, action_key = $4, description = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+permissionColumns,
		p.ID, p.Name, p.Category, p.ActionKey, p.Description)
	updated, err := scanPermission(row)
	if err != nil {
		return nil, translateUnique(err, "action key")
	}
	return updated, nil
}

// SoftDelete marks a live permission as removed.
func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Restore brings a soft-deleted permission back. Fails with ErrConflict when
// a live permission meanwhile claimed the same action key.
func (r *PGRepository) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions SET deleted_at = NULL, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return translateUnique(err, "action key")
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HardDelete removes the row irreversibly; callable from either lifecycle
// state. Assignments referencing it go with it via the FK cascade.
func (r *PGRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ActionKey, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// translateUnique maps a postgres unique violation onto the domain conflict
// error.
func translateUnique(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("duplicate %s: %w", what, shared.ErrConflict)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
