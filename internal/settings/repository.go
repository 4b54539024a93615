package settings

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

// Repository defines persistence operations for settings. Settings have no
// soft-delete lifecycle; removal is final.
type Repository interface {
	Create(ctx context.Context, s Setting) (*Setting, error)
	Find(ctx context.Context, id uuid.UUID) (*Setting, error)
	FindByKey(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context) ([]Setting, error)
	ListByModule(ctx context.Context, module string) ([]Setting, error)
	Update(ctx context.Context, s Setting) (*Setting, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const settingColumns = "id, module, key, value, created_at, updated_at"

func scanSetting(row pgx.Row) (*Setting, error) {
	var s Setting
	err := row.Scan(&s.ID, &s.Module, &s.Key, &s.Value, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a setting. A duplicate key maps to shared.ErrConflict.
func (r *PGRepository) Create(ctx context.Context, s Setting) (*Setting, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO settings (module, key, value)
		VALUES ($1, $2, $3)
		RETURNING `+settingColumns,
		s.Module, s.Key, s.Value)
	created, err := scanSetting(row)
	if err != nil {
		return nil, translateUnique(err)
	}
	return created, nil
}

// Find fetches one setting by id.
func (r *PGRepository) Find(ctx context.Context, id uuid.UUID) (*Setting, error) {
	return scanSetting(r.pool.QueryRow(ctx, `SELECT `+settingColumns+` FROM settings WHERE id = $1`, id))
}

// FindByKey fetches one setting by its key.
func (r *PGRepository) FindByKey(ctx context.Context, key string) (*Setting, error) {
	return scanSetting(r.pool.QueryRow(ctx, `SELECT `+settingColumns+` FROM settings WHERE key = $1`, key))
}

// List returns all settings ordered by module then key.
func (r *PGRepository) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM settings ORDER BY module, key`)
	if err != nil {
		return nil, err
	}
	return collectSettings(rows)
}

// ListByModule returns the settings belonging to one module.
func (r *PGRepository) ListByModule(ctx context.Context, module string) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM settings WHERE module = $1 ORDER BY key`, module)
	if err != nil {
		return nil, err
	}
	return collectSettings(rows)
}

// Update persists changes to an existing setting.
func (r *PGRepository) Update(ctx context.Context, s Setting) (*Setting, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE settings
		SET module = $2, key = $3, value = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+settingColumns,
		s.ID, s.Module, s.Key, s.Value)
	updated, err := scanSetting(row)
	if err != nil {
		return nil, translateUnique(err)
	}
	return updated, nil
}

// Delete removes the setting irreversibly.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectSettings(rows pgx.Rows) ([]Setting, error) {
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.ID, &s.Module, &s.Key, &s.Value, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("setting key already exists: %w", shared.ErrConflict)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
