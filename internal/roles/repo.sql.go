package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-portal/atlas-portal/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the role catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns every role ordered by descending level.
func (r *Repository) ListRoles(ctx context.Context) ([]authz.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, level, color, is_system
		FROM roles
		ORDER BY level DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Level, &role.Color, &role.IsSystem); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole loads a single role.
func (r *Repository) GetRole(ctx context.Context, id int64) (authz.Role, error) {
	var role authz.Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, level, color, is_system
		FROM roles
		WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Level, &role.Color, &role.IsSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, ErrNotFound
		}
		return authz.Role{}, err
	}
	return role, nil
}

// CreateRole inserts a role and returns the stored row.
func (r *Repository) CreateRole(ctx context.Context, in Input) (authz.Role, error) {
	var role authz.Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, level, color, is_system)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, name, level, color, is_system`,
		in.Name, in.Level, in.Color).
		Scan(&role.ID, &role.Name, &role.Level, &role.Color, &role.IsSystem)
	if err != nil {
		return authz.Role{}, err
	}
	return role, nil
}

// UpdateRole rewrites a role's name, level and color.
func (r *Repository) UpdateRole(ctx context.Context, id int64, in Input) (authz.Role, error) {
	var role authz.Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, level = $3, color = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, level, color, is_system`,
		id, in.Name, in.Level, in.Color).
		Scan(&role.ID, &role.Name, &role.Level, &role.Color, &role.IsSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, ErrNotFound
		}
		return authz.Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAssignedUsers reports how many users currently hold the role.
func (r *Repository) CountAssignedUsers(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, id).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
