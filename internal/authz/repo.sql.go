package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-portal/atlas-portal/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the permission
// catalog, role grants and user overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUser loads a user with its role row, when assigned.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		user      User
		roleID    *int64
		roleName  *string
		roleLevel *int
		roleColor *string
		roleSys   *bool
	)
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.type, u.role_id, u.active, u.last_access_at,
		       r.id, r.name, r.level, r.color, r.is_system
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Type, &user.RoleID, &user.Active, &user.LastAccessAt,
			&roleID, &roleName, &roleLevel, &roleColor, &roleSys)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if roleID != nil {
		user.Role = &Role{ID: *roleID, Name: *roleName, Level: *roleLevel, Color: *roleColor, IsSystem: *roleSys}
	}
	return user, nil
}

// GetUserByEmail loads a user with its role row by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return r.GetUser(ctx, id)
}

// RolePermissionCodes returns the granted codes for a role.
func (r *Repository) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// UserOverrides returns the explicit grant/revoke rows for a user keyed by
// permission code. Absent rows mean inherit.
func (r *Repository) UserOverrides(ctx context.Context, userID int64) (map[string]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.code, o.allowed
		FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	overrides := make(map[string]Override)
	for rows.Next() {
		var (
			code    string
			allowed bool
		)
		if err := rows.Scan(&code, &allowed); err != nil {
			return nil, err
		}
		if allowed {
			overrides[code] = OverrideGrant
		} else {
			overrides[code] = OverrideDeny
		}
	}
	return overrides, rows.Err()
}

// ListPermissions returns the seeded catalog in display order.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, module, display_order FROM permissions ORDER BY display_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Module, &p.DisplayOrder); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByCode looks a catalog entry up by its stable code.
func (r *Repository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, code, module, display_order FROM permissions WHERE code = $1`, code).
		Scan(&p.ID, &p.Code, &p.Module, &p.DisplayOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// SetOverrideRow upserts or deletes the override row for (user, permission).
// Inherit removes the row; Grant and Deny store allowed true/false.
func (r *Repository) SetOverrideRow(ctx context.Context, userID, permissionID int64, ov Override) error {
	if ov == OverrideInherit {
		_, err := r.pool.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission_id, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET allowed = EXCLUDED.allowed`,
		userID, permissionID, ov == OverrideGrant)
	return err
}

// ReplaceRolePermissions swaps a role's full granted set inside one
// transaction. The two-step delete+insert must never be observable half-done:
// a partial failure would leave the role with zero permissions.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, id := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, id); err != nil {
				return err
			}
		}
		return nil
	})
}
