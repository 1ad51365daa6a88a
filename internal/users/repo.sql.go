package users

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for user management
// writes. Reads of the full user record go through the authz repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProfiles returns all users with their role, for the management screen.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.type, u.role_id, COALESCE(r.name, ''), COALESCE(r.level, 0), u.active, u.last_access_at
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []Profile
	for rows.Next() {
		var (
			p    Profile
			last *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.Type, &p.RoleID, &p.RoleName, &p.RoleLevel, &p.Active, &last); err != nil {
			return nil, err
		}
		if last != nil && !last.IsZero() {
			formatted := last.Format(time.RFC3339)
			p.LastAccessAt = &formatted
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SetActive flips the activation flag.
func (r *Repository) SetActive(ctx context.Context, userID int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, userID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole assigns or clears the user's role.
func (r *Repository) SetRole(ctx context.Context, userID int64, roleID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $2 WHERE id = $1`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetType changes the account trust class.
func (r *Repository) SetType(ctx context.Context, userID int64, userType string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET type = $2 WHERE id = $1`, userID, userType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
