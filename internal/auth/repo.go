package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for authentication.
type PGRepository struct {
	pool  *pgxpool.Pool
	users *authz.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, users *authz.Repository) *PGRepository {
	return &PGRepository{pool: pool, users: users}
}

// FindCredentialsByEmail loads the password hash for an active account.
func (r *PGRepository) FindCredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	var creds Credentials
	err := r.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1 AND active = TRUE`, email).
		Scan(&creds.UserID, &creds.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, shared.ErrInvalidCredentials
		}
		return Credentials{}, err
	}
	return creds, nil
}

// GetUser loads the full user with role.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (authz.User, error) {
	return r.users.GetUser(ctx, id)
}

// TouchLastAccess records the access time the session gate keys off.
func (r *PGRepository) TouchLastAccess(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_access_at = $2 WHERE id = $1`, userID, at)
	return err
}
