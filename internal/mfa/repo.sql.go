package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for TOTP factors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertFactor stores a pending factor.
func (r *Repository) InsertFactor(ctx context.Context, f Factor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mfa_factors (id, user_id, friendly_name, secret, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.UserID, f.FriendlyName, f.Secret, f.Status, f.CreatedAt)
	return err
}

// GetFactor loads a factor by id.
func (r *Repository) GetFactor(ctx context.Context, id string) (Factor, error) {
	var f Factor
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, friendly_name, secret, status, created_at, verified_at
		FROM mfa_factors WHERE id = $1`, id).
		Scan(&f.ID, &f.UserID, &f.FriendlyName, &f.Secret, &f.Status, &f.CreatedAt, &f.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Factor{}, ErrFactorNotFound
		}
		return Factor{}, err
	}
	return f, nil
}

// MarkVerified flips the factor to verified.
func (r *Repository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE mfa_factors SET status = $2, verified_at = $3 WHERE id = $1`,
		id, FactorVerified, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFactorNotFound
	}
	return nil
}

// DeleteFactor removes a factor row.
func (r *Repository) DeleteFactor(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mfa_factors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFactorNotFound
	}
	return nil
}

// FactorsByUser lists all factors for a user.
func (r *Repository) FactorsByUser(ctx context.Context, userID int64) ([]Factor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, friendly_name, secret, status, created_at, verified_at
		FROM mfa_factors WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var factors []Factor
	for rows.Next() {
		var f Factor
		if err := rows.Scan(&f.ID, &f.UserID, &f.FriendlyName, &f.Secret, &f.Status, &f.CreatedAt, &f.VerifiedAt); err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}
