package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for security alerts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert files a new unresolved alert.
func (r *Repository) Insert(ctx context.Context, alert Alert) (Alert, error) {
	var dataJSON []byte
	if alert.Data != nil {
		var err error
		dataJSON, err = json.Marshal(alert.Data)
		if err != nil {
			return Alert{}, err
		}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO security_alerts (type, severity, affected_user_id, origin_user_id, title, description, data, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
		RETURNING id, created_at`,
		alert.Type, alert.Severity, alert.AffectedUserID, alert.OriginUserID,
		alert.Title, alert.Description, dataJSON).
		Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	return alert, nil
}

// Get loads one alert by id.
func (r *Repository) Get(ctx context.Context, id int64) (Alert, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, ErrNotFound
		}
		return Alert{}, err
	}
	return alert, nil
}

// List returns alerts matching the filters, newest first.
func (r *Repository) List(ctx context.Context, f Filters) ([]Alert, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var resolved any
	if f.Resolved != nil {
		resolved = *f.Resolved
	}
	rows, err := r.pool.Query(ctx, selectColumns+`
		WHERE ($1::text = '' OR type = $1)
		  AND ($2::text = '' OR severity = $2)
		  AND ($3::bigint = 0 OR affected_user_id = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		  AND ($6::boolean IS NULL OR resolved = $6)
		ORDER BY created_at DESC, id DESC
		OFFSET $7 LIMIT $8`,
		string(f.Type), string(f.Severity), f.AffectedUserID,
		nullTime(f.From), nullTime(f.To), resolved, f.Offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// MarkResolved flips the terminal flag. Returns false when the alert was
// already resolved or absent; callers disambiguate.
func (r *Repository) MarkResolved(ctx context.Context, id, resolvedBy int64, notes string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE security_alerts
		SET resolved = TRUE, resolved_by = $2, resolved_at = $3, resolution_notes = $4
		WHERE id = $1 AND resolved = FALSE`,
		id, resolvedBy, at, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountUnresolvedBySeverity is the dashboard aggregation. Count query only;
// no row fetch.
func (r *Repository) CountUnresolvedBySeverity(ctx context.Context) (map[Severity]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT severity, COUNT(*)
		FROM security_alerts
		WHERE resolved = FALSE
		GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Severity]int)
	for rows.Next() {
		var (
			severity Severity
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

const selectColumns = `
	SELECT id, type, severity, affected_user_id, origin_user_id, title,
	       COALESCE(description, ''), data, resolved, resolved_by, resolved_at,
	       COALESCE(resolution_notes, ''), created_at
	FROM security_alerts`

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert    Alert
		dataJSON []byte
	)
	err := row.Scan(&alert.ID, &alert.Type, &alert.Severity, &alert.AffectedUserID, &alert.OriginUserID,
		&alert.Title, &alert.Description, &dataJSON, &alert.Resolved, &alert.ResolvedBy, &alert.ResolvedAt,
		&alert.ResolutionNotes, &alert.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &alert.Data); err != nil {
			return Alert{}, err
		}
	}
	return alert, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
