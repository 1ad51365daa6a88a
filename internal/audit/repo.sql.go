package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a log entry. The table has no update or delete path.
func (r *Repository) Insert(ctx context.Context, entry LogEntry) (LogEntry, error) {
	beforeJSON, err := marshalSnapshot(entry.Before)
	if err != nil {
		return LogEntry{}, err
	}
	afterJSON, err := marshalSnapshot(entry.After)
	if err != nil {
		return LogEntry{}, err
	}
	fieldsJSON, err := json.Marshal(entry.ModifiedFields)
	if err != nil {
		return LogEntry{}, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (actor_user_id, action, category, description, affected_table, affected_record_id, before, after, modified_fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at`,
		entry.ActorID, entry.Action, entry.Category, entry.Description,
		nullable(entry.Table), nullable(entry.RecordID), beforeJSON, afterJSON, fieldsJSON).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return LogEntry{}, err
	}
	return entry, nil
}

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Action   string
	Table    string
	Page     int
	PageSize int
}

// Timeline returns entries newest first with one extra row to signal paging.
func (r *Repository) Timeline(ctx context.Context, f TimelineFilters, offset, limit int) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_user_id, action, category, description,
		       COALESCE(affected_table, ''), COALESCE(affected_record_id, ''),
		       before, after, modified_fields, created_at
		FROM audit_log
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		  AND ($3::bigint = 0 OR actor_user_id = $3)
		  AND ($4::text = '' OR action = $4)
		  AND ($5::text = '' OR affected_table = $5)
		ORDER BY created_at DESC, id DESC
		OFFSET $6 LIMIT $7`,
		nullTime(f.From), nullTime(f.To), f.ActorID, f.Action, f.Table, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			entry      LogEntry
			beforeJSON []byte
			afterJSON  []byte
			fieldsJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.Category, &entry.Description,
			&entry.Table, &entry.RecordID, &beforeJSON, &afterJSON, &fieldsJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalSnapshot(beforeJSON, &entry.Before); err != nil {
			return nil, err
		}
		if err := unmarshalSnapshot(afterJSON, &entry.After); err != nil {
			return nil, err
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &entry.ModifiedFields); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func marshalSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

func unmarshalSnapshot(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
