package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// RepositoryPort is the write surface the recorder needs.
type RepositoryPort interface {
	Insert(ctx context.Context, entry LogEntry) (LogEntry, error)
}

// Recorder persists audit entries for every privileged mutation. A failed
// write must never roll back or block the primary mutation, but it also must
// not vanish silently; TryRecord logs the failure and bumps a counter that
// operations alert on.
type Recorder struct {
	repo     RepositoryPort
	logger   *slog.Logger
	failures prometheus.Counter
}

// NewRecorder constructs a Recorder. failures may be nil in tests.
func NewRecorder(repo RepositoryPort, logger *slog.Logger, failures prometheus.Counter) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, failures: failures}
}

// Record redacts, diffs and stores the entry, returning the stored row.
// Errors wrap shared.ErrAuditWriteFailed.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*LogEntry, error) {
	if entry.Action == "" {
		return nil, fmt.Errorf("audit: action required: %w", shared.ErrValidation)
	}
	before := Redact(entry.Before)
	after := Redact(entry.After)
	row := LogEntry{
		ActorID:        entry.ActorID,
		Action:         entry.Action,
		Category:       entry.Category,
		Description:    entry.Description,
		Table:          entry.Table,
		RecordID:       entry.RecordID,
		Before:         before,
		After:          after,
		ModifiedFields: ModifiedFields(before, after),
	}
	stored, err := r.repo.Insert(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuditWriteFailed, err)
	}
	return &stored, nil
}

// TryRecord is the log-and-continue variant used on mutation paths. The
// returned entry is nil when the write failed.
func (r *Recorder) TryRecord(ctx context.Context, entry Entry) *LogEntry {
	stored, err := r.Record(ctx, entry)
	if err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", string(entry.Action)),
			slog.String("table", entry.Table),
			slog.Any("error", err))
		if r.failures != nil {
			r.failures.Inc()
		}
		return nil
	}
	return stored
}
