package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type memoryAuditRepo struct {
	entries []LogEntry
	fail    bool
	nextID  int64
}

func (r *memoryAuditRepo) Insert(ctx context.Context, entry LogEntry) (LogEntry, error) {
	if r.fail {
		return LogEntry{}, errors.New("insert failed")
	}
	r.nextID++
	entry.ID = r.nextID
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func TestRedactStripsSensitiveKeys(t *testing.T) {
	clean := Redact(map[string]any{
		"email":         "ana@example.com",
		"password_hash": "$2a$10$abc",
		"totp_secret":   "JBSWY3DP",
		"activo":        true,
	})
	require.Equal(t, map[string]any{"email": "ana@example.com", "activo": true}, clean)
	require.Nil(t, Redact(nil))
}

func TestModifiedFieldsShallowDiff(t *testing.T) {
	before := map[string]any{"rol": "Soporte", "nivel": 30, "activo": true}
	after := map[string]any{"rol": "Gerente", "nivel": 60, "activo": true, "extra": "x"}

	require.Equal(t, []string{"nivel", "rol"}, ModifiedFields(before, after))
	require.Nil(t, ModifiedFields(nil, after))
	require.Nil(t, ModifiedFields(before, nil))
	require.Empty(t, ModifiedFields(before, before))
}

func TestRecordRedactsAndDiffs(t *testing.T) {
	repo := &memoryAuditRepo{}
	recorder := NewRecorder(repo, nil, nil)

	stored, err := recorder.Record(context.Background(), Entry{
		ActorID:  1,
		Action:   ActionUpdate,
		Category: "usuarios",
		Table:    "users",
		RecordID: "7",
		Before:   map[string]any{"email": "a@x.com", "password_hash": "h1", "activo": true},
		After:    map[string]any{"email": "a@x.com", "password_hash": "h2", "activo": false},
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, []string{"activo"}, stored.ModifiedFields, "redacted keys never show up as modified")
	require.NotContains(t, stored.Before, "password_hash")
	require.NotContains(t, stored.After, "password_hash")
}

func TestRecordRequiresAction(t *testing.T) {
	recorder := NewRecorder(&memoryAuditRepo{}, nil, nil)

	_, err := recorder.Record(context.Background(), Entry{ActorID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordWrapsWriteFailure(t *testing.T) {
	recorder := NewRecorder(&memoryAuditRepo{fail: true}, nil, nil)

	_, err := recorder.Record(context.Background(), Entry{Action: ActionInsert})
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)
}

func TestTryRecordCountsFailures(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_failures_total"})
	recorder := NewRecorder(&memoryAuditRepo{fail: true}, nil, counter)

	stored := recorder.TryRecord(context.Background(), Entry{Action: ActionUpdate})
	require.Nil(t, stored)
	require.Equal(t, 1.0, testutil.ToFloat64(counter))

	ok := &memoryAuditRepo{}
	recorder = NewRecorder(ok, nil, counter)
	stored = recorder.TryRecord(context.Background(), Entry{Action: ActionUpdate})
	require.NotNil(t, stored)
	require.Equal(t, 1.0, testutil.ToFloat64(counter))
}
