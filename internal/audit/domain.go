package audit

import (
	"reflect"
	"sort"
	"time"
)

// Action classifies the privileged state change an entry records.
type Action string

const (
	ActionInsert         Action = "INSERT"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionExport         Action = "EXPORT"
	ActionMFAEnrolled    Action = "MFA_ENROLLED"
	ActionMFAUnenrolled  Action = "MFA_UNENROLLED"
	ActionMFAForced      Action = "MFA_FORCED"
	ActionGDPRDataExport Action = "GDPR_DATA_EXPORT"
)

// Entry is the input to the recorder. Before/After are optional snapshots of
// the mutated row; sensitive keys are stripped before storage.
type Entry struct {
	ActorID     int64
	Action      Action
	Category    string
	Description string
	Table       string
	RecordID    string
	Before      map[string]any
	After       map[string]any
}

// LogEntry is the stored, append-only record. Never updated or deleted by
// the application.
type LogEntry struct {
	ID             int64
	ActorID        int64
	Action         Action
	Category       string
	Description    string
	Table          string
	RecordID       string
	Before         map[string]any
	After          map[string]any
	ModifiedFields []string
	CreatedAt      time.Time
}

// sensitiveKeys are stripped from both snapshots before diffing and storage.
var sensitiveKeys = map[string]struct{}{
	"password":        {},
	"password_hash":   {},
	"portal_password": {},
	"totp_secret":     {},
	"secret":          {},
}

// Redact returns a copy of the snapshot without sensitive keys. Nil in, nil out.
func Redact(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	clean := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		if _, sensitive := sensitiveKeys[key]; sensitive {
			continue
		}
		clean[key] = value
	}
	return clean
}

// ModifiedFields lists keys present in both snapshots whose values differ by
// shallow equality. Keys on only one side are not "modified": creation and
// deletion context travels in the action, not the diff.
func ModifiedFields(before, after map[string]any) []string {
	if before == nil || after == nil {
		return nil
	}
	var fields []string
	for key, prev := range before {
		next, ok := after[key]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(prev, next) {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}
