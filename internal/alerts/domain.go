package alerts

import "time"

// Type identifies the incident class a detector files.
type Type string

const (
	TypeFailedLogins        Type = "failed_logins_multiple"
	TypePrivilegeEscalation Type = "privilege_escalation"
	TypeAccessDenied        Type = "access_denied"
	TypeMFADisabledByAdmin  Type = "mfa_disabled_by_admin"
	TypeUserDeactivated     Type = "user_deactivated"
	TypeCriticalRoleChange  Type = "critical_role_change"
	TypeUserTypeChange      Type = "user_type_change"
)

// Severity ranks incidents for triage.
type Severity string

const (
	SeverityCritica Severity = "critica"
	SeverityAlta    Severity = "alta"
	SeverityMedia   Severity = "media"
	SeverityBaja    Severity = "baja"
)

// Alert is a detected incident requiring human review. Resolution is a
// one-way transition; there is no reopen.
type Alert struct {
	ID              int64
	Type            Type
	Severity        Severity
	AffectedUserID  *int64
	OriginUserID    *int64
	Title           string
	Description     string
	Data            map[string]any
	Resolved        bool
	ResolvedBy      *int64
	ResolvedAt      *time.Time
	ResolutionNotes string
	CreatedAt       time.Time
}

// Filters narrows unresolved-alert queries.
type Filters struct {
	Type           Type
	Severity       Severity
	AffectedUserID int64
	From           time.Time
	To             time.Time
	Resolved       *bool
	Limit          int
	Offset         int
}
