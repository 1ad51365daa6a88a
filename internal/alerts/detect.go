package alerts

import (
	"fmt"
	"time"
)

// Detection thresholds. The failed-login window counter lives in Redis; the
// detector itself stays pure so it can be tested without infrastructure.
const (
	// FailedLoginThreshold is the attempt count that files one alert per window.
	FailedLoginThreshold = 5
	// FailedLoginWindow bounds the repeated-failure observation window.
	FailedLoginWindow = 15 * time.Minute
	// SuspiciousDenialAttempts marks a guard-denial stream as adversarial.
	SuspiciousDenialAttempts = 3
	// CriticalRoleLevel is the role level from which assignments are critical.
	CriticalRoleLevel = 90
)

// Event is a structured signal a detector evaluates. Exactly one of the
// concrete kinds below.
type Event interface {
	alertEvent()
}

// FailedLoginBatch reports accumulated login failures for one identity
// within the window.
type FailedLoginBatch struct {
	Email    string
	Attempts int
	Window   time.Duration
	IP       string
}

// GuardDenialEvent reports a hierarchy guard denial and its context.
type GuardDenialEvent struct {
	ActorID     int64
	ActorLevel  int
	TargetUser  *int64
	TargetLevel int
	Reason      string
	// Attempts counts recent denials by the same actor within the window.
	Attempts int
}

// MFADisabledEvent reports an admin removing another user's second factor.
type MFADisabledEvent struct {
	ActorID      int64
	TargetUserID int64
}

// UserDeactivatedEvent reports a user being deactivated.
type UserDeactivatedEvent struct {
	ActorID      int64
	TargetUserID int64
}

// UserTypeChangedEvent reports a change of User.Type.
type UserTypeChangedEvent struct {
	ActorID      int64
	TargetUserID int64
	From         string
	To           string
}

// RoleAssignedEvent reports a role assignment.
type RoleAssignedEvent struct {
	ActorID      int64
	TargetUserID int64
	RoleName     string
	RoleLevel    int
}

func (FailedLoginBatch) alertEvent()     {}
func (GuardDenialEvent) alertEvent()     {}
func (MFADisabledEvent) alertEvent()     {}
func (UserDeactivatedEvent) alertEvent() {}
func (UserTypeChangedEvent) alertEvent() {}
func (RoleAssignedEvent) alertEvent()    {}

// Detect maps an event to zero or one alert. Pure function; severities are
// fixed per trigger.
func Detect(event Event) *Alert {
	switch ev := event.(type) {
	case FailedLoginBatch:
		if ev.Attempts < FailedLoginThreshold {
			return nil
		}
		return &Alert{
			Type:        TypeFailedLogins,
			Severity:    SeverityAlta,
			Title:       fmt.Sprintf("Intentos de acceso fallidos repetidos: %s", ev.Email),
			Description: fmt.Sprintf("%d intentos fallidos en %s", ev.Attempts, ev.Window),
			Data:        map[string]any{"email": ev.Email, "attempts": ev.Attempts, "ip": ev.IP},
		}
	case GuardDenialEvent:
		if !suspiciousDenial(ev) {
			return nil
		}
		return &Alert{
			Type:           TypePrivilegeEscalation,
			Severity:       SeverityCritica,
			OriginUserID:   &ev.ActorID,
			AffectedUserID: ev.TargetUser,
			Title:          "Intento de escalada de privilegios",
			Description:    fmt.Sprintf("usuario %d (nivel %d) contra nivel %d: %s", ev.ActorID, ev.ActorLevel, ev.TargetLevel, ev.Reason),
			Data:           map[string]any{"reason": ev.Reason, "attempts": ev.Attempts, "actor_level": ev.ActorLevel, "target_level": ev.TargetLevel},
		}
	case MFADisabledEvent:
		return &Alert{
			Type:           TypeMFADisabledByAdmin,
			Severity:       SeverityAlta,
			OriginUserID:   &ev.ActorID,
			AffectedUserID: &ev.TargetUserID,
			Title:          "MFA deshabilitado por un administrador",
			Description:    fmt.Sprintf("usuario %d deshabilitó el segundo factor del usuario %d", ev.ActorID, ev.TargetUserID),
		}
	case UserDeactivatedEvent:
		return &Alert{
			Type:           TypeUserDeactivated,
			Severity:       SeverityMedia,
			OriginUserID:   &ev.ActorID,
			AffectedUserID: &ev.TargetUserID,
			Title:          "Usuario desactivado",
			Description:    fmt.Sprintf("usuario %d desactivado por %d", ev.TargetUserID, ev.ActorID),
		}
	case UserTypeChangedEvent:
		return &Alert{
			Type:           TypeUserTypeChange,
			Severity:       SeverityCritica,
			OriginUserID:   &ev.ActorID,
			AffectedUserID: &ev.TargetUserID,
			Title:          "Cambio de tipo de usuario",
			Description:    fmt.Sprintf("tipo cambiado de %s a %s", ev.From, ev.To),
			Data:           map[string]any{"from": ev.From, "to": ev.To},
		}
	case RoleAssignedEvent:
		if ev.RoleLevel < CriticalRoleLevel {
			return nil
		}
		return &Alert{
			Type:           TypeCriticalRoleChange,
			Severity:       SeverityCritica,
			OriginUserID:   &ev.ActorID,
			AffectedUserID: &ev.TargetUserID,
			Title:          "Asignación de rol crítico",
			Description:    fmt.Sprintf("rol %s (nivel %d) asignado al usuario %d", ev.RoleName, ev.RoleLevel, ev.TargetUserID),
			Data:           map[string]any{"role": ev.RoleName, "level": ev.RoleLevel},
		}
	}
	return nil
}

func suspiciousDenial(ev GuardDenialEvent) bool {
	if ev.Attempts >= SuspiciousDenialAttempts {
		return true
	}
	return ev.TargetLevel >= ev.ActorLevel
}
