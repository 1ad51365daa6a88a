package access

import (
	"context"
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/mfa"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// ErrSessionNotVerified blocks permission-gated capabilities until the
// session reaches VERIFIED. Enroll, challenge and verify stay reachable.
var ErrSessionNotVerified = fmt.Errorf("access: session not verified: %w", shared.ErrForbidden)

// Facade is the sole entry point the UI layer and privileged mutation
// handlers may call. It runs the session gate before honoring any other
// authorization decision.
type Facade struct {
	resolver *authz.Resolver
	guard    *hierarchy.Guard
	recorder *audit.Recorder
	monitor  *alerts.Monitor
	gate     *Gate
	mfa      *mfa.Service
}

// NewFacade composes the core.
func NewFacade(resolver *authz.Resolver, guard *hierarchy.Guard, recorder *audit.Recorder, monitor *alerts.Monitor, gate *Gate, mfaService *mfa.Service) *Facade {
	return &Facade{resolver: resolver, guard: guard, recorder: recorder, monitor: monitor, gate: gate, mfa: mfaService}
}

// SessionState computes the second-factor machine position for the user,
// based on their last recorded access.
func (f *Facade) SessionState(ctx context.Context, user authz.User) (State, error) {
	return f.gate.State(ctx, user, user.LastAccessAt)
}

// ResolveAll computes the session permission snapshot. Gated: a pending or
// unverified session holds no capabilities.
func (f *Facade) ResolveAll(ctx context.Context, user authz.User) (*authz.PermissionSet, error) {
	if err := f.requireVerified(ctx, user); err != nil {
		return nil, err
	}
	return f.resolver.ResolveAll(ctx, user)
}

// Can answers a single permission check. Advisory for rendering; mutations
// still pass through GuardLevelChange server-side.
func (f *Facade) Can(ctx context.Context, user authz.User, code string) (bool, error) {
	if err := f.requireVerified(ctx, user); err != nil {
		return false, err
	}
	return f.resolver.Resolve(ctx, user, code)
}

// GuardLevelChange re-runs the authoritative hierarchy check.
func (f *Facade) GuardLevelChange(ctx context.Context, actor authz.User, target hierarchy.Target) error {
	if err := f.requireVerified(ctx, actor); err != nil {
		return err
	}
	return f.guard.AuthorizeLevelChange(ctx, actor, target)
}

// RecordAudit writes an audit entry on the log-and-continue path.
func (f *Facade) RecordAudit(ctx context.Context, entry audit.Entry) *audit.LogEntry {
	return f.recorder.TryRecord(ctx, entry)
}

// FileAlert persists an alert directly, bypassing detection.
func (f *Facade) FileAlert(ctx context.Context, alert alerts.Alert) (alerts.Alert, error) {
	return f.monitor.File(ctx, alert)
}

// EnrollMFA provisions a second factor. Reachable from PENDING_2FA_SETUP.
func (f *Facade) EnrollMFA(ctx context.Context, user authz.User, friendlyName string) (mfa.Enrollment, error) {
	if err := f.requireKnownSession(ctx, user); err != nil {
		return mfa.Enrollment{}, err
	}
	return f.mfa.Enroll(ctx, user, friendlyName)
}

// ChallengeMFA issues a verification challenge. Reachable from PENDING_2FA_SETUP.
func (f *Facade) ChallengeMFA(ctx context.Context, user authz.User, factorID string) (string, error) {
	if err := f.requireKnownSession(ctx, user); err != nil {
		return "", err
	}
	return f.mfa.Challenge(ctx, factorID)
}

// VerifyMFA completes enrollment. Reachable from PENDING_2FA_SETUP.
func (f *Facade) VerifyMFA(ctx context.Context, user authz.User, factorID, challengeID, code string) error {
	if err := f.requireKnownSession(ctx, user); err != nil {
		return err
	}
	return f.mfa.CompleteEnrollment(ctx, user, factorID, challengeID, code)
}

// ForceMFA marks that 2FA is being enforced on a target whose role already
// qualifies. The enforcement itself is the mandate rule; this records the
// administrative act.
func (f *Facade) ForceMFA(ctx context.Context, actor, target authz.User) error {
	allowed, err := f.Can(ctx, actor, shared.PermMFAForce)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("access: force mfa: %w", shared.ErrForbidden)
	}
	if err := f.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}
	f.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionMFAForced,
		Category:    "seguridad",
		Description: fmt.Sprintf("2FA forzado para el usuario %d", target.ID),
		Table:       "users",
		RecordID:    fmt.Sprintf("%d", target.ID),
	})
	return nil
}

func (f *Facade) requireVerified(ctx context.Context, user authz.User) error {
	state, err := f.gate.State(ctx, user, user.LastAccessAt)
	if err != nil {
		return err
	}
	switch state {
	case StateVerified:
		return nil
	case StateUnverified:
		return fmt.Errorf("access: session expired: %w", shared.ErrUnauthorized)
	default:
		return ErrSessionNotVerified
	}
}

// requireKnownSession admits UNVERIFIED-expired sessions never, but lets a
// pending session reach the enrollment operations.
func (f *Facade) requireKnownSession(ctx context.Context, user authz.User) error {
	state, err := f.gate.State(ctx, user, user.LastAccessAt)
	if err != nil {
		return err
	}
	if state == StateUnverified {
		return fmt.Errorf("access: session expired: %w", shared.ErrUnauthorized)
	}
	return nil
}
