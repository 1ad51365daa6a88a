// Package access composes the authorization core behind a single facade and
// enforces the session second-factor state machine in front of it.
package access

import (
	"context"
	"time"

	"github.com/atlas-portal/atlas-portal/internal/authz"
)

// State is the session position in the second-factor machine.
type State string

const (
	StateUnverified State = "UNVERIFIED"
	StatePending2FA State = "PENDING_2FA_SETUP"
	StateVerified   State = "VERIFIED"
)

// MFARequiredLevel is the role level from which a verified second factor is
// mandatory. super_admin accounts always require one.
const MFARequiredLevel = 90

// SessionIdleExpiry invalidates sessions 24h after the last recorded access,
// independent of the second-factor machine.
const SessionIdleExpiry = 24 * time.Hour

// SecondFactorRequired reports whether the user's trust class mandates MFA.
func SecondFactorRequired(user authz.User) bool {
	if user.IsSuperAdmin() {
		return true
	}
	if user.Role != nil && user.Role.Level >= MFARequiredLevel {
		return true
	}
	return false
}

// FactorChecker reports completed enrollments.
type FactorChecker interface {
	HasVerifiedFactor(ctx context.Context, userID int64) (bool, error)
}

// Gate computes the session state for a user. Errors fail closed: an
// unreadable factor store never yields VERIFIED.
type Gate struct {
	factors FactorChecker
}

// NewGate constructs a Gate.
func NewGate(factors FactorChecker) *Gate {
	return &Gate{factors: factors}
}

// State returns the machine position given the last recorded access time.
func (g *Gate) State(ctx context.Context, user authz.User, lastAccess time.Time) (State, error) {
	if lastAccess.IsZero() || time.Since(lastAccess) > SessionIdleExpiry {
		return StateUnverified, nil
	}
	if !SecondFactorRequired(user) {
		return StateVerified, nil
	}
	verified, err := g.factors.HasVerifiedFactor(ctx, user.ID)
	if err != nil {
		return StateUnverified, err
	}
	if !verified {
		return StatePending2FA, nil
	}
	return StateVerified, nil
}
