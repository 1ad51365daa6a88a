// Package hierarchy implements the level comparison gate that every
// privileged mutation passes through. UI-side permission checks are advisory
// only; this guard is the authoritative boundary.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Reason is the stable machine-readable denial classification. The alert
// monitor keys off these values; human text is free to change.
type Reason string

const (
	ReasonSelfTarget        Reason = "self_target"
	ReasonOwnLevel          Reason = "own_level"
	ReasonInsufficientLevel Reason = "insufficient_level"
	ReasonSystemRole        Reason = "system_role"
)

// DeniedError carries the denial reason alongside the Forbidden sentinel.
type DeniedError struct {
	Reason      Reason
	ActorLevel  int
	TargetLevel int
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("hierarchy: denied (%s, actor %d vs target %d)", e.Reason, e.ActorLevel, e.TargetLevel)
}

// Unwrap ties the denial into the shared error taxonomy.
func (e *DeniedError) Unwrap() error { return shared.ErrForbidden }

// TargetKind distinguishes what is being mutated.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRole TargetKind = "role"
)

// Target describes the entity a mutation is aimed at.
type Target struct {
	Kind TargetKind
	// UserID is set for user targets and drives the self-protection check.
	UserID int64
	// Level is the target's effective level. Super-admin targets carry
	// authz.SuperAdminLevel.
	Level      int
	SuperAdmin bool
	// RoleName and SystemRole describe role targets; the Super Admin role is
	// a named exception that only a super_admin may touch.
	RoleName   string
	SystemRole bool
}

// UserTarget builds a Target from a loaded user record.
func UserTarget(u authz.User) Target {
	return Target{
		Kind:       TargetUser,
		UserID:     u.ID,
		Level:      u.EffectiveLevel(),
		SuperAdmin: u.IsSuperAdmin(),
	}
}

// RoleTarget builds a Target from a role row.
func RoleTarget(r authz.Role) Target {
	level := r.Level
	if r.Name == authz.SuperAdminRoleName {
		level = authz.SuperAdminLevel
	}
	return Target{
		Kind:       TargetRole,
		Level:      level,
		RoleName:   r.Name,
		SystemRole: r.IsSystem,
	}
}

// Observer receives every denial so adversarial patterns can be escalated
// into security alerts. Implementations must not block the request path.
type Observer interface {
	GuardDenied(ctx context.Context, actor authz.User, target Target, reason Reason)
}

// Guard evaluates level changes. Zero value is usable without an observer.
type Guard struct {
	observer Observer
}

// NewGuard constructs a Guard reporting denials to the observer.
func NewGuard(observer Observer) *Guard {
	return &Guard{observer: observer}
}

// AuthorizeLevelChange allows a mutation iff the actor is a super_admin or
// strictly outranks the target. Equal level is denied: peers cannot tamper
// with each other. Self-targeting is denied before any level comparison.
func (g *Guard) AuthorizeLevelChange(ctx context.Context, actor authz.User, target Target) error {
	actorLevel := actor.EffectiveLevel()

	if target.Kind == TargetUser && target.UserID == actor.ID {
		return g.deny(ctx, actor, target, ReasonSelfTarget, actorLevel)
	}

	if actor.IsSuperAdmin() {
		return nil
	}

	if target.RoleName == authz.SuperAdminRoleName || (target.Kind == TargetRole && target.SystemRole && target.Level >= authz.SuperAdminLevel) {
		return g.deny(ctx, actor, target, ReasonSystemRole, actorLevel)
	}
	if target.SuperAdmin {
		return g.deny(ctx, actor, target, ReasonInsufficientLevel, actorLevel)
	}

	switch {
	case actorLevel > target.Level:
		return nil
	case actorLevel == target.Level:
		return g.deny(ctx, actor, target, ReasonOwnLevel, actorLevel)
	default:
		return g.deny(ctx, actor, target, ReasonInsufficientLevel, actorLevel)
	}
}

// AuthorizeUserMutation is the user-target convenience used by the override
// and user services.
func (g *Guard) AuthorizeUserMutation(ctx context.Context, actor, target authz.User) error {
	return g.AuthorizeLevelChange(ctx, actor, UserTarget(target))
}

func (g *Guard) deny(ctx context.Context, actor authz.User, target Target, reason Reason, actorLevel int) error {
	if g.observer != nil {
		g.observer.GuardDenied(ctx, actor, target, reason)
	}
	return &DeniedError{Reason: reason, ActorLevel: actorLevel, TargetLevel: target.Level}
}
