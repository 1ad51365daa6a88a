package authz

import (
	"context"
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// MutationStore extends the read surface with the override write path.
type MutationStore interface {
	Store
	GetPermissionByCode(ctx context.Context, code string) (Permission, error)
	SetOverrideRow(ctx context.Context, userID, permissionID int64, ov Override) error
}

// Guard authorizes a mutation against a target user. Implemented by the
// hierarchy guard; declared here so the resolver's mutation entry point does
// not depend on it directly.
type Guard interface {
	AuthorizeUserMutation(ctx context.Context, actor, target User) error
}

// Service is the single mutation entry point for user permission overrides.
// Role grants are replaced through the roles service; overrides only here.
type Service struct {
	store    MutationStore
	resolver *Resolver
	guard    Guard
	recorder *audit.Recorder
}

// NewService constructs the override mutation service.
func NewService(store MutationStore, resolver *Resolver, guard Guard, recorder *audit.Recorder) *Service {
	return &Service{store: store, resolver: resolver, guard: guard, recorder: recorder}
}

// SetOverride transitions the (user, permission) pair between inherit, grant
// and deny. The actor needs the override-management capability and must
// outrank the target.
func (s *Service) SetOverride(ctx context.Context, actor User, targetUserID int64, code string, ov Override) error {
	allowed, err := s.resolver.Resolve(ctx, actor, shared.PermUsersPerms)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("authz: override management: %w", shared.ErrForbidden)
	}

	target, err := s.store.GetUser(ctx, targetUserID)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}

	perm, err := s.store.GetPermissionByCode(ctx, code)
	if err != nil {
		return err
	}

	before, err := s.store.UserOverrides(ctx, targetUserID)
	if err != nil {
		return err
	}
	prev := before[code]

	if err := s.store.SetOverrideRow(ctx, targetUserID, perm.ID, ov); err != nil {
		return err
	}

	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "permisos",
		Description: fmt.Sprintf("override %s para usuario %d", code, targetUserID),
		Table:       "user_permission_overrides",
		RecordID:    fmt.Sprintf("%d:%d", targetUserID, perm.ID),
		Before:      map[string]any{"permiso": code, "estado": prev.String()},
		After:       map[string]any{"permiso": code, "estado": ov.String()},
	})
	return nil
}
