package roles

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Store is the catalog persistence surface.
type Store interface {
	ListRoles(ctx context.Context) ([]authz.Role, error)
	GetRole(ctx context.Context, id int64) (authz.Role, error)
	CreateRole(ctx context.Context, in Input) (authz.Role, error)
	UpdateRole(ctx context.Context, id int64, in Input) (authz.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountAssignedUsers(ctx context.Context, id int64) (int, error)
}

// GrantStore is the slice of the permission catalog the service needs to
// rewrite a role's grant set atomically.
type GrantStore interface {
	ListPermissions(ctx context.Context) ([]authz.Permission, error)
	RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// Service handles guarded role catalog mutations.
type Service struct {
	store    Store
	grants   GrantStore
	resolver *authz.Resolver
	guard    *hierarchy.Guard
	recorder *audit.Recorder
	monitor  *alerts.Monitor
}

// NewService builds a Service instance.
func NewService(store Store, grants GrantStore, resolver *authz.Resolver, guard *hierarchy.Guard, recorder *audit.Recorder, monitor *alerts.Monitor) *Service {
	return &Service{store: store, grants: grants, resolver: resolver, guard: guard, recorder: recorder, monitor: monitor}
}

// RoleDetail is a role plus its granted permission codes.
type RoleDetail struct {
	Role        authz.Role `json:"role"`
	Permissions []string   `json:"permissions"`
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context, actor authz.User) ([]authz.Role, error) {
	if err := s.require(ctx, actor, shared.PermRolesView); err != nil {
		return nil, err
	}
	return s.store.ListRoles(ctx)
}

// Get returns one role with its grants.
func (s *Service) Get(ctx context.Context, actor authz.User, roleID int64) (RoleDetail, error) {
	if err := s.require(ctx, actor, shared.PermRolesView); err != nil {
		return RoleDetail{}, err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return RoleDetail{}, err
	}
	codes, err := s.grants.RolePermissionCodes(ctx, roleID)
	if err != nil {
		return RoleDetail{}, err
	}
	sort.Strings(codes)
	return RoleDetail{Role: role, Permissions: codes}, nil
}

// Create adds a role. The actor cannot mint a role at or above their own
// level; that would let them hand out rank they do not hold.
func (s *Service) Create(ctx context.Context, actor authz.User, in Input) (authz.Role, error) {
	if err := s.require(ctx, actor, shared.PermRolesCreate); err != nil {
		return authz.Role{}, err
	}
	if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.Target{Kind: hierarchy.TargetRole, Level: in.Level, RoleName: in.Name}); err != nil {
		return authz.Role{}, err
	}
	role, err := s.store.CreateRole(ctx, in)
	if err != nil {
		return authz.Role{}, err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionInsert,
		Category:    "roles",
		Description: fmt.Sprintf("rol %s creado", role.Name),
		Table:       "roles",
		RecordID:    strconv.FormatInt(role.ID, 10),
		After:       map[string]any{"nombre": role.Name, "nivel": role.Level, "color": role.Color},
	})
	return role, nil
}

// Update rewrites a role's name, level and color. The guard is run against
// both the stored role and the requested level so neither side of the change
// can exceed the actor's rank.
func (s *Service) Update(ctx context.Context, actor authz.User, roleID int64, in Input) (authz.Role, error) {
	if err := s.require(ctx, actor, shared.PermRolesEdit); err != nil {
		return authz.Role{}, err
	}
	current, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return authz.Role{}, err
	}
	if current.IsSystem && !actor.IsSuperAdmin() {
		return authz.Role{}, ErrSystemRole
	}
	if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.RoleTarget(current)); err != nil {
		return authz.Role{}, err
	}
	if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.Target{Kind: hierarchy.TargetRole, Level: in.Level, RoleName: in.Name}); err != nil {
		return authz.Role{}, err
	}
	role, err := s.store.UpdateRole(ctx, roleID, in)
	if err != nil {
		return authz.Role{}, err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "roles",
		Description: fmt.Sprintf("rol %s actualizado", role.Name),
		Table:       "roles",
		RecordID:    strconv.FormatInt(roleID, 10),
		Before:      map[string]any{"nombre": current.Name, "nivel": current.Level, "color": current.Color},
		After:       map[string]any{"nombre": role.Name, "nivel": role.Level, "color": role.Color},
	})
	return role, nil
}

// Delete removes a role. System roles and roles still assigned to users are
// refused with a conflict.
func (s *Service) Delete(ctx context.Context, actor authz.User, roleID int64) error {
	if err := s.require(ctx, actor, shared.PermRolesDelete); err != nil {
		return err
	}
	current, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return ErrSystemRole
	}
	if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.RoleTarget(current)); err != nil {
		return err
	}
	assigned, err := s.store.CountAssignedUsers(ctx, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return ErrInUse
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionDelete,
		Category:    "roles",
		Description: fmt.Sprintf("rol %s eliminado", current.Name),
		Table:       "roles",
		RecordID:    strconv.FormatInt(roleID, 10),
		Before:      map[string]any{"nombre": current.Name, "nivel": current.Level, "color": current.Color},
	})
	return nil
}

// ReplacePermissions swaps the role's full grant set in one transaction.
// Unknown codes fail the whole request; a partial rewrite would leave the
// role in a grant set nobody asked for.
func (s *Service) ReplacePermissions(ctx context.Context, actor authz.User, roleID int64, codes []string) error {
	if err := s.require(ctx, actor, shared.PermRolesEdit); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem && !actor.IsSuperAdmin() {
		return ErrSystemRole
	}
	if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.RoleTarget(role)); err != nil {
		return err
	}

	before, err := s.grants.RolePermissionCodes(ctx, roleID)
	if err != nil {
		return err
	}

	catalog, err := s.grants.ListPermissions(ctx)
	if err != nil {
		return err
	}
	byCode := make(map[string]int64, len(catalog))
	for _, p := range catalog {
		byCode[p.Code] = p.ID
	}
	ids := make([]int64, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		id, ok := byCode[code]
		if !ok {
			return fmt.Errorf("roles: unknown permission %q: %w", code, shared.ErrValidation)
		}
		ids = append(ids, id)
	}

	if err := s.grants.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
		return err
	}

	after := make([]string, 0, len(seen))
	for code := range seen {
		after = append(after, code)
	}
	sort.Strings(before)
	sort.Strings(after)
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "roles",
		Description: fmt.Sprintf("permisos del rol %s reemplazados", role.Name),
		Table:       "role_permissions",
		RecordID:    strconv.FormatInt(roleID, 10),
		Before:      map[string]any{"permisos": before},
		After:       map[string]any{"permisos": after},
	})
	if role.Level >= alerts.CriticalRoleLevel {
		// Best effort, same as Offer: filing must not fail the rewrite.
		_, _ = s.monitor.File(ctx, alerts.Alert{
			Type:         alerts.TypeCriticalRoleChange,
			Severity:     alerts.SeverityCritica,
			OriginUserID: &actor.ID,
			Title:        "Permisos de rol crítico modificados",
			Description:  fmt.Sprintf("permisos del rol %s (nivel %d) reemplazados", role.Name, role.Level),
			Data:         map[string]any{"role": role.Name, "level": role.Level, "permissions": after},
		})
	}
	return nil
}

func (s *Service) require(ctx context.Context, actor authz.User, code string) error {
	allowed, err := s.resolver.Resolve(ctx, actor, code)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("roles: %s: %w", code, shared.ErrForbidden)
	}
	return nil
}
