package roles

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type memoryRoleStore struct {
	roles    map[int64]authz.Role
	assigned map[int64]int
	nextID   int64
}

func newMemoryRoleStore() *memoryRoleStore {
	return &memoryRoleStore{roles: make(map[int64]authz.Role), assigned: make(map[int64]int)}
}

func (s *memoryRoleStore) ListRoles(ctx context.Context) ([]authz.Role, error) {
	out := make([]authz.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *memoryRoleStore) GetRole(ctx context.Context, id int64) (authz.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return authz.Role{}, ErrNotFound
	}
	return role, nil
}

func (s *memoryRoleStore) CreateRole(ctx context.Context, in Input) (authz.Role, error) {
	s.nextID++
	role := authz.Role{ID: s.nextID, Name: in.Name, Level: in.Level, Color: in.Color}
	s.roles[role.ID] = role
	return role, nil
}

func (s *memoryRoleStore) UpdateRole(ctx context.Context, id int64, in Input) (authz.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return authz.Role{}, ErrNotFound
	}
	role.Name = in.Name
	role.Level = in.Level
	role.Color = in.Color
	s.roles[id] = role
	return role, nil
}

func (s *memoryRoleStore) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *memoryRoleStore) CountAssignedUsers(ctx context.Context, id int64) (int, error) {
	return s.assigned[id], nil
}

type memoryGrantStore struct {
	catalog []authz.Permission
	grants  map[int64][]int64
}

func newMemoryGrantStore(codes ...string) *memoryGrantStore {
	store := &memoryGrantStore{grants: make(map[int64][]int64)}
	for i, code := range codes {
		store.catalog = append(store.catalog, authz.Permission{ID: int64(i + 1), Code: code})
	}
	return store
}

func (s *memoryGrantStore) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	return s.catalog, nil
}

func (s *memoryGrantStore) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	var codes []string
	for _, id := range s.grants[roleID] {
		for _, p := range s.catalog {
			if p.ID == id {
				codes = append(codes, p.Code)
			}
		}
	}
	return codes, nil
}

func (s *memoryGrantStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	s.grants[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

type resolverStore struct {
	codes map[int64][]string
}

func (s resolverStore) GetUser(ctx context.Context, id int64) (authz.User, error) {
	return authz.User{}, authz.ErrNotFound
}

func (s resolverStore) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	return s.codes[roleID], nil
}

func (s resolverStore) UserOverrides(ctx context.Context, userID int64) (map[string]authz.Override, error) {
	return nil, nil
}

type capturingAuditRepo struct {
	entries []audit.LogEntry
}

func (r *capturingAuditRepo) Insert(ctx context.Context, entry audit.LogEntry) (audit.LogEntry, error) {
	entry.ID = int64(len(r.entries) + 1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return entry, nil
}

type capturingAlertRepo struct {
	alerts []alerts.Alert
}

func (r *capturingAlertRepo) Insert(ctx context.Context, alert alerts.Alert) (alerts.Alert, error) {
	alert.ID = int64(len(r.alerts) + 1)
	r.alerts = append(r.alerts, alert)
	return alert, nil
}

func (r *capturingAlertRepo) Get(ctx context.Context, id int64) (alerts.Alert, error) {
	return alerts.Alert{}, alerts.ErrNotFound
}

func (r *capturingAlertRepo) List(ctx context.Context, f alerts.Filters) ([]alerts.Alert, error) {
	return r.alerts, nil
}

func (r *capturingAlertRepo) MarkResolved(ctx context.Context, id, resolvedBy int64, notes string, at time.Time) (bool, error) {
	return false, nil
}

func (r *capturingAlertRepo) CountUnresolvedBySeverity(ctx context.Context) (map[alerts.Severity]int, error) {
	return nil, nil
}

type rolesFixture struct {
	service   *Service
	store     *memoryRoleStore
	grants    *memoryGrantStore
	auditRepo *capturingAuditRepo
	alertRepo *capturingAlertRepo
}

func newRolesFixture(t *testing.T) *rolesFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemoryRoleStore()
	grants := newMemoryGrantStore(shared.PermUsersView, shared.PermUsersEdit, shared.PermRolesView)
	auditRepo := &capturingAuditRepo{}
	alertRepo := &capturingAlertRepo{}
	recorder := audit.NewRecorder(auditRepo, nil, nil)
	monitor := alerts.NewMonitor(alertRepo, client, nil)
	guard := hierarchy.NewGuard(monitor)
	resolver := authz.NewResolver(resolverStore{codes: map[int64][]string{
		100: {shared.PermRolesView, shared.PermRolesCreate, shared.PermRolesEdit, shared.PermRolesDelete},
	}})
	service := NewService(store, grants, resolver, guard, recorder, monitor)
	return &rolesFixture{service: service, store: store, grants: grants, auditRepo: auditRepo, alertRepo: alertRepo}
}

func manager(level int) authz.User {
	roleID := int64(100)
	return authz.User{
		ID:     1,
		Type:   authz.UserTypeAdmin,
		RoleID: &roleID,
		Role:   &authz.Role{ID: 100, Name: "Gerente", Level: level},
		Active: true,
	}
}

func TestCreateRoleBelowOwnLevel(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(80), Input{Name: "Soporte", Level: 30, Color: "#22c55e"})
	require.NoError(t, err)
	require.Equal(t, "Soporte", role.Name)
	require.Len(t, fx.auditRepo.entries, 1)
	require.Equal(t, audit.ActionInsert, fx.auditRepo.entries[0].Action)
}

func TestCreateRoleAtOwnLevelDenied(t *testing.T) {
	fx := newRolesFixture(t)

	_, err := fx.service.Create(context.Background(), manager(80), Input{Name: "Par", Level: 80})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, fx.auditRepo.entries)
}

func TestUpdateRoleGuardsBothLevels(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(80), Input{Name: "Soporte", Level: 30})
	require.NoError(t, err)

	// Raising the role to the actor's level is a lateral escalation.
	_, err = fx.service.Update(ctx, manager(80), role.ID, Input{Name: "Soporte", Level: 80})
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := fx.service.Update(ctx, manager(80), role.ID, Input{Name: "Soporte N2", Level: 40})
	require.NoError(t, err)
	require.Equal(t, 40, updated.Level)
}

func TestDeleteSystemRoleConflicts(t *testing.T) {
	fx := newRolesFixture(t)
	fx.store.roles[9] = authz.Role{ID: 9, Name: "Base", Level: 10, IsSystem: true}

	err := fx.service.Delete(context.Background(), manager(80), 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteAssignedRoleConflicts(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(80), Input{Name: "Soporte", Level: 30})
	require.NoError(t, err)
	fx.store.assigned[role.ID] = 3

	err = fx.service.Delete(ctx, manager(80), role.ID)
	require.ErrorIs(t, err, ErrInUse)
}

func TestReplacePermissionsRewritesAtomicallyWithAudit(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(80), Input{Name: "Soporte", Level: 30})
	require.NoError(t, err)
	require.NoError(t, fx.service.ReplacePermissions(ctx, manager(80), role.ID, []string{shared.PermUsersView, shared.PermUsersEdit}))

	require.NoError(t, fx.service.ReplacePermissions(ctx, manager(80), role.ID, []string{shared.PermUsersEdit, shared.PermRolesView}))

	codes, err := fx.grants.RolePermissionCodes(ctx, role.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{shared.PermUsersEdit, shared.PermRolesView}, codes)

	last := fx.auditRepo.entries[len(fx.auditRepo.entries)-1]
	require.Equal(t, map[string]any{"permisos": []string{shared.PermUsersEdit, shared.PermUsersView}}, last.Before)
	require.Equal(t, map[string]any{"permisos": []string{shared.PermRolesView, shared.PermUsersEdit}}, last.After)
}

func TestReplacePermissionsOnSystemRoleConflicts(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()
	fx.store.roles[9] = authz.Role{ID: 9, Name: "Base", Level: 30, IsSystem: true}
	fx.grants.grants[9] = []int64{1}

	err := fx.service.ReplacePermissions(ctx, manager(80), 9, nil)
	require.ErrorIs(t, err, shared.ErrConflict)

	codes, err := fx.grants.RolePermissionCodes(ctx, 9)
	require.NoError(t, err)
	require.NotEmpty(t, codes, "system role grants stay intact")
}

func TestReplacePermissionsOnSystemRoleAllowsSuperAdmin(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()
	fx.store.roles[9] = authz.Role{ID: 9, Name: "Base", Level: 30, IsSystem: true}
	fx.grants.grants[9] = []int64{1}

	root := authz.User{ID: 2, Type: authz.UserTypeSuperAdmin, Active: true}
	require.NoError(t, fx.service.ReplacePermissions(ctx, root, 9, []string{shared.PermUsersView}))

	codes, err := fx.grants.RolePermissionCodes(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, []string{shared.PermUsersView}, codes)
}

func TestReplacePermissionsUnknownCodeFails(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(80), Input{Name: "Soporte", Level: 30})
	require.NoError(t, err)

	err = fx.service.ReplacePermissions(ctx, manager(80), role.ID, []string{"permiso.falso"})
	require.ErrorIs(t, err, shared.ErrValidation)

	codes, err := fx.grants.RolePermissionCodes(ctx, role.ID)
	require.NoError(t, err)
	require.Empty(t, codes, "nothing is written when any code is unknown")
}

func TestReplacePermissionsOnCriticalRoleFilesAlert(t *testing.T) {
	fx := newRolesFixture(t)
	ctx := context.Background()

	role, err := fx.service.Create(ctx, manager(99), Input{Name: "Director", Level: alerts.CriticalRoleLevel})
	require.NoError(t, err)

	require.NoError(t, fx.service.ReplacePermissions(ctx, manager(99), role.ID, []string{shared.PermUsersView}))
	require.Len(t, fx.alertRepo.alerts, 1)
	require.Equal(t, alerts.TypeCriticalRoleChange, fx.alertRepo.alerts[0].Type)
}
