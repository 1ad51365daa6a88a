package users

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

type memoryUserStore struct {
	users map[int64]authz.User
	roles map[int64]authz.Role
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[int64]authz.User), roles: make(map[int64]authz.Role)}
}

func (s *memoryUserStore) GetUser(ctx context.Context, id int64) (authz.User, error) {
	u, ok := s.users[id]
	if !ok {
		return authz.User{}, ErrNotFound
	}
	return u, nil
}

func (s *memoryUserStore) GetRole(ctx context.Context, id int64) (authz.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return authz.Role{}, ErrNotFound
	}
	return r, nil
}

func (s *memoryUserStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	out := make([]Profile, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, Profile{ID: u.ID, Email: u.Email, Active: u.Active})
	}
	return out, nil
}

func (s *memoryUserStore) SetActive(ctx context.Context, userID int64, active bool) error {
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	s.users[userID] = u
	return nil
}

func (s *memoryUserStore) SetRole(ctx context.Context, userID int64, roleID *int64) error {
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RoleID = roleID
	if roleID != nil {
		role := s.roles[*roleID]
		u.Role = &role
	} else {
		u.Role = nil
	}
	s.users[userID] = u
	return nil
}

func (s *memoryUserStore) SetType(ctx context.Context, userID int64, userType string) error {
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Type = authz.UserType(userType)
	s.users[userID] = u
	return nil
}

type grantAllStore struct{}

func (grantAllStore) GetUser(ctx context.Context, id int64) (authz.User, error) {
	return authz.User{}, authz.ErrNotFound
}

func (grantAllStore) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	return shared.CoreScopes(), nil
}

func (grantAllStore) UserOverrides(ctx context.Context, userID int64) (map[string]authz.Override, error) {
	return nil, nil
}

type auditSink struct {
	entries []audit.LogEntry
}

func (r *auditSink) Insert(ctx context.Context, entry audit.LogEntry) (audit.LogEntry, error) {
	entry.ID = int64(len(r.entries) + 1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return entry, nil
}

type alertSink struct {
	alerts []alerts.Alert
}

func (r *alertSink) Insert(ctx context.Context, alert alerts.Alert) (alerts.Alert, error) {
	alert.ID = int64(len(r.alerts) + 1)
	r.alerts = append(r.alerts, alert)
	return alert, nil
}

func (r *alertSink) Get(ctx context.Context, id int64) (alerts.Alert, error) {
	return alerts.Alert{}, alerts.ErrNotFound
}

func (r *alertSink) List(ctx context.Context, f alerts.Filters) ([]alerts.Alert, error) {
	return r.alerts, nil
}

func (r *alertSink) MarkResolved(ctx context.Context, id, resolvedBy int64, notes string, at time.Time) (bool, error) {
	return false, nil
}

func (r *alertSink) CountUnresolvedBySeverity(ctx context.Context) (map[alerts.Severity]int, error) {
	return nil, nil
}

type usersFixture struct {
	service *Service
	store   *memoryUserStore
	audits  *auditSink
	alerts  *alertSink
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemoryUserStore()
	audits := &auditSink{}
	alertRepo := &alertSink{}
	recorder := audit.NewRecorder(audits, nil, nil)
	monitor := alerts.NewMonitor(alertRepo, client, nil)
	guard := hierarchy.NewGuard(monitor)
	resolver := authz.NewResolver(grantAllStore{})
	service := NewService(store, store, store, resolver, guard, recorder, monitor)
	return &usersFixture{service: service, store: store, audits: audits, alerts: alertRepo}
}

func actorAt(id int64, level int) authz.User {
	roleID := int64(1)
	return authz.User{
		ID:     id,
		Email:  "actor@example.com",
		Type:   authz.UserTypeAdmin,
		RoleID: &roleID,
		Role:   &authz.Role{ID: 1, Name: "Gerente", Level: level},
		Active: true,
	}
}

func seedTarget(fx *usersFixture, id int64, level int) authz.User {
	roleID := int64(2)
	target := authz.User{
		ID:     id,
		Email:  "objetivo@example.com",
		Type:   authz.UserTypeTeam,
		RoleID: &roleID,
		Role:   &authz.Role{ID: 2, Name: "Soporte", Level: level},
		Active: true,
	}
	fx.store.users[id] = target
	return target
}

func TestGetReturnsProfile(t *testing.T) {
	fx := newUsersFixture(t)
	seedTarget(fx, 2, 30)

	profile, err := fx.service.Get(context.Background(), actorAt(1, 80), 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), profile.ID)
	require.Equal(t, "objetivo@example.com", profile.Email)
	require.Equal(t, "Soporte", profile.RoleName)
	require.Equal(t, 30, profile.RoleLevel)
	require.Nil(t, profile.LastAccessAt)
}

func TestGetUnknownUser(t *testing.T) {
	fx := newUsersFixture(t)

	_, err := fx.service.Get(context.Background(), actorAt(1, 80), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateGuardedAuditedAlerted(t *testing.T) {
	fx := newUsersFixture(t)
	ctx := context.Background()
	seedTarget(fx, 2, 30)

	require.NoError(t, fx.service.Deactivate(ctx, actorAt(1, 80), 2))
	require.False(t, fx.store.users[2].Active)

	require.Len(t, fx.audits.entries, 1)
	entry := fx.audits.entries[0]
	require.Equal(t, map[string]any{"activo": true}, entry.Before)
	require.Equal(t, map[string]any{"activo": false}, entry.After)
	require.Equal(t, []string{"activo"}, entry.ModifiedFields)

	require.Len(t, fx.alerts.alerts, 1)
	require.Equal(t, alerts.TypeUserDeactivated, fx.alerts.alerts[0].Type)
}

func TestDeactivatePeerDenied(t *testing.T) {
	fx := newUsersFixture(t)
	seedTarget(fx, 2, 80)

	err := fx.service.Deactivate(context.Background(), actorAt(1, 80), 2)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.True(t, fx.store.users[2].Active)
	require.Empty(t, fx.audits.entries)
}

func TestDeactivateSelfDenied(t *testing.T) {
	fx := newUsersFixture(t)
	actor := actorAt(1, 80)
	fx.store.users[1] = actor

	err := fx.service.Deactivate(context.Background(), actor, 1)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAssignRoleGuardsGrantedLevel(t *testing.T) {
	fx := newUsersFixture(t)
	ctx := context.Background()
	seedTarget(fx, 2, 30)
	fx.store.roles[5] = authz.Role{ID: 5, Name: "Director", Level: 90}
	fx.store.roles[6] = authz.Role{ID: 6, Name: "Analista", Level: 40}

	// Granting a role above the actor's own level is escalation by proxy.
	five := int64(5)
	err := fx.service.AssignRole(ctx, actorAt(1, 80), 2, &five)
	require.ErrorIs(t, err, shared.ErrForbidden)

	six := int64(6)
	require.NoError(t, fx.service.AssignRole(ctx, actorAt(1, 80), 2, &six))
	require.Equal(t, int64(6), *fx.store.users[2].RoleID)
}

func TestAssignCriticalRoleFilesAlert(t *testing.T) {
	fx := newUsersFixture(t)
	ctx := context.Background()
	seedTarget(fx, 2, 30)
	fx.store.roles[5] = authz.Role{ID: 5, Name: "Director", Level: 90}

	five := int64(5)
	require.NoError(t, fx.service.AssignRole(ctx, actorAt(1, 99), 2, &five))
	require.Len(t, fx.alerts.alerts, 1)
	require.Equal(t, alerts.TypeCriticalRoleChange, fx.alerts.alerts[0].Type)
}

func TestChangeTypeToSuperAdminReserved(t *testing.T) {
	fx := newUsersFixture(t)
	ctx := context.Background()
	seedTarget(fx, 2, 30)

	err := fx.service.ChangeType(ctx, actorAt(1, 99), 2, authz.UserTypeSuperAdmin)
	require.ErrorIs(t, err, shared.ErrForbidden)

	super := authz.User{ID: 1, Email: "root@example.com", Type: authz.UserTypeSuperAdmin}
	require.NoError(t, fx.service.ChangeType(ctx, super, 2, authz.UserTypeSuperAdmin))
	require.Equal(t, authz.UserTypeSuperAdmin, fx.store.users[2].Type)

	require.Len(t, fx.alerts.alerts, 1)
	require.Equal(t, alerts.TypeUserTypeChange, fx.alerts.alerts[0].Type)
}

func TestExportDataAudited(t *testing.T) {
	fx := newUsersFixture(t)
	ctx := context.Background()
	seedTarget(fx, 2, 30)

	bundle, err := fx.service.ExportData(ctx, actorAt(1, 80), 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), bundle.User.ID)
	require.NotEmpty(t, bundle.Permissions)

	require.Len(t, fx.audits.entries, 1)
	require.Equal(t, audit.ActionGDPRDataExport, fx.audits.entries[0].Action)
}
