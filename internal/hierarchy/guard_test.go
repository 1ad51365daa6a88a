package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type recordedDenial struct {
	actor  authz.User
	target Target
	reason Reason
}

type denialRecorder struct {
	denials []recordedDenial
}

func (r *denialRecorder) GuardDenied(_ context.Context, actor authz.User, target Target, reason Reason) {
	r.denials = append(r.denials, recordedDenial{actor: actor, target: target, reason: reason})
}

func leveledUser(id int64, level int) authz.User {
	return authz.User{
		ID:     id,
		Type:   authz.UserTypeAdmin,
		Role:   &authz.Role{ID: id, Name: "Gerente", Level: level},
		Active: true,
	}
}

func requireDenied(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, reason, denied.Reason)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestGuardStrictlyGreaterLevel(t *testing.T) {
	guard := NewGuard(nil)
	ctx := context.Background()

	require.NoError(t, guard.AuthorizeUserMutation(ctx, leveledUser(1, 80), leveledUser(2, 50)))

	err := guard.AuthorizeUserMutation(ctx, leveledUser(1, 50), leveledUser(2, 50))
	requireDenied(t, err, ReasonOwnLevel)

	err = guard.AuthorizeUserMutation(ctx, leveledUser(1, 50), leveledUser(2, 80))
	requireDenied(t, err, ReasonInsufficientLevel)
}

func TestGuardSelfTargetBeforeLevelComparison(t *testing.T) {
	guard := NewGuard(nil)
	ctx := context.Background()

	// Even an actor that outranks everyone cannot target themselves.
	err := guard.AuthorizeUserMutation(ctx, leveledUser(1, 100), leveledUser(1, 10))
	requireDenied(t, err, ReasonSelfTarget)

	super := authz.User{ID: 2, Type: authz.UserTypeSuperAdmin}
	err = guard.AuthorizeUserMutation(ctx, super, super)
	requireDenied(t, err, ReasonSelfTarget)
}

func TestGuardSuperAdminBypass(t *testing.T) {
	guard := NewGuard(nil)
	super := authz.User{ID: 1, Type: authz.UserTypeSuperAdmin}

	require.NoError(t, guard.AuthorizeUserMutation(context.Background(), super, leveledUser(2, 100)))
	require.NoError(t, guard.AuthorizeLevelChange(context.Background(), super, RoleTarget(authz.Role{
		Name: authz.SuperAdminRoleName, Level: authz.SuperAdminLevel, IsSystem: true,
	})))
}

func TestGuardSuperAdminRoleNameException(t *testing.T) {
	guard := NewGuard(nil)

	// Stored level is irrelevant: the name alone pins it to the top.
	err := guard.AuthorizeLevelChange(context.Background(), leveledUser(1, 99), RoleTarget(authz.Role{
		Name: authz.SuperAdminRoleName, Level: 10,
	}))
	requireDenied(t, err, ReasonSystemRole)
}

func TestGuardSuperAdminTargetDenied(t *testing.T) {
	guard := NewGuard(nil)

	err := guard.AuthorizeUserMutation(context.Background(), leveledUser(1, 99), authz.User{ID: 2, Type: authz.UserTypeSuperAdmin})
	requireDenied(t, err, ReasonInsufficientLevel)
}

func TestGuardNotifiesObserverOnDenial(t *testing.T) {
	recorder := &denialRecorder{}
	guard := NewGuard(recorder)
	ctx := context.Background()

	require.NoError(t, guard.AuthorizeUserMutation(ctx, leveledUser(1, 80), leveledUser(2, 50)))
	require.Empty(t, recorder.denials)

	_ = guard.AuthorizeUserMutation(ctx, leveledUser(3, 50), leveledUser(4, 80))
	require.Len(t, recorder.denials, 1)
	require.Equal(t, ReasonInsufficientLevel, recorder.denials[0].reason)
	require.Equal(t, int64(3), recorder.denials[0].actor.ID)
	require.Equal(t, int64(4), recorder.denials[0].target.UserID)
}
