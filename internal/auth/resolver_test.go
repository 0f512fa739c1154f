package auth_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kubeopt.ai/internal/auth"
	"kubeopt.ai/internal/obs"
)

func setupTeamWithRole(t *testing.T, env *testEnv, perms ...auth.Permission) (*auth.Team, *auth.User) {
	t.Helper()
	ctx := context.Background()
	for _, p := range perms {
		_, err := env.roles.CreatePermission(ctx, auth.NewPermission{
			Name: p.Resource + ":" + p.Action, Resource: p.Resource, Action: p.Action,
		})
		require.NoError(t, err)
	}
	role, err := env.roles.CreateRole(ctx, auth.NewRole{Name: "custom", Permissions: perms})
	require.NoError(t, err)
	team, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	user := env.createUser(t, "member@acme.io", "Passw0rd!")
	_, err = env.teams.AddMember(ctx, team, user, role)
	require.NoError(t, err)
	return team, user
}

func TestWildcardResourceGrantsActionEverywhere(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	team, user := setupTeamWithRole(t, env, auth.Permission{Resource: "*", Action: "read"})

	for _, tc := range []struct {
		resource, action string
		want             bool
	}{
		{"reports", "read", true},
		{"billing", "read", true},
		{"reports", "write", false},
	} {
		ok, err := env.resolver.HasPermissionInTeam(ctx, user, team.ID, tc.resource, tc.action)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s:%s", tc.resource, tc.action)
	}
}

func TestWildcardActionGrantsOnlyItsResource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	team, user := setupTeamWithRole(t, env, auth.Permission{Resource: "test", Action: "*"})

	ok, err := env.resolver.HasPermissionInTeam(ctx, user, team.ID, "test", "delete")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.resolver.HasPermissionInTeam(ctx, user, team.ID, "other", "read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionsAreTeamScoped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, user := setupTeamWithRole(t, env, auth.Permission{Resource: "reports", Action: "read"})
	other, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Other", Slug: "other"})
	require.NoError(t, err)

	ok, err := env.resolver.HasPermissionInTeam(ctx, user, other.ID, "reports", "read")
	require.NoError(t, err)
	assert.False(t, ok)

	role, err := env.resolver.RoleInTeam(ctx, user.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestSuperuserBypassesMembership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin, err := env.identity.CreateUser(ctx, auth.NewUser{Email: "root@acme.io", Password: "Passw0rd!", IsSuperuser: true})
	require.NoError(t, err)

	ok, err := env.resolver.HasPermissionInTeam(ctx, admin, "no-such-team", "anything", "delete")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, env.resolver.Authorize(ctx, admin.ID, "no-such-team", "anything", "delete"))

	pair := env.login(t, "root@acme.io", "Passw0rd!")
	claims, err := env.codec.Decode(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsSuperuser)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := obs.NewAuthMetrics(reg)
	env := newTestEnv(t, auth.WithMetrics(metrics))
	team, user := setupTeamWithRole(t, env, auth.Permission{Resource: "reports", Action: "read"})

	require.NoError(t, env.resolver.Authorize(ctx, user.ID, team.ID, "reports", "read"))

	err := env.resolver.Authorize(ctx, user.ID, team.ID, "reports", "write")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)
	assert.Equal(t, "auth: You don't have permission to write reports", err.Error())

	assert.ErrorIs(t, env.resolver.Authorize(ctx, "missing", team.ID, "reports", "read"), auth.ErrUserNotFound)

	require.NoError(t, env.identity.SetUserStatus(ctx, user, auth.UserStatusInactive))
	assert.ErrorIs(t, env.resolver.Authorize(ctx, user.ID, team.ID, "reports", "read"), auth.ErrUserInactive)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionChecks.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionChecks.WithLabelValues("denied")))
}

func TestHasPermissionInTeamNilUser(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.resolver.HasPermissionInTeam(context.Background(), nil, "team", "reports", "read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeCurrentUsesAuthenticatedContext(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	team, user := setupTeamWithRole(t, env, auth.Permission{Resource: "reports", Action: "read"})
	pair := env.login(t, "member@acme.io", "Passw0rd!")

	err := env.resolver.AuthorizeCurrent(ctx, team.ID, "reports", "read")
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)

	authed, got, err := env.identity.AuthenticateContext(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	fromCtx, ok := auth.UserFromContext(authed)
	require.True(t, ok)
	assert.Equal(t, user.ID, fromCtx.ID)

	require.NoError(t, env.resolver.AuthorizeCurrent(authed, team.ID, "reports", "read"))
	assert.ErrorIs(t, env.resolver.AuthorizeCurrent(authed, team.ID, "reports", "write"), auth.ErrPermissionDenied)

	require.NoError(t, env.identity.SetUserStatus(ctx, user, auth.UserStatusSuspended))
	assert.ErrorIs(t, env.resolver.AuthorizeCurrent(authed, team.ID, "reports", "read"), auth.ErrUserInactive)

	_, _, err = env.identity.AuthenticateContext(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
