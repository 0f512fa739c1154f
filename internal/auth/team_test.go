package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kubeopt.ai/internal/auth"
)

func TestCreateTeam(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	team, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Acme", Slug: "acme-team", Settings: map[string]any{"tier": "pro"}})
	require.NoError(t, err)
	assert.Equal(t, auth.TeamStatusActive, team.Status)
	assert.Equal(t, "pro", team.Settings["tier"])

	_, err = env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Other", Slug: "acme-team"})
	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))
	assert.Contains(t, err.Error(), "already exists")

	for _, slug := range []string{"", "Acme", "acme team", "-acme", "acme--team"} {
		_, err = env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Bad", Slug: slug})
		assert.True(t, auth.IsValidation(err), "slug %q", slug)
	}

	empty, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Empty", Slug: "empty"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Settings)

	bySlug, err := env.teams.GetTeamBySlug(ctx, "acme-team")
	require.NoError(t, err)
	assert.Equal(t, team.ID, bySlug.ID)
	_, err = env.teams.GetTeamByID(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	all, err := env.teams.ListTeams(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.roles.EnsureBuiltins(ctx))
	viewer, err := env.roles.GetRoleByName(ctx, auth.RoleViewer)
	require.NoError(t, err)
	operator, err := env.roles.GetRoleByName(ctx, auth.RoleOperator)
	require.NoError(t, err)

	team, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	user := env.createUser(t, "u@acme.io", "Passw0rd!")

	m, err := env.teams.AddMember(ctx, team, user, viewer)
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, m.RoleID)

	_, err = env.teams.AddMember(ctx, team, user, operator)
	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))
	assert.Contains(t, err.Error(), "already a member")

	updated, err := env.teams.UpdateMemberRole(ctx, team, user, operator)
	require.NoError(t, err)
	assert.Equal(t, operator.ID, updated.RoleID)

	ok, err := env.resolver.HasPermissionInTeam(ctx, user, team.ID, "webhook", "delete")
	require.NoError(t, err)
	assert.True(t, ok)

	teams, err := env.teams.UserTeams(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, team.ID, teams[0].ID)

	members, err := env.teams.ListMembers(ctx, team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, env.teams.RemoveMember(ctx, team, user))
	require.NoError(t, env.teams.RemoveMember(ctx, team, user))

	_, err = env.teams.UpdateMemberRole(ctx, team, user, viewer)
	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))
	assert.Contains(t, err.Error(), "not a member")

	ok, err = env.resolver.HasPermissionInTeam(ctx, user, team.ID, "webhook", "read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddMemberRequiresArguments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	team, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	user := env.createUser(t, "u@acme.io", "Passw0rd!")

	_, err = env.teams.AddMember(ctx, nil, user, &auth.Role{ID: "r"})
	assert.True(t, auth.IsValidation(err))
	_, err = env.teams.AddMember(ctx, team, user, nil)
	assert.True(t, auth.IsValidation(err))
	_, err = env.teams.AddMember(ctx, team, user, &auth.Role{ID: "missing"})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAcmeEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	team, err := env.teams.CreateTeam(ctx, auth.NewTeam{Name: "acme", Slug: "acme-team"})
	require.NoError(t, err)
	_, err = env.roles.CreatePermission(ctx, auth.NewPermission{Name: "Read Reports", Resource: "reports", Action: "read"})
	require.NoError(t, err)
	role, err := env.roles.CreateRole(ctx, auth.NewRole{
		Name:        "viewer",
		Permissions: []auth.Permission{{Resource: "reports", Action: "read"}},
	})
	require.NoError(t, err)
	user := env.createUser(t, "u@acme.io", "Passw0rd!")
	_, err = env.teams.AddMember(ctx, team, user, role)
	require.NoError(t, err)

	ok, err := env.resolver.HasPermissionInTeam(ctx, user, team.ID, "reports", "read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.resolver.HasPermissionInTeam(ctx, user, team.ID, "reports", "write")
	require.NoError(t, err)
	assert.False(t, ok)

	pair := env.login(t, "u@acme.io", "Passw0rd!")
	authed, _, err := env.identity.AuthenticateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.NoError(t, env.resolver.Authorize(ctx, authed.ID, team.ID, "reports", "read"))
}
