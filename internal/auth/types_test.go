package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleHasPermission(t *testing.T) {
	cases := []struct {
		name     string
		perms    []Permission
		resource string
		action   string
		want     bool
	}{
		{"exact", []Permission{{Resource: "reports", Action: "read"}}, "reports", "read", true},
		{"exact other action", []Permission{{Resource: "reports", Action: "read"}}, "reports", "write", false},
		{"any resource read", []Permission{{Resource: "*", Action: "read"}}, "billing", "read", true},
		{"any resource read denies write", []Permission{{Resource: "*", Action: "read"}}, "billing", "write", false},
		{"any action on test", []Permission{{Resource: "test", Action: "*"}}, "test", "delete", true},
		{"any action on test denies other", []Permission{{Resource: "test", Action: "*"}}, "other", "read", false},
		{"full wildcard", []Permission{{Resource: "*", Action: "*"}}, "anything", "whatever", true},
		{"no permissions", nil, "reports", "read", false},
		{"union", []Permission{{Resource: "a", Action: "read"}, {Resource: "b", Action: "write"}}, "b", "write", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RoleHasPermission(tc.perms, tc.resource, tc.action))
			assert.Equal(t, tc.want, Role{Permissions: tc.perms}.HasPermission(tc.resource, tc.action))
		})
	}
}

func TestUserHelpers(t *testing.T) {
	u := User{Email: "u@acme.io", Status: UserStatusActive}
	assert.Equal(t, "u@acme.io", u.FullName())
	assert.True(t, u.IsActive())

	u.FirstName, u.LastName = " Ada ", "Lovelace"
	assert.Equal(t, "Ada Lovelace", u.FullName())

	u.Status = UserStatusSuspended
	assert.False(t, u.IsActive())
	assert.True(t, UserStatusPending.Valid())
	assert.False(t, UserStatus("deleted").Valid())
}

func TestRefreshTokenValid(t *testing.T) {
	now := time.Now()
	tok := RefreshToken{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, tok.Valid(now))
	assert.False(t, tok.Valid(now.Add(time.Minute)))
	tok.Revoked = true
	assert.False(t, tok.Valid(now))
}

func TestErrorsCompareByCode(t *testing.T) {
	err := newError(CodeUserInactive, "User account is %s", UserStatusSuspended)
	assert.ErrorIs(t, err, ErrUserInactive)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, "auth: User account is suspended", err.Error())

	assert.True(t, IsValidation(ErrConflict))
	assert.True(t, IsValidation(newError(CodeNotFound, "x")))
	assert.False(t, IsValidation(ErrTokenInvalid))
	assert.Empty(t, CodeOf(assert.AnError))
}

func TestBuiltinRolesReferenceCatalog(t *testing.T) {
	names := map[string]bool{}
	for _, p := range BuiltinPermissions {
		names[p.Name] = true
	}
	for _, r := range BuiltinRoles {
		for _, p := range r.Permissions {
			assert.True(t, names[p], "role %s references unknown permission %s", r.Name, p)
		}
	}
}
