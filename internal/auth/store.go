package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Teams(ctx context.Context) TeamStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Memberships(ctx context.Context) MembershipStore
	RefreshTokens(ctx context.Context) RefreshTokenStore

	// WithinTx runs fn against a transactional view of the store. The view's
	// writes become visible together when fn returns nil and are discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// UserStore manages users. Emails passed in are already lower-cased.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, status UserStatus) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	UpdateStatus(ctx context.Context, userID string, status UserStatus, at time.Time) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TeamStore manages teams.
type TeamStore interface {
	Create(ctx context.Context, t *Team) error
	Find(ctx context.Context, id string) (*Team, error)
	FindBySlug(ctx context.Context, slug string) (*Team, error)
	List(ctx context.Context, status TeamStatus) ([]*Team, error)
}

// RoleStore manages roles and their permission sets. Loaded roles carry
// their permissions.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, systemOnly bool) ([]*Role, error)
	Delete(ctx context.Context, id string) error
	SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	FindByName(ctx context.Context, name string) (*Permission, error)
	FindByPair(ctx context.Context, resource, action string) (*Permission, error)
	List(ctx context.Context) ([]Permission, error)
}

// MembershipStore manages team memberships. At most one membership exists per
// (team, user) pair.
type MembershipStore interface {
	Create(ctx context.Context, m *TeamMembership) error
	Find(ctx context.Context, teamID, userID string) (*TeamMembership, error)
	UpdateRole(ctx context.Context, membershipID, roleID string) error
	Delete(ctx context.Context, membershipID string) error
	ListByTeam(ctx context.Context, teamID string) ([]TeamMembership, error)
	ListByUser(ctx context.Context, userID string) ([]TeamMembership, error)
}

// RefreshTokenStore manages refresh token lifecycle. Records are never deleted.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Revoke flips a non-revoked record to revoked. It reports false when the
	// record was already revoked, which is how concurrent rotations lose.
	Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	// RevokeAllForUser revokes every non-revoked record of the user and returns
	// how many were flipped.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*RefreshToken, error)
}
