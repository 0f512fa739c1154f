package auth

import (
	"strings"
	"time"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusPending   UserStatus = "pending"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusPending:
		return true
	}
	return false
}

// TeamStatus is the lifecycle state of a team.
type TeamStatus string

const (
	TeamStatusActive    TeamStatus = "active"
	TeamStatusInactive  TeamStatus = "inactive"
	TeamStatusSuspended TeamStatus = "suspended"
)

// Wildcard matches any resource or action in a permission.
const Wildcard = "*"

// User represents a human account. Email is always stored lower-cased.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Status       UserStatus `json:"status"`
	IsSuperuser  bool       `json:"is_superuser"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FullName joins first and last name, falling back to the email.
func (u User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}

// IsActive reports whether the account may authenticate.
func (u User) IsActive() bool { return u.Status == UserStatusActive }

// Team is the tenant boundary.
type Team struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	Status      TeamStatus     `json:"status"`
	Settings    map[string]any `json:"settings"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Permission is a (resource, action) capability; either field may be Wildcard.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// Matches reports whether the permission grants action on resource.
// Wildcards apply to each field independently.
func (p Permission) Matches(resource, action string) bool {
	return (p.Resource == resource || p.Resource == Wildcard) &&
		(p.Action == action || p.Action == Wildcard)
}

// Role groups permissions. System roles are seeded and cannot be deleted.
type Role struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	IsSystemRole bool         `json:"is_system_role"`
	Permissions  []Permission `json:"permissions,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasPermission reports whether any permission of the role grants action on resource.
func (r Role) HasPermission(resource, action string) bool {
	return RoleHasPermission(r.Permissions, resource, action)
}

// TeamMembership binds one user to one team with exactly one role.
type TeamMembership struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	TeamID   string    `json:"team_id"`
	RoleID   string    `json:"role_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RefreshToken is the server-side record of an issued refresh token. Only the
// SHA-256 hex digest of the token identifier is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// Valid reports whether the record can still be exchanged at now.
func (t RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// ClientMeta carries optional request metadata persisted with refresh tokens.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Session identifies the refresh token presented by the caller. It is produced
// by decoding a refresh token.
type Session struct {
	UserID  string
	TokenID string
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
