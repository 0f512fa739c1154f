package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
)

// RoleHasPermission reports whether any of perms grants action on resource.
func RoleHasPermission(perms []Permission, resource, action string) bool {
	for _, p := range perms {
		if p.Matches(resource, action) {
			return true
		}
	}
	return false
}

// Resolver answers team-scoped permission questions:
// user -> membership -> role -> permissions, with a superuser bypass.
type Resolver struct {
	store Store
	options
}

// NewResolver constructs a resolver over store.
func NewResolver(store Store, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Resolver{store: store, options: newOptions(opts)}, nil
}

// HasPermissionInTeam reports whether user may perform action on resource
// within teamID. Superusers pass every check; non-members fail every check.
func (r *Resolver) HasPermissionInTeam(ctx context.Context, user *User, teamID, resource, action string) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsSuperuser {
		r.metrics.PermissionCheck(true)
		return true, nil
	}
	role, err := r.roleInTeam(ctx, user.ID, teamID)
	if err != nil {
		return false, err
	}
	allowed := role != nil && role.HasPermission(resource, action)
	r.metrics.PermissionCheck(allowed)
	return allowed, nil
}

// RoleInTeam returns the role userID holds in teamID, or nil when the user is
// not a member.
func (r *Resolver) RoleInTeam(ctx context.Context, userID, teamID string) (*Role, error) {
	return r.roleInTeam(ctx, strings.TrimSpace(userID), strings.TrimSpace(teamID))
}

func (r *Resolver) roleInTeam(ctx context.Context, userID, teamID string) (*Role, error) {
	m, err := r.store.Memberships(ctx).Find(ctx, teamID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	role, err := r.store.Roles(ctx).Find(ctx, m.RoleID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// Authorize loads userID and fails with ErrPermissionDenied unless the user
// may perform action on resource within teamID.
func (r *Resolver) Authorize(ctx context.Context, userID, teamID, resource, action string) error {
	user, err := r.store.Users(ctx).Find(ctx, strings.TrimSpace(userID))
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return newError(CodeUserInactive, "User account is %s", user.Status)
	}
	ok, err := r.HasPermissionInTeam(ctx, user, teamID, resource, action)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	r.logger.Debug("permission denied",
		zap.String("user_id", user.ID), zap.String("team_id", teamID),
		zap.String("resource", resource), zap.String("action", action))
	r.record(ContextWithUser(ctx, user), audit.EventPermissionDenied,
		zap.String("team_id", teamID), zap.String("resource", resource), zap.String("action", action))
	return newError(CodePermissionDenied, "You don't have permission to %s %s", action, resource)
}

// AuthorizeCurrent authorizes the user attached to ctx by ContextWithUser.
// The user is reloaded so status changes since authentication apply.
func (r *Resolver) AuthorizeCurrent(ctx context.Context, teamID, resource, action string) error {
	user, ok := UserFromContext(ctx)
	if !ok {
		return newError(CodePermissionDenied, "Authentication required to %s %s", action, resource)
	}
	return r.Authorize(ctx, user.ID, teamID, resource, action)
}
