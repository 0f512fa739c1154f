package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
	"kubeopt.ai/internal/ids"
)

// RoleService manages roles and the permission catalog.
type RoleService struct {
	store Store
	options
}

// NewRoleService constructs the service.
func NewRoleService(store Store, opts ...Option) (*RoleService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &RoleService{store: store, options: newOptions(opts)}, nil
}

// NewPermission describes a catalog entry to create.
type NewPermission struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
	Resource    string `validate:"required,max=100"`
	Action      string `validate:"required,max=50"`
}

// CreatePermission adds a permission. Names and (resource, action) pairs are unique.
func (s *RoleService) CreatePermission(ctx context.Context, in NewPermission) (*Permission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Resource = strings.TrimSpace(in.Resource)
	in.Action = strings.TrimSpace(in.Action)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.createPermission(ctx, s.store, in)
}

func (s *RoleService) createPermission(ctx context.Context, store Store, in NewPermission) (*Permission, error) {
	perms := store.Permissions(ctx)
	if _, err := perms.FindByName(ctx, in.Name); err == nil {
		return nil, newError(CodeConflict, "Permission '%s' already exists", in.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := perms.FindByPair(ctx, in.Resource, in.Action); err == nil {
		return nil, newError(CodeConflict, "Permission for %s:%s already exists", in.Resource, in.Action)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	p := &Permission{
		ID:          ids.New(),
		Name:        in.Name,
		Description: in.Description,
		Resource:    in.Resource,
		Action:      in.Action,
		CreatedAt:   s.now().UTC(),
	}
	if err := perms.Create(ctx, p); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(CodeConflict, "Permission '%s' already exists", in.Name)
		}
		return nil, err
	}
	return p, nil
}

// NewRole describes a role to create.
type NewRole struct {
	Name         string `validate:"required,max=100"`
	Description  string `validate:"max=500"`
	Permissions  []Permission
	IsSystemRole bool
}

// CreateRole creates a role holding the given permissions. Role names are unique.
func (s *RoleService) CreateRole(ctx context.Context, in NewRole) (*Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var role *Role
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		role, err = s.createRole(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created role", zap.String("role_id", role.ID), zap.String("name", role.Name),
		zap.Int("permissions", len(role.Permissions)))
	s.record(ctx, audit.EventRoleCreated, zap.String("role_id", role.ID),
		zap.String("name", role.Name), zap.Bool("is_system_role", role.IsSystemRole))
	return role, nil
}

func (s *RoleService) createRole(ctx context.Context, tx Store, in NewRole) (*Role, error) {
	roles := tx.Roles(ctx)
	if _, err := roles.FindByName(ctx, in.Name); err == nil {
		return nil, newError(CodeConflict, "Role '%s' already exists", in.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	permIDs, perms, err := resolvePermissions(ctx, tx, in.Permissions)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	role := &Role{
		ID:           ids.New(),
		Name:         in.Name,
		Description:  in.Description,
		IsSystemRole: in.IsSystemRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(CodeConflict, "Role '%s' already exists", in.Name)
		}
		return nil, err
	}
	if len(permIDs) > 0 {
		if err := roles.SetPermissions(ctx, role.ID, permIDs); err != nil {
			return nil, err
		}
	}
	role.Permissions = perms
	return role, nil
}

// resolvePermissions maps the given permissions to catalog entries. Entries
// without an ID are looked up by name, then by (resource, action).
func resolvePermissions(ctx context.Context, tx Store, in []Permission) ([]string, []Permission, error) {
	store := tx.Permissions(ctx)
	seen := make(map[string]struct{}, len(in))
	permIDs := make([]string, 0, len(in))
	out := make([]Permission, 0, len(in))
	for _, p := range in {
		resolved := p
		if p.ID == "" {
			var (
				found *Permission
				err   error
			)
			if p.Name != "" {
				found, err = store.FindByName(ctx, p.Name)
			} else {
				found, err = store.FindByPair(ctx, p.Resource, p.Action)
			}
			if errors.Is(err, ErrNotFound) {
				return nil, nil, newError(CodeNotFound, "Permission %s not found", permissionLabel(p))
			}
			if err != nil {
				return nil, nil, err
			}
			resolved = *found
		}
		if _, dup := seen[resolved.ID]; dup {
			continue
		}
		seen[resolved.ID] = struct{}{}
		permIDs = append(permIDs, resolved.ID)
		out = append(out, resolved)
	}
	return permIDs, out, nil
}

func permissionLabel(p Permission) string {
	if p.Name != "" {
		return fmt.Sprintf("'%s'", p.Name)
	}
	return p.Resource + ":" + p.Action
}

// SetRolePermissions replaces the permission set of a role.
func (s *RoleService) SetRolePermissions(ctx context.Context, role *Role, perms []Permission) error {
	if role == nil || role.ID == "" {
		return newError(CodeValidation, "role is required")
	}
	var resolved []Permission
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		permIDs, out, err := resolvePermissions(ctx, tx, perms)
		if err != nil {
			return err
		}
		resolved = out
		return tx.Roles(ctx).SetPermissions(ctx, role.ID, permIDs)
	})
	if err != nil {
		return err
	}
	role.Permissions = resolved

	s.logger.Info("role permissions replaced", zap.String("role_id", role.ID), zap.Int("permissions", len(resolved)))
	s.record(ctx, audit.EventRolePermissions, zap.String("role_id", role.ID), zap.Int("permissions", len(resolved)))
	return nil
}

// DeleteRole removes a custom role. System roles cannot be deleted, and roles
// still assigned to a membership fail with a conflict.
func (s *RoleService) DeleteRole(ctx context.Context, role *Role) error {
	if role == nil || role.ID == "" {
		return newError(CodeValidation, "role is required")
	}
	if role.IsSystemRole {
		return newError(CodePermissionDenied, "System role '%s' cannot be deleted", role.Name)
	}
	if err := s.store.Roles(ctx).Delete(ctx, role.ID); err != nil {
		if errors.Is(err, ErrConflict) {
			return newError(CodeConflict, "Role '%s' is still assigned to team members", role.Name)
		}
		return err
	}

	s.logger.Info("deleted role", zap.String("role_id", role.ID), zap.String("name", role.Name))
	s.record(ctx, audit.EventRoleDeleted, zap.String("role_id", role.ID), zap.String("name", role.Name))
	return nil
}

// GetRoleByID returns the role or ErrNotFound.
func (s *RoleService) GetRoleByID(ctx context.Context, id string) (*Role, error) {
	return s.store.Roles(ctx).Find(ctx, strings.TrimSpace(id))
}

// GetRoleByName returns the role or ErrNotFound.
func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.store.Roles(ctx).FindByName(ctx, strings.TrimSpace(name))
}

// ListRoles lists every role.
func (s *RoleService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx, false)
}

// SystemRoles lists the seeded system roles.
func (s *RoleService) SystemRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx, true)
}

// GetPermissionByName returns the permission or ErrNotFound.
func (s *RoleService) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	return s.store.Permissions(ctx).FindByName(ctx, strings.TrimSpace(name))
}

// GetPermission returns the permission for (resource, action) or ErrNotFound.
func (s *RoleService) GetPermission(ctx context.Context, resource, action string) (*Permission, error) {
	return s.store.Permissions(ctx).FindByPair(ctx, strings.TrimSpace(resource), strings.TrimSpace(action))
}

// ListPermissions lists the permission catalog.
func (s *RoleService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// EnsureBuiltins seeds BuiltinPermissions and BuiltinRoles. Existing entries
// are left untouched, so it is safe to run on every start.
func (s *RoleService) EnsureBuiltins(ctx context.Context) error {
	var createdPerms, createdRoles int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		for _, p := range BuiltinPermissions {
			_, err := tx.Permissions(ctx).FindByName(ctx, p.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if _, err := s.createPermission(ctx, tx, NewPermission{
				Name: p.Name, Description: p.Description, Resource: p.Resource, Action: p.Action,
			}); err != nil {
				return fmt.Errorf("seed permission %q: %w", p.Name, err)
			}
			createdPerms++
		}
		for _, r := range BuiltinRoles {
			_, err := tx.Roles(ctx).FindByName(ctx, r.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			perms := make([]Permission, 0, len(r.Permissions))
			for _, name := range r.Permissions {
				perms = append(perms, Permission{Name: name})
			}
			if _, err := s.createRole(ctx, tx, NewRole{
				Name: r.Name, Description: r.Description, Permissions: perms, IsSystemRole: true,
			}); err != nil {
				return fmt.Errorf("seed role %q: %w", r.Name, err)
			}
			createdRoles++
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("builtin catalog ensured", zap.Int("permissions_created", createdPerms), zap.Int("roles_created", createdRoles))
	return nil
}
