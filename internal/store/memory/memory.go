// Package memory provides an in-process auth.Store. Transactions run against
// a private copy of the dataset that replaces the live one on commit, and
// are serialized with every other operation.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"kubeopt.ai/internal/auth"
)

type dataset struct {
	users       map[string]auth.User
	teams       map[string]auth.Team
	roles       map[string]auth.Role
	rolePerms   map[string][]string
	permissions map[string]auth.Permission
	memberships map[string]auth.TeamMembership
	tokens      map[string]auth.RefreshToken // keyed by token hash

	// insertion sequence per id, used to keep listings stable
	order map[string]uint64
	seq   uint64
}

func newDataset() *dataset {
	return &dataset{
		users:       map[string]auth.User{},
		teams:       map[string]auth.Team{},
		roles:       map[string]auth.Role{},
		rolePerms:   map[string][]string{},
		permissions: map[string]auth.Permission{},
		memberships: map[string]auth.TeamMembership{},
		tokens:      map[string]auth.RefreshToken{},
		order:       map[string]uint64{},
	}
}

// clone copies every map. Stored values are replaced, never mutated in
// place, so a shallow copy of each map is enough.
func (d *dataset) clone() *dataset {
	return &dataset{
		users:       maps.Clone(d.users),
		teams:       maps.Clone(d.teams),
		roles:       maps.Clone(d.roles),
		rolePerms:   maps.Clone(d.rolePerms),
		permissions: maps.Clone(d.permissions),
		memberships: maps.Clone(d.memberships),
		tokens:      maps.Clone(d.tokens),
		order:       maps.Clone(d.order),
		seq:         d.seq,
	}
}

func (d *dataset) track(id string) {
	d.seq++
	d.order[id] = d.seq
}

func sortByOrder[T any](d *dataset, items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		return d.order[id(items[i])] < d.order[id(items[j])]
	})
}

// Store implements auth.Store in memory.
type Store struct {
	mu   *sync.Mutex
	data *dataset
	inTx bool
}

var _ auth.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newDataset()}
}

func (s *Store) view(fn func(d *dataset) error) error {
	if s.inTx {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Users(context.Context) auth.UserStore             { return userRepo{s} }
func (s *Store) Teams(context.Context) auth.TeamStore             { return teamRepo{s} }
func (s *Store) Roles(context.Context) auth.RoleStore             { return roleRepo{s} }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return permissionRepo{s} }
func (s *Store) Memberships(context.Context) auth.MembershipStore { return membershipRepo{s} }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return refreshTokenRepo{s}
}

// WithinTx runs fn against a copy of the dataset and publishes the copy when
// fn succeeds. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// Users --------------------------------------------------------------------

type userRepo struct{ s *Store }

func copyUser(u auth.User) *auth.User {
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return &u
}

func (r userRepo) Create(_ context.Context, u *auth.User) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.users[u.ID]; ok {
			return auth.ErrConflict
		}
		for _, existing := range d.users {
			if strings.EqualFold(existing.Email, u.Email) {
				return auth.ErrConflict
			}
		}
		d.users[u.ID] = *copyUser(*u)
		d.track(u.ID)
		return nil
	})
}

func (r userRepo) Find(_ context.Context, id string) (*auth.User, error) {
	var out *auth.User
	err := r.s.view(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = copyUser(u)
		return nil
	})
	return out, err
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	var out *auth.User
	err := r.s.view(func(d *dataset) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				out = copyUser(u)
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r userRepo) List(_ context.Context, status auth.UserStatus) ([]*auth.User, error) {
	var out []*auth.User
	err := r.s.view(func(d *dataset) error {
		for _, u := range d.users {
			if status == "" || u.Status == status {
				out = append(out, copyUser(u))
			}
		}
		sortByOrder(d, out, func(u *auth.User) string { return u.ID })
		return nil
	})
	return out, err
}

func (r userRepo) update(id string, fn func(u *auth.User)) error {
	return r.s.view(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return auth.ErrNotFound
		}
		fn(&u)
		d.users[id] = u
		return nil
	})
}

func (r userRepo) UpdatePassword(_ context.Context, userID, passwordHash string, at time.Time) error {
	return r.update(userID, func(u *auth.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	})
}

func (r userRepo) UpdateStatus(_ context.Context, userID string, status auth.UserStatus, at time.Time) error {
	return r.update(userID, func(u *auth.User) {
		u.Status = status
		u.UpdatedAt = at
	})
}

func (r userRepo) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	return r.update(userID, func(u *auth.User) {
		u.LastLoginAt = &at
		u.UpdatedAt = at
	})
}

// Teams --------------------------------------------------------------------

type teamRepo struct{ s *Store }

func copyTeam(t auth.Team) *auth.Team {
	t.Settings = maps.Clone(t.Settings)
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}
	return &t
}

func (r teamRepo) Create(_ context.Context, t *auth.Team) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.teams[t.ID]; ok {
			return auth.ErrConflict
		}
		for _, existing := range d.teams {
			if existing.Slug == t.Slug {
				return auth.ErrConflict
			}
		}
		d.teams[t.ID] = *copyTeam(*t)
		d.track(t.ID)
		return nil
	})
}

func (r teamRepo) Find(_ context.Context, id string) (*auth.Team, error) {
	var out *auth.Team
	err := r.s.view(func(d *dataset) error {
		t, ok := d.teams[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = copyTeam(t)
		return nil
	})
	return out, err
}

func (r teamRepo) FindBySlug(_ context.Context, slug string) (*auth.Team, error) {
	var out *auth.Team
	err := r.s.view(func(d *dataset) error {
		for _, t := range d.teams {
			if t.Slug == slug {
				out = copyTeam(t)
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r teamRepo) List(_ context.Context, status auth.TeamStatus) ([]*auth.Team, error) {
	var out []*auth.Team
	err := r.s.view(func(d *dataset) error {
		for _, t := range d.teams {
			if status == "" || t.Status == status {
				out = append(out, copyTeam(t))
			}
		}
		sortByOrder(d, out, func(t *auth.Team) string { return t.ID })
		return nil
	})
	return out, err
}

// Permissions --------------------------------------------------------------

type permissionRepo struct{ s *Store }

func (r permissionRepo) Create(_ context.Context, p *auth.Permission) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.permissions[p.ID]; ok {
			return auth.ErrConflict
		}
		for _, existing := range d.permissions {
			if existing.Name == p.Name || (existing.Resource == p.Resource && existing.Action == p.Action) {
				return auth.ErrConflict
			}
		}
		d.permissions[p.ID] = *p
		d.track(p.ID)
		return nil
	})
}

func (r permissionRepo) find(match func(auth.Permission) bool) (*auth.Permission, error) {
	var out *auth.Permission
	err := r.s.view(func(d *dataset) error {
		for _, p := range d.permissions {
			if match(p) {
				found := p
				out = &found
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r permissionRepo) FindByName(_ context.Context, name string) (*auth.Permission, error) {
	return r.find(func(p auth.Permission) bool { return p.Name == name })
}

func (r permissionRepo) FindByPair(_ context.Context, resource, action string) (*auth.Permission, error) {
	return r.find(func(p auth.Permission) bool { return p.Resource == resource && p.Action == action })
}

func (r permissionRepo) List(_ context.Context) ([]auth.Permission, error) {
	var out []auth.Permission
	err := r.s.view(func(d *dataset) error {
		for _, p := range d.permissions {
			out = append(out, p)
		}
		sortByOrder(d, out, func(p auth.Permission) string { return p.ID })
		return nil
	})
	return out, err
}

// Roles --------------------------------------------------------------------

type roleRepo struct{ s *Store }

func (d *dataset) loadRole(role auth.Role) *auth.Role {
	role.Permissions = nil
	for _, pid := range d.rolePerms[role.ID] {
		if p, ok := d.permissions[pid]; ok {
			role.Permissions = append(role.Permissions, p)
		}
	}
	return &role
}

func (r roleRepo) Create(_ context.Context, role *auth.Role) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.roles[role.ID]; ok {
			return auth.ErrConflict
		}
		for _, existing := range d.roles {
			if existing.Name == role.Name {
				return auth.ErrConflict
			}
		}
		stored := *role
		stored.Permissions = nil
		d.roles[role.ID] = stored
		d.track(role.ID)
		return nil
	})
}

func (r roleRepo) Find(_ context.Context, id string) (*auth.Role, error) {
	var out *auth.Role
	err := r.s.view(func(d *dataset) error {
		role, ok := d.roles[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = d.loadRole(role)
		return nil
	})
	return out, err
}

func (r roleRepo) FindByName(_ context.Context, name string) (*auth.Role, error) {
	var out *auth.Role
	err := r.s.view(func(d *dataset) error {
		for _, role := range d.roles {
			if role.Name == name {
				out = d.loadRole(role)
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r roleRepo) List(_ context.Context, systemOnly bool) ([]*auth.Role, error) {
	var out []*auth.Role
	err := r.s.view(func(d *dataset) error {
		for _, role := range d.roles {
			if systemOnly && !role.IsSystemRole {
				continue
			}
			out = append(out, d.loadRole(role))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r roleRepo) Delete(_ context.Context, id string) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.roles[id]; !ok {
			return auth.ErrNotFound
		}
		for _, m := range d.memberships {
			if m.RoleID == id {
				return auth.ErrConflict
			}
		}
		delete(d.roles, id)
		delete(d.rolePerms, id)
		delete(d.order, id)
		return nil
	})
}

func (r roleRepo) SetPermissions(_ context.Context, roleID string, permissionIDs []string) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
		set := make([]string, 0, len(permissionIDs))
		seen := make(map[string]struct{}, len(permissionIDs))
		for _, pid := range permissionIDs {
			if _, ok := d.permissions[pid]; !ok {
				return auth.ErrNotFound
			}
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			set = append(set, pid)
		}
		d.rolePerms[roleID] = set
		return nil
	})
}

// Memberships --------------------------------------------------------------

type membershipRepo struct{ s *Store }

func (r membershipRepo) Create(_ context.Context, m *auth.TeamMembership) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.users[m.UserID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.teams[m.TeamID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.roles[m.RoleID]; !ok {
			return auth.ErrNotFound
		}
		for _, existing := range d.memberships {
			if existing.ID == m.ID || (existing.TeamID == m.TeamID && existing.UserID == m.UserID) {
				return auth.ErrConflict
			}
		}
		d.memberships[m.ID] = *m
		d.track(m.ID)
		return nil
	})
}

func (r membershipRepo) Find(_ context.Context, teamID, userID string) (*auth.TeamMembership, error) {
	var out *auth.TeamMembership
	err := r.s.view(func(d *dataset) error {
		for _, m := range d.memberships {
			if m.TeamID == teamID && m.UserID == userID {
				found := m
				out = &found
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r membershipRepo) UpdateRole(_ context.Context, membershipID, roleID string) error {
	return r.s.view(func(d *dataset) error {
		m, ok := d.memberships[membershipID]
		if !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
		m.RoleID = roleID
		d.memberships[membershipID] = m
		return nil
	})
}

func (r membershipRepo) Delete(_ context.Context, membershipID string) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.memberships[membershipID]; !ok {
			return auth.ErrNotFound
		}
		delete(d.memberships, membershipID)
		delete(d.order, membershipID)
		return nil
	})
}

func (r membershipRepo) list(match func(auth.TeamMembership) bool) ([]auth.TeamMembership, error) {
	var out []auth.TeamMembership
	err := r.s.view(func(d *dataset) error {
		for _, m := range d.memberships {
			if match(m) {
				out = append(out, m)
			}
		}
		sortByOrder(d, out, func(m auth.TeamMembership) string { return m.ID })
		return nil
	})
	return out, err
}

func (r membershipRepo) ListByTeam(_ context.Context, teamID string) ([]auth.TeamMembership, error) {
	return r.list(func(m auth.TeamMembership) bool { return m.TeamID == teamID })
}

func (r membershipRepo) ListByUser(_ context.Context, userID string) ([]auth.TeamMembership, error) {
	return r.list(func(m auth.TeamMembership) bool { return m.UserID == userID })
}

// Refresh tokens -----------------------------------------------------------

type refreshTokenRepo struct{ s *Store }

func copyToken(t auth.RefreshToken) *auth.RefreshToken {
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return &t
}

func (r refreshTokenRepo) Create(_ context.Context, t *auth.RefreshToken) error {
	return r.s.view(func(d *dataset) error {
		if _, ok := d.users[t.UserID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.tokens[t.TokenHash]; ok {
			return auth.ErrConflict
		}
		d.tokens[t.TokenHash] = *copyToken(*t)
		d.track(t.ID)
		return nil
	})
}

func (r refreshTokenRepo) FindByHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var out *auth.RefreshToken
	err := r.s.view(func(d *dataset) error {
		t, ok := d.tokens[tokenHash]
		if !ok {
			return auth.ErrNotFound
		}
		out = copyToken(t)
		return nil
	})
	return out, err
}

func (r refreshTokenRepo) Revoke(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	var revoked bool
	err := r.s.view(func(d *dataset) error {
		t, ok := d.tokens[tokenHash]
		if !ok || t.Revoked {
			return nil
		}
		t.Revoked = true
		t.RevokedAt = &at
		d.tokens[tokenHash] = t
		revoked = true
		return nil
	})
	return revoked, err
}

func (r refreshTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	err := r.s.view(func(d *dataset) error {
		for hash, t := range d.tokens {
			if t.UserID != userID || t.Revoked {
				continue
			}
			t.Revoked = true
			revokedAt := at
			t.RevokedAt = &revokedAt
			d.tokens[hash] = t
			n++
		}
		return nil
	})
	return n, err
}

func (r refreshTokenRepo) ListByUser(_ context.Context, userID string) ([]*auth.RefreshToken, error) {
	var out []*auth.RefreshToken
	err := r.s.view(func(d *dataset) error {
		for _, t := range d.tokens {
			if t.UserID == userID {
				out = append(out, copyToken(t))
			}
		}
		sortByOrder(d, out, func(t *auth.RefreshToken) string { return t.ID })
		return nil
	})
	return out, err
}
