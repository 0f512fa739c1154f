package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kubeopt.ai/internal/auth"
)

// Teams --------------------------------------------------------------------

const teamColumns = `id, name, slug, description, status, settings, created_at, updated_at`

type teamRepo struct{ q querier }

func scanTeam(row rowScanner) (*auth.Team, error) {
	var (
		t        auth.Team
		desc     sql.NullString
		status   string
		settings []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &desc, &status, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Description = desc.String
	t.Status = auth.TeamStatus(status)
	t.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &t, nil
}

func (r *teamRepo) Create(ctx context.Context, t *auth.Team) error {
	settings := []byte("{}")
	if len(t.Settings) > 0 {
		b, err := json.Marshal(t.Settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		settings = b
	}
	_, err := r.q.ExecContext(ctx, `
		insert into teams (id, name, slug, description, status, settings, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Slug, nullIfEmpty(t.Description), string(t.Status), settings, t.CreatedAt, t.UpdatedAt)
	return writeErr(err)
}

func (r *teamRepo) Find(ctx context.Context, id string) (*auth.Team, error) {
	t, err := scanTeam(r.q.QueryRowContext(ctx, `select `+teamColumns+` from teams where id = $1`, id))
	return t, readErr(err)
}

func (r *teamRepo) FindBySlug(ctx context.Context, slug string) (*auth.Team, error) {
	t, err := scanTeam(r.q.QueryRowContext(ctx, `select `+teamColumns+` from teams where slug = $1`, slug))
	return t, readErr(err)
}

func (r *teamRepo) List(ctx context.Context, status auth.TeamStatus) ([]*auth.Team, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.q.QueryContext(ctx, `select `+teamColumns+` from teams order by created_at, id`)
	} else {
		rows, err = r.q.QueryContext(ctx, `select `+teamColumns+` from teams where status = $1 order by created_at, id`, string(status))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*auth.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// Permissions --------------------------------------------------------------

const permissionColumns = `id, name, description, resource, action, created_at`

type permissionRepo struct{ q querier }

func scanPermission(row rowScanner) (auth.Permission, error) {
	var (
		p    auth.Permission
		desc sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &desc, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
		return auth.Permission{}, err
	}
	p.Description = desc.String
	return p, nil
}

func (r *permissionRepo) Create(ctx context.Context, p *auth.Permission) error {
	_, err := r.q.ExecContext(ctx, `
		insert into permissions (id, name, description, resource, action, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, nullIfEmpty(p.Description), p.Resource, p.Action, p.CreatedAt)
	return writeErr(err)
}

func (r *permissionRepo) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	p, err := scanPermission(r.q.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where name = $1`, name))
	if err != nil {
		return nil, readErr(err)
	}
	return &p, nil
}

func (r *permissionRepo) FindByPair(ctx context.Context, resource, action string) (*auth.Permission, error) {
	p, err := scanPermission(r.q.QueryRowContext(ctx,
		`select `+permissionColumns+` from permissions where resource = $1 and action = $2`, resource, action))
	if err != nil {
		return nil, readErr(err)
	}
	return &p, nil
}

func (r *permissionRepo) List(ctx context.Context) ([]auth.Permission, error) {
	return queryPermissions(ctx, r.q, `select `+permissionColumns+` from permissions order by resource, action`)
}

func queryPermissions(ctx context.Context, q querier, query string, args ...any) ([]auth.Permission, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Roles --------------------------------------------------------------------

const roleColumns = `id, name, description, is_system_role, created_at, updated_at`

type roleRepo struct{ q querier }

func scanRole(row rowScanner) (*auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	role.Description = desc.String
	return &role, nil
}

func (r *roleRepo) withPermissions(ctx context.Context, role *auth.Role) (*auth.Role, error) {
	perms, err := queryPermissions(ctx, r.q, `
		select p.id, p.name, p.description, p.resource, p.action, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.resource, p.action
	`, role.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for role %s: %w", role.ID, err)
	}
	role.Permissions = perms
	return role, nil
}

func (r *roleRepo) Create(ctx context.Context, role *auth.Role) error {
	_, err := r.q.ExecContext(ctx, `
		insert into roles (id, name, description, is_system_role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.IsSystemRole, role.CreatedAt, role.UpdatedAt)
	return writeErr(err)
}

func (r *roleRepo) Find(ctx context.Context, id string) (*auth.Role, error) {
	role, err := scanRole(r.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
	if err != nil {
		return nil, readErr(err)
	}
	return r.withPermissions(ctx, role)
}

func (r *roleRepo) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	role, err := scanRole(r.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where name = $1`, name))
	if err != nil {
		return nil, readErr(err)
	}
	return r.withPermissions(ctx, role)
}

func (r *roleRepo) List(ctx context.Context, systemOnly bool) ([]*auth.Role, error) {
	query := `select ` + roleColumns + ` from roles order by name`
	if systemOnly {
		query = `select ` + roleColumns + ` from roles where is_system_role = true order by name`
	}
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	var roles []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, role := range roles {
		if _, err := r.withPermissions(ctx, role); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// Delete fails with ErrConflict while a membership still references the role.
func (r *roleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (r *roleRepo) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := r.q.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := r.q.ExecContext(ctx,
			`insert into role_permissions (role_id, permission_id) values ($1, $2) on conflict do nothing`,
			roleID, pid,
		); err != nil {
			return writeErr(err)
		}
	}
	return nil
}

// Memberships --------------------------------------------------------------

const membershipColumns = `id, user_id, team_id, role_id, joined_at`

type membershipRepo struct{ q querier }

func scanMembership(row rowScanner) (auth.TeamMembership, error) {
	var m auth.TeamMembership
	err := row.Scan(&m.ID, &m.UserID, &m.TeamID, &m.RoleID, &m.JoinedAt)
	return m, err
}

func (r *membershipRepo) Create(ctx context.Context, m *auth.TeamMembership) error {
	_, err := r.q.ExecContext(ctx, `
		insert into team_memberships (id, user_id, team_id, role_id, joined_at)
		values ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.TeamID, m.RoleID, m.JoinedAt)
	return writeErr(err)
}

func (r *membershipRepo) Find(ctx context.Context, teamID, userID string) (*auth.TeamMembership, error) {
	m, err := scanMembership(r.q.QueryRowContext(ctx,
		`select `+membershipColumns+` from team_memberships where team_id = $1 and user_id = $2`, teamID, userID))
	if err != nil {
		return nil, readErr(err)
	}
	return &m, nil
}

func (r *membershipRepo) UpdateRole(ctx context.Context, membershipID, roleID string) error {
	res, err := r.q.ExecContext(ctx,
		`update team_memberships set role_id = $2 where id = $1`, membershipID, roleID)
	if err != nil {
		return writeErr(err)
	}
	return requireAffected(res)
}

func (r *membershipRepo) Delete(ctx context.Context, membershipID string) error {
	res, err := r.q.ExecContext(ctx, `delete from team_memberships where id = $1`, membershipID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *membershipRepo) ListByTeam(ctx context.Context, teamID string) ([]auth.TeamMembership, error) {
	return r.list(ctx, `select `+membershipColumns+` from team_memberships where team_id = $1 order by joined_at, id`, teamID)
}

func (r *membershipRepo) ListByUser(ctx context.Context, userID string) ([]auth.TeamMembership, error) {
	return r.list(ctx, `select `+membershipColumns+` from team_memberships where user_id = $1 order by joined_at, id`, userID)
}

func (r *membershipRepo) list(ctx context.Context, query string, arg string) ([]auth.TeamMembership, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []auth.TeamMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
