package pg

import (
	"context"
	"database/sql"
	"time"

	"kubeopt.ai/internal/auth"
)

const userColumns = `id, email, password_hash, first_name, last_name, status, is_superuser, last_login_at, created_at, updated_at`

type userRepo struct{ q querier }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u         auth.User
		first     sql.NullString
		last      sql.NullString
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &first, &last, &status,
		&u.IsSuperuser, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.FirstName = first.String
	u.LastName = last.String
	u.Status = auth.UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *auth.User) error {
	_, err := r.q.ExecContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, status, is_superuser, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName),
		string(u.Status), u.IsSuperuser, u.CreatedAt, u.UpdatedAt)
	return writeErr(err)
}

func (r *userRepo) Find(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	return u, readErr(err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
	return u, readErr(err)
}

func (r *userRepo) List(ctx context.Context, status auth.UserStatus) ([]*auth.User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.q.QueryContext(ctx, `select `+userColumns+` from users order by created_at, id`)
	} else {
		rows, err = r.q.QueryContext(ctx, `select `+userColumns+` from users where status = $1 order by created_at, id`, string(status))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = $3 where id = $1`, userID, passwordHash, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *userRepo) UpdateStatus(ctx context.Context, userID string, status auth.UserStatus, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`update users set status = $2, updated_at = $3 where id = $1`, userID, string(status), at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *userRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`update users set last_login_at = $2, updated_at = $2 where id = $1`, userID, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
