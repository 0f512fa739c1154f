package pg

import (
	"context"
	"database/sql"
	"time"

	"kubeopt.ai/internal/auth"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked, revoked_at, ip_address, user_agent, created_at`

type refreshTokenRepo struct{ q querier }

func scanRefreshToken(row rowScanner) (*auth.RefreshToken, error) {
	var (
		t         auth.RefreshToken
		revokedAt sql.NullTime
		ip        sql.NullString
		ua        sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked,
		&revokedAt, &ip, &ua, &t.CreatedAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	t.IPAddress = ip.String
	t.UserAgent = ua.String
	return &t, nil
}

func (r *refreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	_, err := r.q.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, revoked, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, false, $5, $6, $7)
	`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, nullIfEmpty(t.IPAddress), nullIfEmpty(t.UserAgent), t.CreatedAt)
	return writeErr(err)
}

func (r *refreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	t, err := scanRefreshToken(r.q.QueryRowContext(ctx,
		`select `+refreshTokenColumns+` from refresh_tokens where token_hash = $1`, tokenHash))
	return t, readErr(err)
}

// Revoke only touches a record that is still live; under concurrent
// rotations the row lock makes every loser see zero affected rows.
func (r *refreshTokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where token_hash = $1 and revoked = false
	`, tokenHash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where user_id = $1 and revoked = false
	`, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokenRepo) ListByUser(ctx context.Context, userID string) ([]*auth.RefreshToken, error) {
	rows, err := r.q.QueryContext(ctx,
		`select `+refreshTokenColumns+` from refresh_tokens where user_id = $1 order by created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
