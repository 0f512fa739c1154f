package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"kubeopt.ai/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// HashTokenID returns the SHA-256 hex digest stored in place of a refresh token identifier.
func HashTokenID(jti string) string {
	sum := sha256.Sum256([]byte(jti))
	return hex.EncodeToString(sum[:])
}

// TokenIssuer mints access and refresh tokens. Every refresh token it mints is
// persisted as a RefreshToken record holding only the hash of its identifier.
type TokenIssuer struct {
	codec      TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer constructs an issuer. Non-positive TTLs fall back to defaults.
func NewTokenIssuer(codec TokenCodec, accessTTL, refreshTTL time.Duration, now func() time.Time) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL, now: now}
}

// IssueAccess mints a stateless access token for user.
func (i *TokenIssuer) IssueAccess(user *User) (string, time.Time, error) {
	return i.codec.Encode(TokenClaims{
		Subject:     user.ID,
		TokenType:   TokenTypeAccess,
		ID:          uuid.NewString(),
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
	}, i.accessTTL)
}

// IssueRefresh mints a refresh token with a fresh identifier and persists its
// record through store.
func (i *TokenIssuer) IssueRefresh(ctx context.Context, store RefreshTokenStore, user *User, meta ClientMeta) (string, *RefreshToken, error) {
	jti, err := ids.TokenID()
	if err != nil {
		return "", nil, err
	}
	token, exp, err := i.codec.Encode(TokenClaims{
		Subject:   user.ID,
		TokenType: TokenTypeRefresh,
		ID:        jti,
	}, i.refreshTTL)
	if err != nil {
		return "", nil, err
	}
	rec := &RefreshToken{
		ID:        ids.Sortable(),
		UserID:    user.ID,
		TokenHash: HashTokenID(jti),
		ExpiresAt: exp,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: i.now().UTC(),
	}
	if err := store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return token, rec, nil
}

// IssuePair mints an access token and a persisted refresh token.
func (i *TokenIssuer) IssuePair(ctx context.Context, store RefreshTokenStore, user *User, meta ClientMeta) (TokenPair, error) {
	access, accessExp, err := i.IssueAccess(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rec, err := i.IssueRefresh(ctx, store, user, meta)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// DecodeSession decodes a token of the wanted type into the session it identifies.
func DecodeSession(codec TokenCodec, token, wantType string) (Session, TokenClaims, error) {
	claims, err := codec.Decode(token)
	if err != nil {
		return Session{}, TokenClaims{}, err
	}
	if claims.TokenType != wantType {
		return Session{}, TokenClaims{}, newError(CodeTokenError, "expected %s token", wantType)
	}
	return Session{UserID: claims.Subject, TokenID: claims.ID}, claims, nil
}
