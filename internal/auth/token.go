package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const defaultIssuer = "kubeopt"

// TokenClaims is the decoded content of an access or refresh token.
type TokenClaims struct {
	Subject     string
	TokenType   string
	ID          string
	Email       string
	IsSuperuser bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec signs and verifies tokens. Decode must reject tampered and
// expired tokens.
type TokenCodec interface {
	Encode(claims TokenClaims, ttl time.Duration) (string, time.Time, error)
	Decode(token string) (TokenClaims, error)
}

type jwtClaims struct {
	TokenType   string `json:"token_type"`
	Email       string `json:"email,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	jwt.RegisteredClaims
}

// JWTCodec is a TokenCodec producing HS256-signed JWTs.
type JWTCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures JWTCodec.
type JWTOption func(*JWTCodec)

// WithJWTIssuer overrides the iss claim written and required by the codec.
func WithJWTIssuer(issuer string) JWTOption {
	return func(c *JWTCodec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithJWTClock overrides the time source.
func WithJWTClock(fn func() time.Time) JWTOption {
	return func(c *JWTCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewJWTCodec constructs a codec signing with secret.
func NewJWTCodec(secret string, opts ...JWTOption) (*JWTCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	c := &JWTCodec{secret: []byte(secret), issuer: defaultIssuer, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs claims with a lifetime of ttl and returns the token and its expiry.
func (c *JWTCodec) Encode(claims TokenClaims, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		TokenType:   claims.TokenType,
		Email:       claims.Email,
		IsSuperuser: claims.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.Subject,
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies the signature, issuer and lifetime of token.
func (c *JWTCodec) Decode(token string) (TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return TokenClaims{}, &Error{Code: CodeTokenError, Message: "invalid token", Err: err}
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	out := TokenClaims{
		Subject:     claims.Subject,
		TokenType:   claims.TokenType,
		ID:          claims.ID,
		Email:       claims.Email,
		IsSuperuser: claims.IsSuperuser,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
