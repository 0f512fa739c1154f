package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestJWTCodecRoundTrip(t *testing.T) {
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	codec, err := NewJWTCodec("secret", WithJWTIssuer("test-issuer"), WithJWTClock(fixedClock(now)))
	require.NoError(t, err)

	token, exp, err := codec.Encode(TokenClaims{
		Subject:     "user-42",
		TokenType:   TokenTypeAccess,
		ID:          "jti-1",
		Email:       "u@acme.io",
		IsSuperuser: true,
	}, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), exp)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, "u@acme.io", claims.Email)
	assert.True(t, claims.IsSuperuser)
	assert.True(t, claims.ExpiresAt.Equal(exp))
}

func TestJWTCodecRejectsExpired(t *testing.T) {
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	clock := now
	codec, err := NewJWTCodec("secret", WithJWTClock(func() time.Time { return clock }))
	require.NoError(t, err)

	token, _, err := codec.Encode(TokenClaims{Subject: "u1", TokenType: TokenTypeRefresh}, time.Minute)
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = codec.Decode(token)
	require.Error(t, err)
	assert.Equal(t, CodeTokenError, CodeOf(err))
}

func TestJWTCodecRejectsTampering(t *testing.T) {
	codec, err := NewJWTCodec("secret")
	require.NoError(t, err)
	other, err := NewJWTCodec("other-secret")
	require.NoError(t, err)
	foreign, err := NewJWTCodec("secret", WithJWTIssuer("someone-else"))
	require.NoError(t, err)

	token, _, err := codec.Encode(TokenClaims{Subject: "u1", TokenType: TokenTypeAccess}, time.Minute)
	require.NoError(t, err)

	_, err = other.Decode(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = foreign.Decode(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[1] = parts[1] + "x"
	_, err = codec.Decode(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Decode("   ")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWTCodecValidation(t *testing.T) {
	_, err := NewJWTCodec(" ")
	assert.Error(t, err)

	codec, err := NewJWTCodec("secret")
	require.NoError(t, err)
	_, _, err = codec.Encode(TokenClaims{}, time.Minute)
	assert.Error(t, err)
	_, _, err = codec.Encode(TokenClaims{Subject: "u1"}, 0)
	assert.Error(t, err)
}

func TestDecodeSessionChecksType(t *testing.T) {
	codec, err := NewJWTCodec("secret")
	require.NoError(t, err)
	token, _, err := codec.Encode(TokenClaims{Subject: "u1", TokenType: TokenTypeAccess, ID: "j1"}, time.Minute)
	require.NoError(t, err)

	_, _, err = DecodeSession(codec, token, TokenTypeRefresh)
	assert.Equal(t, CodeTokenError, CodeOf(err))

	sess, claims, err := DecodeSession(codec, token, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "u1", TokenID: "j1"}, sess)
	assert.Equal(t, "u1", claims.Subject)
}

func TestHashTokenID(t *testing.T) {
	h := HashTokenID("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashTokenID("abc"))
	assert.NotEqual(t, h, HashTokenID("abd"))
}
