package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	assert.True(t, h.Verify("Passw0rd!", hash))
	assert.False(t, h.Verify("passw0rd!", hash))
}

func TestBcryptHasherSaltsEveryHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same-password", a))
	assert.True(t, h.Verify("same-password", b))
}

func TestBcryptHasherMalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	for _, hash := range []string{"", "not-a-hash", "$2a$04$short", strings.Repeat("x", 60)} {
		assert.False(t, h.Verify("anything", hash), "hash %q", hash)
	}
}

func TestBcryptHasherRejectsEmptyPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.Error(t, err)
}

func TestNewBcryptHasherCostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(bcrypt.MaxCost+1).Cost)
	assert.Equal(t, 6, NewBcryptHasher(6).Cost)
}

func TestCheckPassword(t *testing.T) {
	assert.NoError(t, checkPassword("12345678", 8))
	assert.NoError(t, checkPassword("ääääääää", 8))

	err := checkPassword("1234567", 8)
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Contains(t, err.Error(), "at least 8")

	assert.Error(t, checkPassword("short", 0))
	assert.Error(t, checkPassword(strings.Repeat("a", maxPasswordBytes+1), 8))
}
