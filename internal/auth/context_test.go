package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	_, ok := UserFromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, ctx, ContextWithUser(ctx, nil))
	assert.Equal(t, ctx, ContextWithUser(ctx, &User{}))

	u := &User{ID: "u1"}
	got, ok := UserFromContext(ContextWithUser(ctx, u))
	assert.True(t, ok)
	assert.Same(t, u, got)
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ContextWithSession(ctx, Session{}))
	_, err := currentSession(ctx)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	sess := Session{UserID: "u1", TokenID: "j1"}
	got, err := currentSession(ContextWithSession(ctx, sess))
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}
