package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kubeopt.ai/internal/auth"
	"kubeopt.ai/internal/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *memory.Store
	clock    *testClock
	codec    *auth.JWTCodec
	identity *auth.IdentityService
	teams    *auth.TeamService
	roles    *auth.RoleService
	resolver *auth.Resolver
}

func newTestEnv(t *testing.T, extra ...auth.Option) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)}
	store := memory.New()

	codec, err := auth.NewJWTCodec("test-secret", auth.WithJWTClock(clock.Now))
	require.NoError(t, err)
	issuer := auth.NewTokenIssuer(codec, 15*time.Minute, 7*24*time.Hour, clock.Now)

	opts := append([]auth.Option{
		auth.WithClock(clock.Now),
		auth.WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithLogger(zap.NewNop()),
	}, extra...)

	identity, err := auth.NewIdentityService(store, issuer, codec, opts...)
	require.NoError(t, err)
	teams, err := auth.NewTeamService(store, opts...)
	require.NoError(t, err)
	roles, err := auth.NewRoleService(store, opts...)
	require.NoError(t, err)
	resolver, err := auth.NewResolver(store, opts...)
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		clock:    clock,
		codec:    codec,
		identity: identity,
		teams:    teams,
		roles:    roles,
		resolver: resolver,
	}
}

func (e *testEnv) createUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	u, err := e.identity.CreateUser(context.Background(), auth.NewUser{Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func (e *testEnv) login(t *testing.T, email, password string) auth.TokenPair {
	t.Helper()
	pair, _, err := e.identity.Login(context.Background(), email, password, auth.ClientMeta{})
	require.NoError(t, err)
	return pair
}
