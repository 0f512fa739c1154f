// Package app assembles the auth core from configuration and a store.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
	"kubeopt.ai/internal/auth"
	"kubeopt.ai/internal/config"
	"kubeopt.ai/internal/obs"
)

// App is the wired set of auth services sharing one store.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *obs.AuthMetrics
	Store    auth.Store
	Codec    *auth.JWTCodec
	Issuer   *auth.TokenIssuer
	Identity *auth.IdentityService
	Teams    *auth.TeamService
	Roles    *auth.RoleService
	Resolver *auth.Resolver
}

// Option customises New.
type Option func(*settings)

type settings struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	now      func() time.Time
}

// WithLogger uses l instead of building one from the log settings.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRegisterer registers metrics on reg. Defaults to the global registry;
// apps built on one registry share their counters.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registry = reg }
}

// WithClock overrides the time source of every service.
func WithClock(fn func() time.Time) Option {
	return func(s *settings) { s.now = fn }
}

// New validates cfg and wires the services on top of store.
func New(cfg *config.Config, store auth.Store, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}

	s := settings{registry: prometheus.DefaultRegisterer, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		l, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, fmt.Errorf("app: logger: %w", err)
		}
		s.logger = l
	}
	logger := s.logger.With(zap.String("env", cfg.Env))

	codec, err := auth.NewJWTCodec(cfg.SigningSecret(),
		auth.WithJWTIssuer(cfg.JWT.Issuer),
		auth.WithJWTClock(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("app: token codec: %w", err)
	}
	issuer := auth.NewTokenIssuer(codec, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, s.now)
	metrics := obs.NewAuthMetrics(s.registry)

	common := []auth.Option{
		auth.WithLogger(logger),
		auth.WithAudit(audit.NewLogger(logger.Named("audit"))),
		auth.WithMetrics(metrics),
		auth.WithClock(s.now),
		auth.WithHasher(auth.NewBcryptHasher(cfg.Auth.BcryptCost)),
		auth.WithPasswordMinLength(cfg.Auth.PasswordMinLength),
	}
	throttle := auth.NewLoginThrottle(cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration)

	identity, err := auth.NewIdentityService(store, issuer, codec,
		append([]auth.Option{auth.WithLoginThrottle(throttle)}, common...)...)
	if err != nil {
		return nil, err
	}
	teams, err := auth.NewTeamService(store, common...)
	if err != nil {
		return nil, err
	}
	roles, err := auth.NewRoleService(store, common...)
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewResolver(store, common...)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Store:    store,
		Codec:    codec,
		Issuer:   issuer,
		Identity: identity,
		Teams:    teams,
		Roles:    roles,
		Resolver: resolver,
	}, nil
}

// Bootstrap makes sure the built-in permissions and roles exist.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := a.Roles.EnsureBuiltins(ctx); err != nil {
		return fmt.Errorf("bootstrap roles: %w", err)
	}
	a.Logger.Info("builtin roles ready", zap.Int("roles", len(auth.BuiltinRoles)))
	return nil
}

// Close flushes buffered log entries.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return nil
}
