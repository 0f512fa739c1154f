package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
	"kubeopt.ai/internal/obs"
)

// Option configures the services of this package.
type Option func(*options)

type options struct {
	logger            *zap.Logger
	audit             *audit.Logger
	metrics           *obs.AuthMetrics
	now               func() time.Time
	hasher            Hasher
	passwordMinLength int
	throttle          *LoginThrottle
}

func newOptions(opts []Option) options {
	o := options{
		logger:            zap.NewNop(),
		now:               time.Now,
		passwordMinLength: defaultPasswordMinLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = NewBcryptHasher(0)
	}
	if o.audit == nil {
		o.audit = audit.NewLogger(o.logger)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAudit sets the audit sink. Defaults to one writing through the logger.
func WithAudit(a *audit.Logger) Option {
	return func(o *options) { o.audit = a }
}

// WithMetrics enables outcome counters.
func WithMetrics(m *obs.AuthMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithPasswordMinLength sets the minimum password length in characters.
func WithPasswordMinLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.passwordMinLength = n
		}
	}
}

// WithLoginThrottle enables failed-login throttling.
func WithLoginThrottle(t *LoginThrottle) Option {
	return func(o *options) { o.throttle = t }
}

// record writes an audit event. A rejected event is reported on the debug log
// so the operation that triggered it still succeeds.
func (o options) record(ctx context.Context, event string, fields ...zap.Field) {
	if err := o.audit.LogEvent(ctx, event, fields...); err != nil {
		o.logger.Debug("audit event dropped", zap.String("event", event), zap.Error(err))
	}
}
