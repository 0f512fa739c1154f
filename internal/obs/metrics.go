package obs

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInactive           = "inactive"
	OutcomeThrottled          = "throttled"
	OutcomeTokenError         = "token_error"
	OutcomeError              = "error"
)

// AuthMetrics counts authentication and authorization outcomes.
type AuthMetrics struct {
	Logins           *prometheus.CounterVec
	Refreshes        *prometheus.CounterVec
	Logouts          *prometheus.CounterVec
	PermissionChecks *prometheus.CounterVec
}

// NewAuthMetrics creates the auth counters and registers them with reg.
// A nil reg leaves them unregistered. Counters already registered with reg
// are reused, so several AuthMetrics built on one registry share them.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeopt",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeopt",
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token exchanges by outcome.",
		}, []string{"outcome"}),
		Logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeopt",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logouts by scope.",
		}, []string{"scope"}),
		PermissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeopt",
			Subsystem: "auth",
			Name:      "permission_checks_total",
			Help:      "Team-scoped permission checks by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		m.Logins = registerCounterVec(reg, m.Logins)
		m.Refreshes = registerCounterVec(reg, m.Refreshes)
		m.Logouts = registerCounterVec(reg, m.Logouts)
		m.PermissionChecks = registerCounterVec(reg, m.PermissionChecks)
	}
	return m
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}
	panic(err)
}

// Login records a login outcome. Safe on a nil receiver.
func (m *AuthMetrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// Refresh records a refresh outcome. Safe on a nil receiver.
func (m *AuthMetrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

// Logout records a logout. Safe on a nil receiver.
func (m *AuthMetrics) Logout(all bool) {
	if m == nil {
		return
	}
	scope := "session"
	if all {
		scope = "all"
	}
	m.Logouts.WithLabelValues(scope).Inc()
}

// PermissionCheck records a permission decision. Safe on a nil receiver.
func (m *AuthMetrics) PermissionCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PermissionChecks.WithLabelValues(result).Inc()
}
