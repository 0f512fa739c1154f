package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)

	m.Login(OutcomeSuccess)
	m.Login(OutcomeSuccess)
	m.Login(OutcomeInvalidCredentials)
	m.Refresh(OutcomeTokenError)
	m.Logout(true)
	m.PermissionCheck(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues(OutcomeInvalidCredentials)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues(OutcomeTokenError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logouts.WithLabelValues("all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("denied")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestAuthMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewAuthMetrics(reg)
	var second *AuthMetrics
	require.NotPanics(t, func() { second = NewAuthMetrics(reg) })

	first.Login(OutcomeSuccess)
	second.Login(OutcomeSuccess)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.Logins.WithLabelValues(OutcomeSuccess)))
	assert.Same(t, first.PermissionChecks, second.PermissionChecks)

	conflicting := prometheus.NewGauge(prometheus.GaugeOpts{Name: "kubeopt_auth_logouts_total", Help: "clash"})
	other := prometheus.NewRegistry()
	other.MustRegister(conflicting)
	assert.Panics(t, func() { NewAuthMetrics(other) })
}

func TestAuthMetricsNilReceiver(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.Login(OutcomeSuccess)
		m.Refresh(OutcomeSuccess)
		m.Logout(false)
		m.PermissionCheck(true)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
