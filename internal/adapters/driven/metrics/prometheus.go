package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	loginAttemptsTotal      *prometheus.CounterVec
	accountsProvisioned     prometheus.Counter
	roleSyncOpsTotal        *prometheus.CounterVec
	sessionValidationsTotal *prometheus.CounterVec
	cacheBypassTotal        prometheus.Counter
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	loginAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webserver_auth_login_attempts_total",
		Help: "Total login attempts made by the session reconciler",
	}, []string{"outcome"})

	accountsProvisioned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webserver_auth_accounts_provisioned_total",
		Help: "Total local accounts provisioned for external identities",
	})

	roleSyncOpsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webserver_auth_role_sync_ops_total",
		Help: "Total role store writes made by role synchronization",
	}, []string{"op"})

	sessionValidationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webserver_auth_session_validations_total",
		Help: "Total session token validation attempts",
	}, []string{"result"})

	cacheBypassTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webserver_auth_cache_bypass_total",
		Help: "Total forced reloads issued by the cache-bypass guard",
	})

	reg.MustRegister(
		loginAttemptsTotal,
		accountsProvisioned,
		roleSyncOpsTotal,
		sessionValidationsTotal,
		cacheBypassTotal,
	)

	return &PrometheusMetricsRecorder{
		loginAttemptsTotal:      loginAttemptsTotal,
		accountsProvisioned:     accountsProvisioned,
		roleSyncOpsTotal:        roleSyncOpsTotal,
		sessionValidationsTotal: sessionValidationsTotal,
		cacheBypassTotal:        cacheBypassTotal,
	}
}

// RecordLoginAttempt records one reconciler pass that attempted a login.
func (p *PrometheusMetricsRecorder) RecordLoginAttempt(outcome string) {
	p.loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordAccountProvisioned records the creation of a new local account.
func (p *PrometheusMetricsRecorder) RecordAccountProvisioned() {
	p.accountsProvisioned.Inc()
}

// RecordRoleSync records role store writes made by one synchronization run.
func (p *PrometheusMetricsRecorder) RecordRoleSync(granted, revoked int) {
	if granted > 0 {
		p.roleSyncOpsTotal.WithLabelValues("grant").Add(float64(granted))
	}
	if revoked > 0 {
		p.roleSyncOpsTotal.WithLabelValues("revoke").Add(float64(revoked))
	}
}

// RecordSessionValidation records a session validation result.
func (p *PrometheusMetricsRecorder) RecordSessionValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	p.sessionValidationsTotal.WithLabelValues(result).Inc()
}

// RecordCacheBypass records a forced reload issued by the cache-bypass guard.
func (p *PrometheusMetricsRecorder) RecordCacheBypass() {
	p.cacheBypassTotal.Inc()
}

// Ensure PrometheusMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
