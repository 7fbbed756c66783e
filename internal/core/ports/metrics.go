package ports

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordLoginAttempt records one pass through the reconciler that
	// attempted a login. Outcome is a stable string: "success", "blocked",
	// "conflict", "creation_disabled", or "error".
	RecordLoginAttempt(outcome string)

	// RecordAccountProvisioned records the creation of a brand-new local
	// account.
	RecordAccountProvisioned()

	// RecordRoleSync records role store writes made by one synchronization
	// run.
	RecordRoleSync(granted, revoked int)

	// RecordSessionValidation records a session token validation result.
	RecordSessionValidation(valid bool)

	// RecordCacheBypass records a forced reload issued by the cache-bypass
	// guard.
	RecordCacheBypass()
}
