package metrics

import (
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

// NoopMetricsRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordLoginAttempt is a no-op.
func (n *NoopMetricsRecorder) RecordLoginAttempt(outcome string) {}

// RecordAccountProvisioned is a no-op.
func (n *NoopMetricsRecorder) RecordAccountProvisioned() {}

// RecordRoleSync is a no-op.
func (n *NoopMetricsRecorder) RecordRoleSync(granted, revoked int) {}

// RecordSessionValidation is a no-op.
func (n *NoopMetricsRecorder) RecordSessionValidation(valid bool) {}

// RecordCacheBypass is a no-op.
func (n *NoopMetricsRecorder) RecordCacheBypass() {}

// Ensure NoopMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*NoopMetricsRecorder)(nil)
