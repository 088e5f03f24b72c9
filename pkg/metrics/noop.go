package metrics

import "time"

// NoopMetrics discards everything. Used when METRICS_ENABLED is off and in tests.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordEventIngested(provider, eventType string)       {}
func (n *NoopMetrics) RecordAttachmentWriteFailure(provider string)         {}
func (n *NoopMetrics) RecordStatusDropped(reason string)                    {}
func (n *NoopMetrics) RecordCursorReset(provider string)                    {}
func (n *NoopMetrics) RecordSyncFailure(provider, stage string)             {}
func (n *NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
