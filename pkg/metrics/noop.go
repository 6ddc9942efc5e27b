package metrics

import "context"

// NoopCollector discards everything. It is the collector a pipeline uses
// while metrics are disabled.
type NoopCollector struct{}

var _ Collector = (*NoopCollector)(nil)

// NewNoopCollector creates a no-op collector
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
}

func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorType string) {
}

func (n *NoopCollector) SetFactCount(ctx context.Context, relation string, count int64) {
}

func (n *NoopCollector) RecordSimplification(ctx context.Context, edgesBefore, edgesAfter, collapses int) {
}
