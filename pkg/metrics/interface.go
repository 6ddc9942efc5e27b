package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed MetricsCollector and the
// no-op collector used when metrics are disabled.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)

	// SetFactCount publishes the tuple count of one relation after the most
	// recent pass.
	SetFactCount(ctx context.Context, relation string, count int64)

	// RecordSimplification records the effect of one SimplifyCFG pass.
	RecordSimplification(ctx context.Context, edgesBefore, edgesAfter, collapses int)
}
