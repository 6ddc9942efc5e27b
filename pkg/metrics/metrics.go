package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for borrowfacts operations
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	factCount         *prometheus.GaugeVec
	edgesRemoved      prometheus.Counter
	collapsesTotal    prometheus.Counter
	edgeRatio         prometheus.Histogram
	registry          *prometheus.Registry
}

var _ Collector = (*MetricsCollector)(nil)

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borrowfacts_operations_total",
			Help: "Total number of borrowfacts operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "borrowfacts_operation_duration_seconds",
			Help:    "Duration of borrowfacts operations by type and stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borrowfacts_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	factCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "borrowfacts_facts",
			Help: "Tuple count per relation after the most recent pass",
		},
		[]string{"relation"},
	)

	edgesRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrowfacts_cfg_edges_removed_total",
		Help: "Total number of CFG edges removed by simplification",
	})

	collapsesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrowfacts_collapses_total",
		Help: "Total number of CFG edges collapsed into a neighbouring point",
	})

	edgeRatio := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "borrowfacts_cfg_edge_ratio",
		Help:    "Remaining fraction of CFG edges after simplification",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(factCount)
	registry.MustRegister(edgesRemoved)
	registry.MustRegister(collapsesTotal)
	registry.MustRegister(edgeRatio)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		factCount:         factCount,
		edgesRemoved:      edgesRemoved,
		collapsesTotal:    collapsesTotal,
		edgeRatio:         edgeRatio,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordStage records the duration of a specific stage within an operation
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetFactCount sets the current tuple count for a relation
func (m *MetricsCollector) SetFactCount(ctx context.Context, relation string, count int64) {
	m.factCount.WithLabelValues(relation).Set(float64(count))
}

// RecordSimplification records edges removed and collapses for one pass.
// A graph with no edges contributes no ratio sample.
func (m *MetricsCollector) RecordSimplification(ctx context.Context, edgesBefore, edgesAfter, collapses int) {
	if removed := edgesBefore - edgesAfter; removed > 0 {
		m.edgesRemoved.Add(float64(removed))
	}
	m.collapsesTotal.Add(float64(collapses))
	if edgesBefore > 0 {
		m.edgeRatio.Observe(float64(edgesAfter) / float64(edgesBefore))
	}
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics in the text exposition format,
// for node_exporter's textfile collector. The write is atomic.
func (m *MetricsCollector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
