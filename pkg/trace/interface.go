// Package trace exports per-operation timing records for the borrowfacts
// pipeline. Records carry stage names, durations, counters and identifiers
// only; atom tokens and fact contents never leave the process.
package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting operation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *TraceRecord) error

	// Close flushes any buffered records and releases resources.
	Close() error
}

// TraceRecord is one finished pipeline operation ready for export.
type TraceRecord struct {
	// Timestamp is the operation start time
	Timestamp time.Time `json:"timestamp"`

	// OperationID uniquely identifies this operation (for correlation)
	OperationID string `json:"operationId"`

	// Operation is the operation type: "process", "stats"
	Operation string `json:"operation"`

	// DurationMs is the total operation duration in milliseconds
	DurationMs int64 `json:"durationMs"`

	// Status is "success" or "error"
	Status string `json:"status"`

	// Spans contains per-stage timing and status
	Spans []SpanRecord `json:"spans"`

	// ErrorType classifies the error (if Status == "error")
	// Values: parse, io, database, export, validation, canceled, unknown
	ErrorType string `json:"errorType,omitempty"`

	// IDs contains operation-specific identifiers such as the fact set ID
	IDs map[string]interface{} `json:"ids,omitempty"`
}

// SpanRecord represents a single stage within an operation.
type SpanRecord struct {
	// Name is the stage name (load, simplify, persist, export)
	Name string `json:"name"`

	DurationMs int64 `json:"durationMs"`
	OK         bool  `json:"ok"`

	// ErrorType classifies the error (if OK == false)
	ErrorType string `json:"errorType,omitempty"`

	// Counters provides stage-specific numbers (e.g. edgesBefore, collapses)
	Counters map[string]int64 `json:"counters,omitempty"`
}

// exporterConfig holds FileExporter settings. Options are accepted in every
// build so callers don't need build tags of their own.
type exporterConfig struct {
	maxSizeBytes    int64
	maxRotatedFiles int
}

func defaultExporterConfig() exporterConfig {
	return exporterConfig{
		maxSizeBytes:    10 * 1024 * 1024, // 10MB
		maxRotatedFiles: 5,
	}
}

// FileExporterOption configures a FileExporter.
type FileExporterOption func(*exporterConfig)

// WithMaxSize sets the maximum file size before rotation (default: 10MB).
func WithMaxSize(bytes int64) FileExporterOption {
	return func(c *exporterConfig) {
		if bytes > 0 {
			c.maxSizeBytes = bytes
		}
	}
}

// WithMaxRotatedFiles sets how many rotated files to keep (default: 5).
func WithMaxRotatedFiles(count int) FileExporterOption {
	return func(c *exporterConfig) {
		if count > 0 {
			c.maxRotatedFiles = count
		}
	}
}

// NoopExporter drops every record.
type NoopExporter struct{}

var _ Exporter = (*NoopExporter)(nil)

func (n *NoopExporter) Export(ctx context.Context, record *TraceRecord) error {
	return nil
}

func (n *NoopExporter) Close() error {
	return nil
}
