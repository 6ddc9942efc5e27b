package borrowfacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dan-solli/borrowfacts/pkg/tabdelim"
	"github.com/dan-solli/borrowfacts/pkg/trace"
)

// writeFactsDir creates a facts directory under parent with every relation
// file present. Relations missing from files are written empty.
func writeFactsDir(t *testing.T, parent, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	for _, rel := range tabdelim.Relations() {
		path := filepath.Join(dir, rel+tabdelim.Extension)
		if err := os.WriteFile(path, []byte(files[rel]), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

// straightLine is a four-point chain with no facts, which collapses to a
// single edge.
func straightLine() map[string]string {
	return map[string]string{
		"cfg_edge":         "a\tb\nb\tc\nc\td\n",
		"universal_region": "'static\n",
	}
}

func setupTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// captureHandler is a slog.Handler that captures log records for test assertions
type captureHandler struct {
	records []slog.Record
	mu      sync.Mutex
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		records: make([]slog.Record, 0),
	}
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *captureHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *captureHandler) getRecords() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]slog.Record, len(h.records))
	copy(result, h.records)
	return result
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}

// find returns the attributes of the first record with msg, or nil.
func (h *captureHandler) find(level slog.Level, msg string) map[string]any {
	for _, rec := range h.getRecords() {
		if rec.Level != level || rec.Message != msg {
			continue
		}
		attrs := make(map[string]any)
		rec.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.Any()
			return true
		})
		return attrs
	}
	return nil
}

// recordingCollector is a metrics.Collector that remembers every call.
type recordingCollector struct {
	mu              sync.Mutex
	operations      map[string]int
	stages          []string
	errors          map[string]int
	factCounts      map[string]int64
	simplifications int
	collapses       int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		operations: make(map[string]int),
		errors:     make(map[string]int),
		factCounts: make(map[string]int64),
	}
}

func (c *recordingCollector) RecordOperation(_ context.Context, operation, status string, _ int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations[operation+"/"+status]++
}

func (c *recordingCollector) RecordStage(_ context.Context, _ string, stage string, _ int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, stage)
}

func (c *recordingCollector) RecordError(_ context.Context, _ string, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[errorType]++
}

func (c *recordingCollector) SetFactCount(_ context.Context, relation string, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factCounts[relation] = count
}

func (c *recordingCollector) RecordSimplification(_ context.Context, _, _, collapses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simplifications++
	c.collapses += collapses
}

// memoryExporter is a trace.Exporter that keeps records in memory.
type memoryExporter struct {
	mu      sync.Mutex
	records []*trace.TraceRecord
	closed  bool
}

func (e *memoryExporter) Export(_ context.Context, record *trace.TraceRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return nil
}

func (e *memoryExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
