package borrowfacts

import (
	"time"

	"github.com/dan-solli/borrowfacts/pkg/trace"
)

// Stage names used in spans, metrics and trace records.
const (
	SpanLoad     = "load"
	SpanSimplify = "simplify"
	SpanPersist  = "persist"
	SpanExport   = "export"
)

// OperationTrace captures timing data for one Process call.
type OperationTrace struct {
	// Spans contains timing data for each stage of the operation
	Spans []Span `json:"spans"`

	// TotalDurationMs is the sum of the span durations in milliseconds
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// Span represents a single timed stage within an operation.
// Stage names are stable:
//   - "load": hashing and parsing the relation files
//   - "simplify": the CFG simplification pass
//   - "persist": saving to the fact store
//   - "export": writing relation files and the Mangle program
type Span struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	OK         bool   `json:"ok"`

	// Error contains error message if OK is false (optional)
	Error string `json:"error,omitempty"`

	// Example keys: "tuples", "edgesBefore", "collapses"
	Counters map[string]int64 `json:"counters,omitempty"`

	errType string
}

func newTrace() *OperationTrace {
	return &OperationTrace{
		Spans: make([]Span, 0),
	}
}

func (t *OperationTrace) addSpan(span Span) {
	t.Spans = append(t.Spans, span)
	t.TotalDurationMs += span.DurationMs
}

// record converts the trace to an exportable record. Span errors are
// reduced to their classification.
func (t *OperationTrace) record(opID, operation string, start time.Time, status, errType string, ids map[string]interface{}) *trace.TraceRecord {
	spans := make([]trace.SpanRecord, len(t.Spans))
	for i, s := range t.Spans {
		spans[i] = trace.SpanRecord{
			Name:       s.Name,
			DurationMs: s.DurationMs,
			OK:         s.OK,
			Counters:   s.Counters,
		}
		if !s.OK {
			spans[i].ErrorType = s.errType
		}
	}
	return &trace.TraceRecord{
		Timestamp:   start,
		OperationID: opID,
		Operation:   operation,
		DurationMs:  t.TotalDurationMs,
		Status:      status,
		Spans:       spans,
		ErrorType:   errType,
		IDs:         ids,
	}
}

// spanTimer is a helper for measuring span duration
type spanTimer struct {
	name    string
	start   time.Time
	trace   *OperationTrace
	enabled bool
}

func newSpanTimer(name string, trace *OperationTrace, enabled bool) *spanTimer {
	if !enabled || trace == nil {
		return &spanTimer{enabled: false}
	}
	return &spanTimer{
		name:    name,
		start:   time.Now(),
		trace:   trace,
		enabled: true,
	}
}

// finish completes the span and records it to the trace
func (st *spanTimer) finish(ok bool, err error, counters map[string]int64) {
	if !st.enabled {
		return
	}

	span := Span{
		Name:       st.name,
		DurationMs: time.Since(st.start).Milliseconds(),
		OK:         ok,
		Counters:   counters,
	}
	if err != nil {
		span.Error = err.Error()
		span.errType = ClassifyError(err)
	}
	st.trace.addSpan(span)
}
