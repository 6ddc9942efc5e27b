package borrowfacts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTrace(t *testing.T) {
	trace := newTrace()
	assert.NotNil(t, trace)
	assert.NotNil(t, trace.Spans)
	assert.Equal(t, 0, len(trace.Spans))
	assert.Equal(t, int64(0), trace.TotalDurationMs)
}

func TestTraceAddSpan(t *testing.T) {
	trace := newTrace()

	trace.addSpan(Span{Name: SpanLoad, DurationMs: 100, OK: true, Counters: map[string]int64{"tuples": 5}})
	assert.Equal(t, 1, len(trace.Spans))
	assert.Equal(t, int64(100), trace.TotalDurationMs)

	trace.addSpan(Span{Name: SpanSimplify, DurationMs: 50, OK: false, Error: "test error"})
	assert.Equal(t, 2, len(trace.Spans))
	assert.Equal(t, int64(150), trace.TotalDurationMs)
	assert.Equal(t, "test error", trace.Spans[1].Error)
}

func TestSpanTimerDisabled(t *testing.T) {
	trace := newTrace()
	timer := newSpanTimer(SpanLoad, trace, false)

	assert.False(t, timer.enabled)

	timer.finish(true, nil, map[string]int64{"count": 1})
	assert.Equal(t, 0, len(trace.Spans))
}

func TestSpanTimerEnabled(t *testing.T) {
	trace := newTrace()
	timer := newSpanTimer(SpanPersist, trace, true)
	time.Sleep(2 * time.Millisecond)
	timer.finish(false, &StageError{Stage: SpanPersist, Err: errors.New("locked")}, nil)

	assert.Len(t, trace.Spans, 1)
	span := trace.Spans[0]
	assert.Equal(t, SpanPersist, span.Name)
	assert.False(t, span.OK)
	assert.Equal(t, "persist: locked", span.Error)
	assert.GreaterOrEqual(t, span.DurationMs, int64(1))
}

func TestTraceRecord(t *testing.T) {
	trace := newTrace()
	trace.addSpan(Span{Name: SpanLoad, DurationMs: 3, OK: true})
	trace.addSpan(Span{Name: SpanPersist, DurationMs: 4, OK: false, Error: "persist: /tmp/x.db locked", errType: ErrTypeDatabase})

	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rec := trace.record("op-1", "process", start, "error", ErrTypeDatabase, map[string]interface{}{"name": "main"})

	assert.Equal(t, "op-1", rec.OperationID)
	assert.Equal(t, start, rec.Timestamp)
	assert.Equal(t, int64(7), rec.DurationMs)
	assert.Equal(t, ErrTypeDatabase, rec.ErrorType)
	assert.Len(t, rec.Spans, 2)
	assert.Empty(t, rec.Spans[0].ErrorType)
	assert.Equal(t, ErrTypeDatabase, rec.Spans[1].ErrorType)
	assert.Equal(t, "main", rec.IDs["name"])
}
