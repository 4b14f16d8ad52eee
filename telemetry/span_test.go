package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// syncTracer exports every span synchronously on End.
func syncTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test"), exp
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestPendingSpanReplaysQueuedOpsOnBind(t *testing.T) {
	tracer, exp := syncTracer(t)

	pending := newPendingSpan()
	pending.SetAttribute("queued", "yes")
	pending.SetStatus(codes.Error, "early failure")
	pending.RecordError(errors.New("broken"))
	pending.End()

	require.Empty(t, exp.GetSpans(), "nothing exports before bind")

	_, span := tracer.Start(context.Background(), "replayed")
	pending.bind(span)

	got := exp.GetSpans()
	require.Len(t, got, 1)
	value, ok := attrValue(got[0].Attributes, "queued")
	require.True(t, ok)
	assert.Equal(t, "yes", value.AsString())
	assert.Equal(t, codes.Error, got[0].Status.Code)
	require.Len(t, got[0].Events, 1)
}

func TestPendingSpanPassesThroughAfterBind(t *testing.T) {
	tracer, exp := syncTracer(t)

	pending := newPendingSpan()
	_, span := tracer.Start(context.Background(), "live")
	pending.bind(span)

	pending.SetAttribute("late", int64(7))
	pending.End()

	got := exp.GetSpans()
	require.Len(t, got, 1)
	value, ok := attrValue(got[0].Attributes, "late")
	require.True(t, ok)
	assert.Equal(t, int64(7), value.AsInt64())
}

func TestPendingSpanEndOnce(t *testing.T) {
	tracer, exp := syncTracer(t)

	pending := newPendingSpan()
	pending.End()
	pending.End()

	_, span := tracer.Start(context.Background(), "once")
	pending.bind(span)
	pending.End()

	assert.Len(t, exp.GetSpans(), 1, "repeated End never double-exports")
}

func TestPendingSpanEndTimestampIsCallTime(t *testing.T) {
	tracer, exp := syncTracer(t)

	pending := newPendingSpan()
	before := time.Now()
	pending.End()
	after := time.Now()

	time.Sleep(20 * time.Millisecond)
	_, span := tracer.Start(context.Background(), "delayed-bind")
	pending.bind(span)

	got := exp.GetSpans()
	require.Len(t, got, 1)
	end := got[0].EndTime
	assert.False(t, end.Before(before))
	assert.False(t, end.After(after), "replay must not stamp the drain time")
}

func TestPendingSpanOpQueueIsBounded(t *testing.T) {
	pending := newPendingSpan()
	for i := 0; i < pendingSpanOpCap*2; i++ {
		pending.SetAttribute("k", i)
	}
	pending.mu.Lock()
	defer pending.mu.Unlock()
	assert.Len(t, pending.ops, pendingSpanOpCap)
}

func TestSpanHandlesIgnoreNilError(t *testing.T) {
	tracer, exp := syncTracer(t)

	_, span := tracer.Start(context.Background(), "bound")
	bound := &boundSpan{span: span}
	bound.RecordError(nil)
	bound.End()

	pending := newPendingSpan()
	pending.RecordError(nil)
	assert.Empty(t, pending.ops)

	got := exp.GetSpans()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Events)
}

func TestToAttribute(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  attribute.KeyValue
	}{
		{"string", "v", attribute.String("k", "v")},
		{"int", 42, attribute.Int("k", 42)},
		{"int64", int64(42), attribute.Int64("k", 42)},
		{"float64", 1.5, attribute.Float64("k", 1.5)},
		{"bool", true, attribute.Bool("k", true)},
		{"fallback", []string{"a", "b"}, attribute.String("k", "[a b]")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toAttribute("k", tt.value))
		})
	}
}

func TestNoopSpanIsInert(t *testing.T) {
	var handle SpanHandle = noopSpan{}
	handle.SetAttribute("k", "v")
	handle.SetStatus(codes.Error, "ignored")
	handle.RecordError(errors.New("ignored"))
	handle.End()
	handle.End()
}
