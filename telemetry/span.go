package telemetry

import (
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pendingSpanOpCap bounds the operations a single unbound handle will queue.
// A handle retained after initialization failed is never bound, so without a
// cap an enthusiastic caller could grow it forever.
const pendingSpanOpCap = 128

// SpanHandle is the span-shaped object application code holds. It is usable
// at any time, including before the backend exists: a handle is either bound
// (forwarding to a live span), pending (queueing operations for replay once
// the real span is created) or a permanent no-op. None of its methods ever
// return an error or panic; calls after End are accepted and discarded.
type SpanHandle interface {
	// SetAttribute sets a span attribute, converting the value to the
	// closest attribute type.
	SetAttribute(key string, value interface{})

	// SetStatus sets the span status code and description.
	SetStatus(code codes.Code, description string)

	// RecordError records err as a span exception event. Nil is ignored.
	RecordError(err error)

	// End completes the span. Safe to call more than once.
	End()
}

// SpanOption configures span creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// WithSpanKind sets the span kind (server, client, producer, consumer).
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) { c.kind = kind }
}

// WithSpanAttributes attaches initial attributes to the span.
func WithSpanAttributes(attrs map[string]string) SpanOption {
	return func(c *spanConfig) {
		for k, v := range attrs {
			c.attrs = append(c.attrs, attribute.String(k, v))
		}
	}
}

func (c *spanConfig) startOptions() []trace.SpanStartOption {
	opts := []trace.SpanStartOption{trace.WithSpanKind(c.kind)}
	if len(c.attrs) > 0 {
		opts = append(opts, trace.WithAttributes(c.attrs...))
	}
	return opts
}

// boundSpan forwards every call straight to a live backend span.
type boundSpan struct {
	span trace.Span
}

var _ SpanHandle = (*boundSpan)(nil)

func (s *boundSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *boundSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *boundSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func (s *boundSpan) End() {
	s.span.End()
}

// pendingSpan queues operations issued before the real span exists and
// replays them, in issue order, when bind delivers the live span. The
// transition happens exactly once; after it every call passes through.
type pendingSpan struct {
	mu    sync.Mutex
	span  trace.Span
	ops   []func(trace.Span)
	ended bool
}

var _ SpanHandle = (*pendingSpan)(nil)

func newPendingSpan() *pendingSpan {
	return &pendingSpan{}
}

// bind attaches the live span and replays all queued operations in order.
func (s *pendingSpan) bind(span trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.span = span
	for _, op := range s.ops {
		op(span)
	}
	s.ops = nil
}

func (s *pendingSpan) apply(op func(trace.Span)) {
	s.mu.Lock()
	if s.span != nil {
		span := s.span
		s.mu.Unlock()
		op(span)
		return
	}
	if len(s.ops) < pendingSpanOpCap {
		s.ops = append(s.ops, op)
	}
	s.mu.Unlock()
}

func (s *pendingSpan) SetAttribute(key string, value interface{}) {
	s.apply(func(span trace.Span) {
		span.SetAttributes(toAttribute(key, value))
	})
}

func (s *pendingSpan) SetStatus(code codes.Code, description string) {
	s.apply(func(span trace.Span) {
		span.SetStatus(code, description)
	})
}

func (s *pendingSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.apply(func(span trace.Span) {
		span.RecordError(err)
	})
}

// End records the wall-clock end time immediately so that a replayed span
// reports its true duration, not the moment the buffer drained.
func (s *pendingSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	endTime := time.Now()
	s.apply(func(span trace.Span) {
		span.End(trace.WithTimestamp(endTime))
	})
}

// noopSpan is the permanent no-op handle returned when the core is disabled,
// failed, or out of buffer space.
type noopSpan struct{}

var _ SpanHandle = noopSpan{}

func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) SetStatus(codes.Code, string)     {}
func (noopSpan) RecordError(error)                {}
func (noopSpan) End()                             {}

// toAttribute converts an arbitrary value to the closest attribute type,
// formatting anything unrecognized.
func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
