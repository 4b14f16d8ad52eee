package telemetry

import (
	"context"
	"net/http"

	"github.com/itsneelabh/beacon/config"
)

// Telemetry is the only contract application call sites need. Every method
// is safe to call at any time, including before backend initialization
// completes, and never blocks, panics or surfaces an error from the
// telemetry machinery. The disabled variant returned by New for a disabled
// configuration implements the same interface with zero side effects.
type Telemetry interface {
	// StartSpan begins a span. The returned handle is usable immediately
	// regardless of readiness; the returned context carries the span once
	// the backend is live.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanHandle)

	// StartActiveSpan runs fn with a span handle and guarantees the
	// handle is ended exactly once on every exit path, panics included.
	// The returned error is fn's own, never the telemetry machinery's.
	StartActiveSpan(ctx context.Context, name string, fn func(context.Context, SpanHandle) error, opts ...SpanOption) error

	// RecordMetric records value into the histogram named name.
	RecordMetric(name string, value float64, labels map[string]string)

	// IncrementCounter adds value to the counter named name.
	IncrementCounter(name string, value int64, labels map[string]string)

	// EmitLogRecord emits a structured log record with the given body and
	// attributes.
	EmitLogRecord(body string, attrs map[string]string)

	// Flush pushes pending batched data to the backend. It blocks until
	// done or ctx expires, and is a no-op if the backend was never
	// created.
	Flush(ctx context.Context)

	// Shutdown flushes and releases backend resources. Failures are
	// reported through the diagnostic log, never returned.
	Shutdown(ctx context.Context)

	// HTTPMiddleware returns tracing middleware for inbound requests. It
	// is an identity middleware unless auto-instrumentation was resolved
	// on.
	HTTPMiddleware() func(http.Handler) http.Handler

	// HTTPClient returns a client that propagates trace context to
	// downstream services, or a plain client when auto-instrumentation is
	// off. A nil base uses http.DefaultTransport.
	HTTPClient(base http.RoundTripper) *http.Client

	// Config returns the immutable configuration snapshot.
	Config() config.Configuration

	// Health reports the core's own condition.
	Health() Health
}
