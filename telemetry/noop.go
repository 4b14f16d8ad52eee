package telemetry

import (
	"context"
	"net/http"

	"github.com/itsneelabh/beacon/config"
)

// noop is the disabled variant of the emission core: the same interface,
// zero observable side effects. No instrument is created, no exporter is
// loaded, no export is attempted. Selected once at construction — callers
// never branch per call.
type noop struct {
	cfg config.Configuration
}

var _ Telemetry = noop{}

// NewNoop returns the disabled telemetry variant carrying cfg as its
// inspectable configuration snapshot.
func NewNoop(cfg config.Configuration) Telemetry {
	return noop{cfg: cfg}
}

func (n noop) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanHandle) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, noopSpan{}
}

func (n noop) StartActiveSpan(ctx context.Context, name string, fn func(context.Context, SpanHandle) error, opts ...SpanOption) error {
	spanCtx, handle := n.StartSpan(ctx, name, opts...)
	defer handle.End()
	return fn(spanCtx, handle)
}

func (noop) RecordMetric(string, float64, map[string]string)   {}
func (noop) IncrementCounter(string, int64, map[string]string) {}
func (noop) EmitLogRecord(string, map[string]string)           {}
func (noop) Flush(context.Context)                             {}
func (noop) Shutdown(context.Context)                          {}

func (noop) HTTPMiddleware() func(http.Handler) http.Handler {
	return identityMiddleware
}

func (noop) HTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: base}
}

func (n noop) Config() config.Configuration {
	return n.cfg
}

func (n noop) Health() Health {
	return Health{Enabled: false, State: "disabled"}
}
