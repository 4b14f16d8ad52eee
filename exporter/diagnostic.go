package exporter

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/itsneelabh/beacon/config"
)

// Logger is the diagnostic side channel the wrapper reports through. The
// telemetry package's diagnostic logger satisfies it.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// DiagnosticSpanExporter decorates a span exporter with operator-facing
// visibility: one informational notice on the first-ever successful export,
// and a warning on every failed one. It never alters the exported payload or
// the result returned to its caller.
type DiagnosticSpanExporter struct {
	inner sdktrace.SpanExporter
	kind  config.ExporterKind
	log   Logger

	firstSuccess sync.Once
}

var _ sdktrace.SpanExporter = (*DiagnosticSpanExporter)(nil)

// NewDiagnosticSpanExporter wraps inner with diagnostic logging.
func NewDiagnosticSpanExporter(inner sdktrace.SpanExporter, kind config.ExporterKind, log Logger) *DiagnosticSpanExporter {
	return &DiagnosticSpanExporter{inner: inner, kind: kind, log: log}
}

// ExportSpans delegates to the inner exporter and inspects the result.
func (e *DiagnosticSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := e.inner.ExportSpans(ctx, spans)
	if err != nil {
		e.log.Warn("Span export failed", map[string]interface{}{
			"exporter":   string(e.kind),
			"span_count": len(spans),
			"error":      err.Error(),
		})
		return err
	}
	e.firstSuccess.Do(func() {
		e.log.Info("Span export succeeded", map[string]interface{}{
			"exporter":   string(e.kind),
			"span_count": len(spans),
		})
	})
	return nil
}

// Shutdown forwards to the inner exporter verbatim.
func (e *DiagnosticSpanExporter) Shutdown(ctx context.Context) error {
	return e.inner.Shutdown(ctx)
}
