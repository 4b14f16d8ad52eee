package exporter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itsneelabh/beacon/config"
)

type fakeSpanExporter struct {
	err       error
	exports   int
	shutdowns int
	lastBatch int
}

func (f *fakeSpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	f.exports++
	f.lastBatch = len(spans)
	return f.err
}

func (f *fakeSpanExporter) Shutdown(context.Context) error {
	f.shutdowns++
	return f.err
}

type recordedLog struct {
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	infos []recordedLog
	warns []recordedLog
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{}) {
	l.infos = append(l.infos, recordedLog{msg, fields})
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.warns = append(l.warns, recordedLog{msg, fields})
}

func spanBatch(names ...string) []sdktrace.ReadOnlySpan {
	stubs := make(tracetest.SpanStubs, 0, len(names))
	for _, name := range names {
		stubs = append(stubs, tracetest.SpanStub{Name: name})
	}
	return stubs.Snapshots()
}

func TestDiagnosticExporterFirstSuccessLoggedOnce(t *testing.T) {
	inner := &fakeSpanExporter{}
	logger := &recordingLogger{}
	exp := NewDiagnosticSpanExporter(inner, config.ExporterHTTP, logger)

	for i := 0; i < 3; i++ {
		require.NoError(t, exp.ExportSpans(context.Background(), spanBatch("a", "b")))
	}

	require.Len(t, logger.infos, 1, "success notice fires exactly once")
	assert.Equal(t, "Span export succeeded", logger.infos[0].msg)
	assert.Equal(t, "http", logger.infos[0].fields["exporter"])
	assert.Equal(t, 2, logger.infos[0].fields["span_count"])
	assert.Empty(t, logger.warns)
	assert.Equal(t, 3, inner.exports)
}

func TestDiagnosticExporterWarnsOnEveryFailure(t *testing.T) {
	exportErr := errors.New("connection refused")
	inner := &fakeSpanExporter{err: exportErr}
	logger := &recordingLogger{}
	exp := NewDiagnosticSpanExporter(inner, config.ExporterGRPC, logger)

	for i := 0; i < 3; i++ {
		err := exp.ExportSpans(context.Background(), spanBatch("a"))
		assert.ErrorIs(t, err, exportErr, "inner result passes through unchanged")
	}

	require.Len(t, logger.warns, 3, "every failed batch gets its own warning")
	assert.Equal(t, "Span export failed", logger.warns[0].msg)
	assert.Equal(t, "grpc", logger.warns[0].fields["exporter"])
	assert.Equal(t, "connection refused", logger.warns[0].fields["error"])
	assert.Empty(t, logger.infos)
}

func TestDiagnosticExporterRecoversAfterFailure(t *testing.T) {
	inner := &fakeSpanExporter{err: errors.New("boom")}
	logger := &recordingLogger{}
	exp := NewDiagnosticSpanExporter(inner, config.ExporterHTTP, logger)

	assert.Error(t, exp.ExportSpans(context.Background(), spanBatch("a")))
	inner.err = nil
	assert.NoError(t, exp.ExportSpans(context.Background(), spanBatch("b")))

	assert.Len(t, logger.warns, 1)
	assert.Len(t, logger.infos, 1, "first success still announced after earlier failures")
}

func TestDiagnosticExporterShutdownForwards(t *testing.T) {
	inner := &fakeSpanExporter{}
	exp := NewDiagnosticSpanExporter(inner, config.ExporterHTTP, &recordingLogger{})

	require.NoError(t, exp.Shutdown(context.Background()))
	assert.Equal(t, 1, inner.shutdowns)

	inner.err = errors.New("already closed")
	assert.Error(t, exp.Shutdown(context.Background()))
}
