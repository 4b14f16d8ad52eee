package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itsneelabh/beacon/config"
	"github.com/itsneelabh/beacon/exporter"
)

func testConfig() config.Configuration {
	return config.Configuration{
		Enabled:      true,
		ExporterKind: config.ExporterConsole,
		Endpoint:     config.DefaultEndpoint,
		ServiceName:  "beacon-test",
		SessionID:    "test-session",
		LogLevel:     "error",
		LogFormat:    "text",
	}
}

// gatedFactory holds initialization open until gate closes, so tests can
// issue operations while the service is still Initializing. Spans land in
// the supplied exporter; metric and log output is discarded.
func gatedFactory(spans sdktrace.SpanExporter, gate <-chan struct{}, fail error) Factory {
	return func(ctx context.Context, cfg config.Configuration) (*exporter.Set, error) {
		if gate != nil {
			<-gate
		}
		if fail != nil {
			return nil, fail
		}
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		logExp, err := stdoutlog.New(stdoutlog.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		return &exporter.Set{Span: spans, Metric: metricExp, Log: logExp}, nil
	}
}

func TestServiceBuffersAndReplaysInOrder(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	gate := make(chan struct{})
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, gate, nil)))
	defer svc.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		_, handle := svc.StartSpan(context.Background(), fmt.Sprintf("op-%d", i))
		handle.SetAttribute("index", i)
		handle.End()
	}
	assert.Equal(t, StateInitializing, svc.currentState())
	assert.Equal(t, 5, svc.Health().Buffered)

	close(gate)
	<-svc.initDone
	assert.Equal(t, StateReady, svc.currentState())

	svc.Flush(context.Background())
	got := spans.GetSpans()
	require.Len(t, got, 5)
	for i, span := range got {
		assert.Equal(t, fmt.Sprintf("op-%d", i), span.Name, "replay preserves issue order")
	}
}

func TestServiceReplayedSpanCarriesQueuedState(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	gate := make(chan struct{})
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, gate, nil)))
	defer svc.Shutdown(context.Background())

	opErr := errors.New("downstream unavailable")
	_, handle := svc.StartSpan(context.Background(), "queued")
	handle.SetAttribute("request.id", "r-42")
	handle.RecordError(opErr)
	handle.SetStatus(codes.Error, "failed downstream")
	started := time.Now()
	handle.End()

	close(gate)
	<-svc.initDone
	svc.Flush(context.Background())

	got := spans.GetSpans()
	require.Len(t, got, 1)
	span := got[0]
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Equal(t, "failed downstream", span.Status.Description)
	require.Len(t, span.Events, 1, "recorded error becomes an exception event")
	assert.True(t, span.EndTime.Before(started.Add(time.Second)),
		"end timestamp reflects when End was called, not when the buffer drained")

	var foundAttr bool
	for _, attr := range span.Attributes {
		if string(attr.Key) == "request.id" {
			foundAttr = true
			assert.Equal(t, "r-42", attr.Value.AsString())
		}
	}
	assert.True(t, foundAttr)
}

func TestServiceInitFailureDiscardsBuffer(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	gate := make(chan struct{})
	initErr := errors.New("collector unreachable")
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, gate, initErr)))

	_, handle := svc.StartSpan(context.Background(), "doomed")
	handle.SetAttribute("key", "value")
	handle.End()
	svc.IncrementCounter("requests", 1, nil)
	svc.EmitLogRecord("hello", nil)

	close(gate)
	<-svc.initDone
	assert.Equal(t, StateFailed, svc.currentState())
	assert.Empty(t, spans.GetSpans(), "discarded operations never execute")

	health := svc.Health()
	assert.Equal(t, "failed", health.State)
	assert.Equal(t, "collector unreachable", health.LastError)
	assert.Zero(t, health.Emitted)
	assert.Zero(t, health.Buffered)

	// The failed core stays callable forever.
	_, handle = svc.StartSpan(context.Background(), "after-failure")
	assert.IsType(t, noopSpan{}, handle)
	handle.End()
	svc.RecordMetric("latency", 1.5, map[string]string{"route": "/"})
	svc.Flush(context.Background())
	svc.Shutdown(context.Background())
}

func TestServiceBufferCapacity(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	gate := make(chan struct{})
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, gate, nil)))
	defer svc.Shutdown(context.Background())

	const overflow = 5
	for i := 0; i < bufferCapacity+overflow; i++ {
		svc.IncrementCounter("requests", 1, nil)
	}
	assert.Equal(t, bufferCapacity, svc.Health().Buffered)
	assert.Equal(t, int64(overflow), svc.Health().Dropped)

	// A span past the cap degrades to a no-op handle instead of queueing.
	_, handle := svc.StartSpan(context.Background(), "overflow")
	assert.IsType(t, noopSpan{}, handle)

	close(gate)
	<-svc.initDone
	svc.Flush(context.Background())

	health := svc.Health()
	assert.Equal(t, int64(bufferCapacity), health.Emitted, "exactly the buffered operations replay")
	assert.Equal(t, int64(overflow+1), health.Dropped)
}

func TestServiceReadyPath(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, nil, nil)))
	defer svc.Shutdown(context.Background())
	<-svc.initDone
	require.Equal(t, StateReady, svc.currentState())

	ctx, handle := svc.StartSpan(context.Background(), "live")
	assert.IsType(t, &boundSpan{}, handle, "ready spans bind immediately")
	assert.NotEqual(t, context.Background(), ctx, "span context propagates")
	handle.End()

	svc.RecordMetric("latency_ms", 12.5, map[string]string{"route": "/api"})
	svc.IncrementCounter("requests", 1, map[string]string{"route": "/api"})
	svc.EmitLogRecord("request served", map[string]string{"route": "/api"})

	svc.Flush(context.Background())
	require.Len(t, spans.GetSpans(), 1)
	assert.Equal(t, int64(4), svc.Health().Emitted)
}

func TestStartActiveSpanEndsOnPanic(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, nil, nil)))
	defer svc.Shutdown(context.Background())
	<-svc.initDone

	assert.Panics(t, func() {
		_ = svc.StartActiveSpan(context.Background(), "explodes",
			func(context.Context, SpanHandle) error {
				panic("boom")
			})
	})

	svc.Flush(context.Background())
	require.Len(t, spans.GetSpans(), 1, "the span ends even when the callback panics")
}

func TestStartActiveSpanReturnsCallbackError(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, nil, nil)))
	defer svc.Shutdown(context.Background())
	<-svc.initDone

	want := errors.New("not found")
	err := svc.StartActiveSpan(context.Background(), "lookup",
		func(_ context.Context, handle SpanHandle) error {
			handle.SetStatus(codes.Error, "not found")
			return want
		})
	assert.ErrorIs(t, err, want)
}

func TestServiceShutdownIsTerminalAndIdempotent(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, nil, nil)))
	<-svc.initDone

	svc.Shutdown(context.Background())
	assert.Equal(t, StateStopped, svc.currentState())
	svc.Shutdown(context.Background())

	_, handle := svc.StartSpan(context.Background(), "after-stop")
	assert.IsType(t, noopSpan{}, handle)
	svc.RecordMetric("latency", 1, nil)
	svc.Flush(context.Background())
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	cfg := config.Configuration{Enabled: false, ServiceName: "beacon-test"}
	tel := New(cfg)

	health := tel.Health()
	assert.False(t, health.Enabled)
	assert.Equal(t, "disabled", health.State)
	assert.Equal(t, cfg.ServiceName, tel.Config().ServiceName)

	// Every operation is callable with zero effect.
	ctx, handle := tel.StartSpan(context.Background(), "ignored")
	assert.NotNil(t, ctx)
	handle.SetAttribute("k", "v")
	handle.End()

	var called bool
	err := tel.StartActiveSpan(context.Background(), "ignored",
		func(context.Context, SpanHandle) error {
			called = true
			return nil
		})
	assert.NoError(t, err)
	assert.True(t, called, "the callback still runs when telemetry is off")

	tel.RecordMetric("latency", 1, nil)
	tel.IncrementCounter("requests", 1, nil)
	tel.EmitLogRecord("ignored", nil)
	tel.Flush(context.Background())
	tel.Shutdown(context.Background())
}

func TestServiceFlushWhileInitializingWaits(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	gate := make(chan struct{})
	svc := NewService(testConfig(), WithFactory(gatedFactory(spans, gate, nil)))
	defer svc.Shutdown(context.Background())

	_, handle := svc.StartSpan(context.Background(), "early")
	handle.End()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	svc.Flush(context.Background())

	assert.Len(t, spans.GetSpans(), 1, "flush pushes data buffered before readiness")
}

func TestServiceFlushHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	svc := NewService(testConfig(), WithFactory(gatedFactory(tracetest.NewInMemoryExporter(), gate, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Flush(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush must give up when its context expires")
	}
}
