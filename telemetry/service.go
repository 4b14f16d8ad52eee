package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/beacon/config"
	"github.com/itsneelabh/beacon/exporter"
)

// instrumentationName identifies this library on every tracer, meter and
// logger it creates.
const instrumentationName = "github.com/itsneelabh/beacon"

const (
	// bufferCapacity bounds the operations queued before the backend is
	// ready. Past it, pre-ready calls are dropped silently: bounded memory
	// beats completeness.
	bufferCapacity = 1000

	// drainChunkSize is how many buffered operations run between yields
	// during the drain, so a large buffer cannot starve other goroutines.
	drainChunkSize = 50
)

// State is the readiness stage of the emission core.
type State int32

const (
	// StateUninitialized means construction has not started the backend.
	StateUninitialized State = iota
	// StateInitializing means the backend is loading; operations buffer.
	StateInitializing
	// StateReady means operations apply immediately. Terminal-active.
	StateReady
	// StateFailed means backend setup failed; the core is a permanent
	// no-op. Terminal.
	StateFailed
	// StateStopped means Shutdown completed. Terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Factory produces the exporter triple for a resolved configuration. It is
// invoked at most once, asynchronously, and only for an enabled
// configuration.
type Factory func(ctx context.Context, cfg config.Configuration) (*exporter.Set, error)

// Option configures Service construction.
type Option func(*Service)

// WithFactory replaces the default exporter factory. Used by tests and by
// hosts that bring their own sinks.
func WithFactory(f Factory) Option {
	return func(s *Service) { s.factory = f }
}

// Service is the emission core. Constructed once per process lifetime; the
// backend loads asynchronously so construction returns immediately and never
// fails.
type Service struct {
	cfg     config.Configuration
	logger  *DiagLogger
	factory Factory

	mu     sync.Mutex
	state  State
	buffer []func()

	set            *exporter.Set
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	tracer         trace.Tracer
	logEmitter     otellog.Logger
	instruments    *Instruments
	limiter        *CardinalityLimiter

	emitted   atomic.Int64
	dropped   atomic.Int64
	lastError atomic.Value // string
	startTime time.Time

	// initDone closes when the initialization attempt finished, in either
	// direction. Flush and Shutdown wait on it.
	initDone chan struct{}
}

var _ Telemetry = (*Service)(nil)

// New constructs the telemetry service for the resolved configuration. A
// disabled configuration yields the no-op variant; an enabled one starts
// backend initialization in the background and returns immediately.
func New(cfg config.Configuration, opts ...Option) Telemetry {
	if cfg.Disabled() {
		return NewNoop(cfg)
	}
	return NewService(cfg, opts...)
}

// NewService constructs the active emission core. Prefer New unless the
// caller needs the concrete type.
func NewService(cfg config.Configuration, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		logger:    NewDiagLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat),
		factory:   exporter.Create,
		state:     StateUninitialized,
		startTime: time.Now(),
		initDone:  make(chan struct{}),
	}
	s.lastError.Store("")
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.HighCardinalityMetrics {
		s.limiter = NewCardinalityLimiter(defaultLabelCardinality)
	}

	// Construction guarantees initialization starts at most once.
	s.state = StateInitializing
	go s.initialize()
	return s
}

// initialize loads the backend: exporter triple, shared resource, providers.
// On success the buffer drains in order and the core becomes Ready. On any
// failure the buffer is discarded unexecuted, a diagnostic notice is logged,
// and nothing propagates to the application.
func (s *Service) initialize() {
	defer close(s.initDone)
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("panic during initialization: %v", r))
		}
	}()

	ctx := context.Background()
	s.logger.Info("Telemetry initialization starting", map[string]interface{}{
		"exporter": string(s.cfg.ExporterKind),
		"endpoint": s.cfg.Endpoint,
		"service":  s.cfg.ServiceName,
	})

	set, err := s.factory(ctx, s.cfg)
	if err != nil {
		s.fail(err)
		return
	}

	res, err := s.buildResource()
	if err != nil {
		set.Shutdown(ctx)
		s.fail(err)
		return
	}

	spanExporter := exporter.NewDiagnosticSpanExporter(set.Span, s.cfg.ExporterKind, s.logger)

	var bspOpts []sdktrace.BatchSpanProcessorOption
	if s.cfg.SpanBatchDelay > 0 {
		bspOpts = append(bspOpts, sdktrace.WithBatchTimeout(s.cfg.SpanBatchDelay))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(spanExporter, bspOpts...)),
	)

	var readerOpts []sdkmetric.PeriodicReaderOption
	if s.cfg.MetricExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(s.cfg.MetricExportInterval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(set.Metric, readerOpts...)),
	)

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(set.Log)),
	)

	s.mu.Lock()
	s.set = set
	s.tracerProvider = tp
	s.meterProvider = mp
	s.loggerProvider = lp
	s.tracer = tp.Tracer(instrumentationName)
	s.logEmitter = lp.Logger(instrumentationName)
	s.instruments = NewInstruments(mp.Meter(instrumentationName))
	s.mu.Unlock()

	// Register globally so instrumentation helpers (otelhttp) pick up the
	// live providers, including ones constructed before readiness.
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	logglobal.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	buffered := s.drain()

	s.logger.Info("Telemetry initialized", map[string]interface{}{
		"exporter":          string(s.cfg.ExporterKind),
		"replayed":          buffered,
		"dropped":           s.dropped.Load(),
		"initialization_ms": time.Since(s.startTime).Milliseconds(),
	})
}

// drain replays buffered operations in strict FIFO order, in fixed-size
// chunks with a yield in between. A panicking operation is swallowed so one
// bad buffered call cannot abort the rest. Operations arriving during the
// drain join the tail of the buffer and replay before the state flips to
// Ready, preserving issue order.
func (s *Service) drain() int {
	total := 0
	for {
		s.mu.Lock()
		if len(s.buffer) == 0 {
			s.state = StateReady
			s.buffer = nil
			s.mu.Unlock()
			return total
		}
		n := len(s.buffer)
		if n > drainChunkSize {
			n = drainChunkSize
		}
		chunk := s.buffer[:n]
		s.buffer = s.buffer[n:]
		s.mu.Unlock()

		for _, op := range chunk {
			s.runBuffered(op)
		}
		total += len(chunk)
		runtime.Gosched()
	}
}

func (s *Service) runBuffered(op func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("Buffered operation panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()
	op()
}

// fail transitions to the terminal no-op state, discarding the buffer
// without executing any queued operation: the backend those closures
// reference will never exist.
func (s *Service) fail(err error) {
	s.mu.Lock()
	discarded := len(s.buffer)
	s.buffer = nil
	s.state = StateFailed
	s.mu.Unlock()

	s.lastError.Store(err.Error())
	s.logger.Error("Telemetry initialization failed", map[string]interface{}{
		"error":     err.Error(),
		"exporter":  string(s.cfg.ExporterKind),
		"endpoint":  s.cfg.Endpoint,
		"discarded": discarded,
		"action":    "Check the collector is reachable at the configured endpoint",
		"impact":    "No telemetry will be emitted for this process lifetime",
	})
}

func (s *Service) buildResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.cfg.ServiceName),
		semconv.ServiceVersion(s.cfg.ServiceVersion),
		attribute.String("session.id", s.cfg.SessionID),
	}
	for k, v := range s.cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}
	return res, nil
}

// enqueueLocked appends op to the buffer if capacity remains. Caller holds
// s.mu. A false return means the operation was dropped, which is the
// deliberate backpressure policy, not an error.
func (s *Service) enqueueLocked(op func()) bool {
	if len(s.buffer) >= bufferCapacity {
		s.dropped.Add(1)
		return false
	}
	s.buffer = append(s.buffer, op)
	return true
}

// StartSpan implements Telemetry.
func (s *Service) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanHandle) {
	if ctx == nil {
		ctx = context.Background()
	}
	sc := &spanConfig{}
	for _, opt := range opts {
		opt(sc)
	}

	s.mu.Lock()
	switch s.state {
	case StateReady:
		tracer := s.tracer
		s.mu.Unlock()
		spanCtx, span := tracer.Start(ctx, name, sc.startOptions()...)
		s.emitted.Add(1)
		return spanCtx, &boundSpan{span: span}

	case StateInitializing:
		handle := newPendingSpan()
		startTime := time.Now()
		ok := s.enqueueLocked(func() {
			startOpts := append(sc.startOptions(), trace.WithTimestamp(startTime))
			_, span := s.tracer.Start(ctx, name, startOpts...)
			s.emitted.Add(1)
			handle.bind(span)
		})
		s.mu.Unlock()
		if !ok {
			return ctx, noopSpan{}
		}
		return ctx, handle

	default:
		s.mu.Unlock()
		return ctx, noopSpan{}
	}
}

// StartActiveSpan implements Telemetry.
func (s *Service) StartActiveSpan(ctx context.Context, name string, fn func(context.Context, SpanHandle) error, opts ...SpanOption) error {
	spanCtx, handle := s.StartSpan(ctx, name, opts...)
	defer handle.End()
	return fn(spanCtx, handle)
}

// RecordMetric implements Telemetry: the named instrument is a histogram.
func (s *Service) RecordMetric(name string, value float64, labels map[string]string) {
	s.metricOp(name, labels, func(attrs []attribute.KeyValue) error {
		return s.instruments.RecordHistogram(context.Background(), name, value,
			metric.WithAttributes(attrs...))
	})
}

// IncrementCounter implements Telemetry: the named instrument is a counter.
func (s *Service) IncrementCounter(name string, value int64, labels map[string]string) {
	s.metricOp(name, labels, func(attrs []attribute.KeyValue) error {
		return s.instruments.AddCounter(context.Background(), name, value,
			metric.WithAttributes(attrs...))
	})
}

// metricOp applies record immediately when Ready, buffers it while
// Initializing, and drops it otherwise.
func (s *Service) metricOp(name string, labels map[string]string, record func([]attribute.KeyValue) error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		s.applyMetric(name, labels, record)

	case StateInitializing:
		s.enqueueLocked(func() {
			s.applyMetric(name, labels, record)
		})
		s.mu.Unlock()

	default:
		s.mu.Unlock()
	}
}

func (s *Service) applyMetric(name string, labels map[string]string, record func([]attribute.KeyValue) error) {
	attrs := s.limitedAttributes(name, labels)
	if err := record(attrs); err != nil {
		s.lastError.Store(err.Error())
		s.logger.Error("Failed to record metric", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
		return
	}
	s.emitted.Add(1)
}

// limitedAttributes converts labels to attributes, folding over-cardinality
// values to "other" when the limiter is active.
func (s *Service) limitedAttributes(name string, labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		if s.limiter != nil {
			v = s.limiter.CheckAndLimit(name, k, v)
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// EmitLogRecord implements Telemetry.
func (s *Service) EmitLogRecord(body string, attrs map[string]string) {
	now := time.Now()

	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		s.applyLogRecord(now, body, attrs)

	case StateInitializing:
		s.enqueueLocked(func() {
			s.applyLogRecord(now, body, attrs)
		})
		s.mu.Unlock()

	default:
		s.mu.Unlock()
	}
}

func (s *Service) applyLogRecord(at time.Time, body string, attrs map[string]string) {
	var record otellog.Record
	record.SetTimestamp(at)
	record.SetObservedTimestamp(at)
	record.SetSeverity(otellog.SeverityInfo)
	record.SetBody(otellog.StringValue(body))
	for k, v := range attrs {
		record.AddAttributes(otellog.String(k, v))
	}
	s.logEmitter.Emit(context.Background(), record)
	s.emitted.Add(1)
}

// Flush implements Telemetry. If initialization is still in flight it waits
// for the outcome first, so "flush after a burst of early calls" pushes the
// replayed data too.
func (s *Service) Flush(ctx context.Context) {
	select {
	case <-s.initDone:
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	tp, mp, lp := s.tracerProvider, s.meterProvider, s.loggerProvider
	s.mu.Unlock()
	if tp == nil {
		return
	}

	if err := tp.ForceFlush(ctx); err != nil {
		s.logger.Warn("Trace flush failed", map[string]interface{}{"error": err.Error()})
	}
	if err := mp.ForceFlush(ctx); err != nil {
		s.logger.Warn("Metric flush failed", map[string]interface{}{"error": err.Error()})
	}
	if err := lp.ForceFlush(ctx); err != nil {
		s.logger.Warn("Log flush failed", map[string]interface{}{"error": err.Error()})
	}
}

// Shutdown implements Telemetry. It flushes, releases backend resources and
// leaves the core in the terminal Stopped state. All failures are absorbed
// into the diagnostic log.
func (s *Service) Shutdown(ctx context.Context) {
	select {
	case <-s.initDone:
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateStopped
	tp, mp, lp, set := s.tracerProvider, s.meterProvider, s.loggerProvider, s.set
	s.mu.Unlock()

	if prev != StateReady || tp == nil {
		return
	}

	// Provider shutdown flushes and closes the exporters; only the shared
	// transports remain for us.
	if err := tp.Shutdown(ctx); err != nil {
		s.logger.Warn("Trace provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := mp.Shutdown(ctx); err != nil {
		s.logger.Warn("Metric provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := lp.Shutdown(ctx); err != nil {
		s.logger.Warn("Log provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := set.Close(); err != nil {
		s.logger.Warn("Exporter transport close failed", map[string]interface{}{"error": err.Error()})
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.logger.Info("Telemetry shut down", map[string]interface{}{
		"emitted":   s.emitted.Load(),
		"dropped":   s.dropped.Load(),
		"uptime_ms": time.Since(s.startTime).Milliseconds(),
	})
}

// Config implements Telemetry.
func (s *Service) Config() config.Configuration {
	return s.cfg
}

func (s *Service) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
