// Package exporter constructs the span, metric and log sinks for a resolved
// configuration.
//
// The factory is the only place backend machinery is touched: a disabled
// configuration never reaches it, so the disabled path loads nothing. The
// three sinks of a Set are never partially initialized — any constructor
// failure tears down the sinks built so far and fails the whole triple.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/itsneelabh/beacon/config"
)

// Set is the exporter triple for one resolved endpoint/protocol choice.
type Set struct {
	Span   sdktrace.SpanExporter
	Metric sdkmetric.Exporter
	Log    sdklog.Exporter

	conn   *grpc.ClientConn
	writer *lineWriter
}

// Shutdown releases all three sinks and any transport they share. Errors are
// collected so a failing sink does not leave the others open.
func (s *Set) Shutdown(ctx context.Context) error {
	var errs []error
	if s.Span != nil {
		errs = append(errs, s.Span.Shutdown(ctx))
	}
	if s.Metric != nil {
		errs = append(errs, s.Metric.Shutdown(ctx))
	}
	if s.Log != nil {
		errs = append(errs, s.Log.Shutdown(ctx))
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	return errors.Join(errs...)
}

// Close releases only the shared transports (connection, file stream).
// Callers that handed the sinks to SDK providers use this after the providers
// have shut the exporters down themselves.
func (s *Set) Close() error {
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	return errors.Join(errs...)
}

// Create builds the exporter triple selected by cfg.ExporterKind. The
// endpoint has already been normalized per protocol by the resolver.
func Create(ctx context.Context, cfg config.Configuration) (*Set, error) {
	switch cfg.ExporterKind {
	case config.ExporterFile:
		return createFile(cfg)
	case config.ExporterConsole:
		return createConsole()
	case config.ExporterGRPC:
		return createGRPC(ctx, cfg)
	case config.ExporterHTTP:
		return createHTTP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown exporter kind %q", cfg.ExporterKind)
	}
}

// createFile wires all three signals to one shared append stream, one JSON
// object per line.
func createFile(cfg config.Configuration) (*Set, error) {
	w, err := newLineWriter(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	set, err := createStdout(w)
	if err != nil {
		w.Close()
		return nil, err
	}
	set.writer = w
	return set, nil
}

func createConsole() (*Set, error) {
	return createStdout(os.Stderr)
}

func createStdout(w io.Writer) (*Set, error) {
	span, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create span sink: %w", err)
	}
	metric, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric sink: %w", err)
	}
	logs, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create log sink: %w", err)
	}
	return &Set{Span: span, Metric: metric, Log: logs}, nil
}

// createGRPC shares one client connection across the three OTLP exporters.
// Per-signal endpoint overrides get their own dedicated exporter instead.
func createGRPC(ctx context.Context, cfg config.Configuration) (set *Set, err error) {
	set = &Set{}
	defer func() {
		if err != nil {
			set.Shutdown(ctx)
			set = nil
		}
	}()

	target, plaintext, err := grpcTarget(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewClientTLSFromCert(nil, "")
	if plaintext {
		creds = insecure.NewCredentials()
	}
	set.conn, err = grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	if cfg.TracesEndpoint != "" {
		set.Span, err = dedicatedGrpcSpanExporter(ctx, cfg.TracesEndpoint, cfg.Headers)
	} else {
		set.Span, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithGRPCConn(set.conn),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create span sink: %w", err)
	}

	if cfg.MetricsEndpoint != "" {
		set.Metric, err = dedicatedGrpcMetricExporter(ctx, cfg.MetricsEndpoint, cfg.Headers)
	} else {
		set.Metric, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithGRPCConn(set.conn),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metric sink: %w", err)
	}

	if cfg.LogsEndpoint != "" {
		set.Log, err = dedicatedGrpcLogExporter(ctx, cfg.LogsEndpoint, cfg.Headers)
	} else {
		set.Log, err = otlploggrpc.New(ctx,
			otlploggrpc.WithGRPCConn(set.conn),
			otlploggrpc.WithHeaders(cfg.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create log sink: %w", err)
	}
	return set, nil
}

func dedicatedGrpcSpanExporter(ctx context.Context, endpoint string, headers map[string]string) (sdktrace.SpanExporter, error) {
	target, plaintext, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(target),
		otlptracegrpc.WithHeaders(headers),
	}
	if plaintext {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func dedicatedGrpcMetricExporter(ctx context.Context, endpoint string, headers map[string]string) (sdkmetric.Exporter, error) {
	target, plaintext, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(target),
		otlpmetricgrpc.WithHeaders(headers),
	}
	if plaintext {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func dedicatedGrpcLogExporter(ctx context.Context, endpoint string, headers map[string]string) (sdklog.Exporter, error) {
	target, plaintext, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(target),
		otlploggrpc.WithHeaders(headers),
	}
	if plaintext {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return otlploggrpc.New(ctx, opts...)
}

// grpcTarget reduces an origin-normalized endpoint to the host:port form the
// gRPC client dials, and reports whether the scheme asked for plaintext.
func grpcTarget(endpoint string) (target string, plaintext bool, err error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("invalid grpc endpoint %q", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

// createHTTP keeps the full endpoint reference: OTLP/HTTP collectors route
// ingestion by path.
func createHTTP(ctx context.Context, cfg config.Configuration) (set *Set, err error) {
	set = &Set{}
	defer func() {
		if err != nil {
			set.Shutdown(ctx)
			set = nil
		}
	}()

	set.Span, err = otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpointOr(cfg.TracesEndpoint, cfg.Endpoint)),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create span sink: %w", err)
	}
	set.Metric, err = otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(endpointOr(cfg.MetricsEndpoint, cfg.Endpoint)),
		otlpmetrichttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric sink: %w", err)
	}
	set.Log, err = otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(endpointOr(cfg.LogsEndpoint, cfg.Endpoint)),
		otlploghttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create log sink: %w", err)
	}
	return set, nil
}

func endpointOr(override, base string) string {
	if override != "" {
		return override
	}
	return base
}
