// Package config resolves the telemetry configuration for a process.
//
// Resolution happens exactly once, at service construction. Inputs come from
// four independently-sourced layers merged under a strict precedence:
//
//  1. BEACON_* environment overrides (highest)
//  2. Standard OTEL_* environment variables
//  3. Host-application settings (see Settings)
//  4. Built-in defaults (lowest)
//
// A host-level telemetry kill switch ("off") beats everything else.
//
// No component other than Resolve reads the environment. The rest of the
// module receives the immutable Configuration snapshot and never consults
// ambient state, which keeps every downstream component deterministic and
// testable.
package config

import "time"

// ExporterKind selects the output sink family for all three signal types.
type ExporterKind string

const (
	// ExporterGRPC batches signals to an OTLP collector over gRPC.
	ExporterGRPC ExporterKind = "grpc"
	// ExporterHTTP batches signals to an OTLP collector over HTTP.
	ExporterHTTP ExporterKind = "http"
	// ExporterConsole prints signals to the standard diagnostic stream.
	ExporterConsole ExporterKind = "console"
	// ExporterFile appends newline-delimited JSON records to a local file.
	ExporterFile ExporterKind = "file"
)

// Protocol is the OTLP transport selected by the environment.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// Default values applied when no layer supplies one.
const (
	// DefaultEndpoint is the conventional local OTLP/HTTP collector address.
	DefaultEndpoint = "http://localhost:4318"

	// DefaultServiceName identifies the emitting process when the host
	// never names it.
	DefaultServiceName = "beacon-service"

	// DefaultLogLevel applies when no log level variable is set.
	DefaultLogLevel = "info"
)

// Configuration is the immutable snapshot consumed for the lifetime of the
// process. It is created once by Resolve and never mutated afterwards; a new
// configuration requires a new process lifetime.
type Configuration struct {
	// Enabled gates the whole emission core. When false every telemetry
	// operation is a complete no-op and no backend machinery is loaded.
	Enabled bool

	// ExporterKind selects the sink family for spans, metrics and logs.
	ExporterKind ExporterKind

	// Endpoint is the resolved collector address. For grpc it is the
	// origin only (scheme://host:port); for http the full reference
	// including path, because collectors route ingestion by path.
	Endpoint string

	// TracesEndpoint, MetricsEndpoint and LogsEndpoint are optional
	// per-signal overrides, normalized the same way as Endpoint.
	TracesEndpoint  string
	MetricsEndpoint string
	LogsEndpoint    string

	// Protocol is the OTLP transport the endpoint was normalized for.
	Protocol Protocol

	// CaptureContent opts in to recording request/response bodies on
	// spans. Never enabled silently.
	CaptureContent bool

	// FilePath, when non-empty, forces ExporterFile and names the
	// append-only NDJSON output file.
	FilePath string

	// LogLevel controls the diagnostic logger.
	LogLevel string

	// LogFormat is "json" or "text" for the diagnostic logger. Kubernetes
	// environments default to JSON for log aggregation.
	LogFormat string

	// HTTPAutoInstrument enables the otelhttp middleware helpers.
	HTTPAutoInstrument bool

	ServiceName    string
	ServiceVersion string
	SessionID      string

	// ResourceAttributes are custom key/value pairs attached uniformly to
	// every exported signal.
	ResourceAttributes map[string]string

	// Headers are authentication or routing headers sent with every OTLP
	// export request.
	Headers map[string]string

	// MetricExportInterval is the periodic reader interval. Zero means
	// the SDK default.
	MetricExportInterval time.Duration

	// SpanBatchDelay is the batch span processor schedule delay. Zero
	// means the SDK default.
	SpanBatchDelay time.Duration

	// HighCardinalityMetrics disables the per-label cardinality limiter
	// when true.
	HighCardinalityMetrics bool
}

// Disabled reports whether the configuration resolved to the terminal no-op
// state. A disabled configuration is still a valid, inspectable value.
func (c Configuration) Disabled() bool {
	return !c.Enabled
}
