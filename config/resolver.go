package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Environment variable keys recognized by Resolve. BEACON_* keys are the
// application-specific overrides and take precedence over the standard OTEL_*
// keys, mirroring how host settings are beaten by both.
const (
	EnvEnabled            = "BEACON_TELEMETRY_ENABLED"
	EnvEndpoint           = "BEACON_OTLP_ENDPOINT"
	EnvFilePath           = "BEACON_TELEMETRY_FILE"
	EnvCaptureContent     = "BEACON_CAPTURE_CONTENT"
	EnvLogLevel           = "BEACON_LOG_LEVEL"
	EnvLogFormat          = "BEACON_LOG_FORMAT"
	EnvHTTPAutoInstrument = "BEACON_HTTP_AUTO_INSTRUMENT"
	EnvHighCardinality    = "BEACON_HIGH_CARDINALITY_METRICS"

	EnvOTLPEndpoint        = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPTracesEndpoint  = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	EnvOTLPMetricsEndpoint = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	EnvOTLPLogsEndpoint    = "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"
	EnvOTLPProtocol        = "OTEL_EXPORTER_OTLP_PROTOCOL"
	EnvOTLPHeaders         = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvServiceName         = "OTEL_SERVICE_NAME"
	EnvResourceAttributes  = "OTEL_RESOURCE_ATTRIBUTES"
	EnvLogLevelOTel        = "OTEL_LOG_LEVEL"
	EnvMetricInterval      = "OTEL_METRIC_EXPORT_INTERVAL"
	EnvSpanBatchDelay      = "OTEL_BSP_SCHEDULE_DELAY"

	envKubernetesHost = "KUBERNETES_SERVICE_HOST"
)

// TelemetryLevelOff is the host telemetry level that acts as a global kill
// switch: it beats every other enablement signal.
const TelemetryLevelOff = "off"

// Env is the explicit environment input to Resolve. Using a plain map keeps
// resolution pure and repeatable in tests; production callers pass SystemEnv().
type Env map[string]string

// SystemEnv captures the process environment as an Env snapshot.
func SystemEnv() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// Resolve merges environment variables, host-application settings and built-in
// defaults into one immutable Configuration snapshot.
//
// Resolve cannot fail: every malformed input degrades to a safe default so
// configuration resolution never blocks or crashes process startup.
func Resolve(env Env, settings Settings, hostVersion, sessionID, telemetryLevel string) Configuration {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	logFormat := firstNonEmpty(env[EnvLogFormat], "text")
	if env[EnvLogFormat] == "" && env[envKubernetesHost] != "" {
		logFormat = "json"
	}

	cfg := Configuration{
		Enabled:        false,
		ExporterKind:   ExporterHTTP,
		Protocol:       ProtocolHTTP,
		Endpoint:       DefaultEndpoint,
		LogLevel:       DefaultLogLevel,
		LogFormat:      logFormat,
		ServiceName:    DefaultServiceName,
		ServiceVersion: hostVersion,
		SessionID:      sessionID,
	}

	// The host kill switch beats everything else.
	if strings.EqualFold(telemetryLevel, TelemetryLevelOff) {
		return cfg
	}

	// Enablement: dedicated env override, then host setting, then implied
	// by the presence of a collector endpoint.
	if v, ok := parseBool(env[EnvEnabled]); ok {
		cfg.Enabled = v
	} else if settings.Enabled != nil {
		cfg.Enabled = *settings.Enabled
	} else {
		cfg.Enabled = env[EnvOTLPEndpoint] != ""
	}
	if !cfg.Enabled {
		return cfg
	}

	if strings.HasPrefix(strings.ToLower(env[EnvOTLPProtocol]), "grpc") {
		cfg.Protocol = ProtocolGRPC
	}

	rawEndpoint := firstNonEmpty(
		stripQuotes(env[EnvEndpoint]),
		stripQuotes(env[EnvOTLPEndpoint]),
		settings.Endpoint,
		DefaultEndpoint,
	)
	cfg.Endpoint = normalizeEndpoint(rawEndpoint, cfg.Protocol)
	cfg.TracesEndpoint = normalizeOptionalEndpoint(env[EnvOTLPTracesEndpoint], cfg.Protocol)
	cfg.MetricsEndpoint = normalizeOptionalEndpoint(env[EnvOTLPMetricsEndpoint], cfg.Protocol)
	cfg.LogsEndpoint = normalizeOptionalEndpoint(env[EnvOTLPLogsEndpoint], cfg.Protocol)

	// A file path always wins the exporter-kind decision: it is the local
	// fallback for environments with no reachable collector.
	cfg.FilePath = firstNonEmpty(stripQuotes(env[EnvFilePath]), settings.FilePath)
	switch {
	case cfg.FilePath != "":
		cfg.ExporterKind = ExporterFile
	case settings.ExporterKind != "":
		cfg.ExporterKind = knownExporterKind(settings.ExporterKind, cfg.Protocol)
	case cfg.Protocol == ProtocolGRPC:
		cfg.ExporterKind = ExporterGRPC
	default:
		cfg.ExporterKind = ExporterHTTP
	}

	// Content capture defaults to false and is never enabled silently.
	if v, ok := parseBool(env[EnvCaptureContent]); ok {
		cfg.CaptureContent = v
	} else if settings.CaptureContent != nil {
		cfg.CaptureContent = *settings.CaptureContent
	}

	cfg.LogLevel = firstNonEmpty(env[EnvLogLevel], env[EnvLogLevelOTel], DefaultLogLevel)
	cfg.HTTPAutoInstrument, _ = parseBool(env[EnvHTTPAutoInstrument])
	cfg.HighCardinalityMetrics, _ = parseBool(env[EnvHighCardinality])
	cfg.ServiceName = firstNonEmpty(env[EnvServiceName], DefaultServiceName)
	cfg.ResourceAttributes = parsePairs(env[EnvResourceAttributes])
	cfg.Headers = parsePairs(env[EnvOTLPHeaders])
	cfg.MetricExportInterval = parseMillis(env[EnvMetricInterval])
	cfg.SpanBatchDelay = parseMillis(env[EnvSpanBatchDelay])

	return cfg
}

// normalizeEndpoint parses raw as a URL and normalizes it per protocol: grpc
// transports do not route by path, so only the origin is kept; http collectors
// distinguish ingestion routes by path, so the full reference is preserved.
// Unparseable values fall back to the built-in default.
func normalizeEndpoint(raw string, protocol Protocol) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u, _ = url.Parse(DefaultEndpoint)
	}
	if protocol == ProtocolGRPC {
		return u.Scheme + "://" + u.Host
	}
	return u.String()
}

func normalizeOptionalEndpoint(raw string, protocol Protocol) string {
	raw = stripQuotes(raw)
	if raw == "" {
		return ""
	}
	return normalizeEndpoint(raw, protocol)
}

// knownExporterKind maps a host-setting override to an ExporterKind,
// falling back to the protocol-derived kind for unrecognized values.
func knownExporterKind(s string, protocol Protocol) ExporterKind {
	switch ExporterKind(strings.ToLower(strings.TrimSpace(s))) {
	case ExporterGRPC:
		return ExporterGRPC
	case ExporterHTTP:
		return ExporterHTTP
	case ExporterConsole:
		return ExporterConsole
	case ExporterFile:
		return ExporterFile
	}
	if protocol == ProtocolGRPC {
		return ExporterGRPC
	}
	return ExporterHTTP
}

// parsePairs parses "key1=value1,key2=value2" lists. Malformed pairs (no "="
// or empty key) are skipped; later duplicate keys overwrite earlier ones.
// Returns nil for an empty input so callers can distinguish "unset".
func parsePairs(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	pairs := make(map[string]string)
	for _, item := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		pairs[key] = strings.TrimSpace(value)
	}
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

// parseBool recognizes the usual boolean spellings. The second return value
// reports whether the input was a recognizable boolean at all, which lets
// callers fall through to the next precedence layer on junk input.
func parseBool(raw string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true, true
	case "0", "f", "false", "no", "off":
		return false, true
	}
	return false, false
}

// parseMillis parses a millisecond count, returning zero (use SDK default)
// for anything non-numeric or negative.
func parseMillis(raw string) time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// stripQuotes removes one layer of wrapping quote characters. Some host
// environments hand values through shells that leave literal quotes behind.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
