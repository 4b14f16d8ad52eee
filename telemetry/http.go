package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware implements Telemetry. The returned middleware extracts W3C
// trace context from incoming requests and creates a span per request. It is
// safe to install before the backend is ready: otelhttp reads the global
// providers, which delegate to the live ones once initialization completes.
func (s *Service) HTTPMiddleware() func(http.Handler) http.Handler {
	if !s.cfg.HTTPAutoInstrument {
		return identityMiddleware
	}
	formatter := otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
		return "HTTP " + r.Method + " " + r.URL.Path
	})
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, s.cfg.ServiceName, formatter)
	}
}

// HTTPClient implements Telemetry. The returned client injects traceparent
// and tracestate headers so downstream services can continue the trace.
func (s *Service) HTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	if !s.cfg.HTTPAutoInstrument {
		return &http.Client{Transport: base}
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

func identityMiddleware(next http.Handler) http.Handler { return next }
