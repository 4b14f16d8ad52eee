/*
Package telemetry is the emission core application code talks to: spans,
metrics and structured log records go in, and are delivered to the configured
backend without ever blocking or crashing the caller.

# Lifecycle

The hard problem is correctness under asynchronous, fallible initialization.
Construction returns immediately; the backend (exporters, batch processors,
providers) loads in the background. Calls made before the backend is ready
are buffered, bounded and in order, and replayed once initialization
succeeds. If initialization fails, the core degrades to a permanent no-op:
the buffer is discarded, a diagnostic line is logged, and the host
application never sees an error.

	Uninitialized -> Initializing -> Ready
	                              -> Failed

Ready and Failed are terminal. A disabled configuration skips the whole
sequence: New returns a no-op variant behind the same interface and no
backend machinery is ever loaded.

# Thread safety

All public methods are safe for concurrent use. The readiness state and the
pre-initialization buffer are guarded by one mutex; counters use atomics;
the metric-instrument cache creates lazily and idempotently per name.

# Failure policy

No telemetry operation surfaces an error to application code. Configuration
parse problems degrade to defaults, initialization failure degrades to
silence, per-export failures surface as rate-limited diagnostic warnings.
The worst user-visible outcome is absent observability while the host keeps
running normally.

Usage:

	cfg := config.Resolve(config.SystemEnv(), settings, version, "", level)
	tel := telemetry.New(cfg)
	defer tel.Shutdown(context.Background())

	ctx, span := tel.StartSpan(ctx, "task.run")
	defer span.End()
	tel.IncrementCounter("task.total", 1, map[string]string{"kind": "sync"})
*/
package telemetry
