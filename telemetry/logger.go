package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// DiagLogger is the diagnostic side channel for the emission core itself.
// Every failure the core absorbs surfaces here and nowhere else: telemetry
// problems must never propagate into application code.
//
// Output is JSON in Kubernetes-style environments and plain text locally,
// per the resolved configuration. Error logging is rate-limited so a dead
// collector cannot flood the host application's logs.
type DiagLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string

	mu     sync.RWMutex
	output io.Writer

	errorLimiter *RateLimiter
}

// NewDiagLogger creates a logger writing to stderr with the given level and
// format ("json" or "text").
func NewDiagLogger(serviceName, level, format string) *DiagLogger {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "" {
		level = "INFO"
	}
	if format != "json" {
		format = "text"
	}
	return &DiagLogger{
		level:        level,
		debug:        level == "DEBUG",
		serviceName:  serviceName,
		format:       format,
		output:       os.Stderr,
		errorLimiter: NewRateLimiter(time.Second),
	}
}

// Info logs informational messages.
func (l *DiagLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

// Warn logs warning messages.
func (l *DiagLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

// Error logs error messages, at most one per second.
func (l *DiagLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

// Debug logs debug messages when the level permits.
func (l *DiagLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *DiagLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *DiagLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"component": "telemetry",
		"message":   msg,
	}
	for k, v := range fields {
		if _, reserved := entry[k]; !reserved {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *DiagLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		// Surface the fields an operator scans for first.
		for _, key := range []string{"endpoint", "exporter", "error", "action", "impact"} {
			if v, ok := fields[key]; ok {
				fmt.Fprintf(&b, "%s=%q ", key, fmt.Sprintf("%v", v))
				delete(fields, key)
			}
		}
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(l.output, "%s [%s] [telemetry:%s] %s%s\n",
		timestamp, level, l.serviceName, msg, b.String())
}

func (l *DiagLogger) shouldLog(level string) bool {
	levels := map[string]int{
		"DEBUG": 0,
		"INFO":  1,
		"WARN":  2,
		"ERROR": 3,
	}
	current, ok1 := levels[l.level]
	message, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return message >= current
}

// SetOutput changes the output writer (useful for testing).
func (l *DiagLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}
