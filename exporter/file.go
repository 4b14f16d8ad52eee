package exporter

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// lineWriter is the shared append stream behind the file-fallback sinks. The
// file is opened in append mode so repeated process runs accumulate rather
// than overwrite, and every write is synced so a crash loses at most the
// in-flight record.
//
// The stdout-family exporters each own a JSON encoder but share one
// lineWriter, so writes from the three signal pipelines must not interleave
// mid-record.
type lineWriter struct {
	mu   sync.Mutex
	file *os.File
}

var _ io.Writer = (*lineWriter)(nil)

func newLineWriter(path string) (*lineWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file %s: %w", path, err)
	}
	return &lineWriter{file: f}, nil
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.file.Sync(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
