package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// instrumentKind is fixed per metric name at first use and never changes.
type instrumentKind int8

const (
	kindCounter instrumentKind = iota
	kindHistogram
)

func (k instrumentKind) String() string {
	if k == kindCounter {
		return "counter"
	}
	return "histogram"
}

// Instruments is the lazily-populated cache of named metric instruments.
// Creation is idempotent per name: the first caller creates, subsequent
// callers reuse, and a name never changes kind. A later call that asks for
// the same name with a conflicting kind is rejected.
type Instruments struct {
	meter metric.Meter

	mu         sync.RWMutex
	kinds      map[string]instrumentKind
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewInstruments creates an instrument cache backed by the given meter.
func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{
		meter:      meter,
		kinds:      make(map[string]instrumentKind),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// AddCounter increments the counter named name, creating it on first use.
func (m *Instruments) AddCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring the write lock.
		if counter, exists = m.counters[name]; !exists {
			if kind, used := m.kinds[name]; used && kind != kindCounter {
				m.mu.Unlock()
				return fmt.Errorf("metric %s already registered as %s", name, kind)
			}
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
			m.kinds[name] = kindCounter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution sample, creating the
// histogram named name on first use.
func (m *Instruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			if kind, used := m.kinds[name]; used && kind != kindHistogram {
				m.mu.Unlock()
				return fmt.Errorf("metric %s already registered as %s", name, kind)
			}
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
			m.kinds[name] = kindHistogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

// Len returns the number of cached instruments.
func (m *Instruments) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.kinds)
}
