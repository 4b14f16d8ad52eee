package telemetry

import (
	"sync"
	"time"
)

// defaultLabelCardinality caps the distinct values tracked per metric label.
// Values beyond the cap are folded into "other" so a runaway label (request
// ids, user ids) cannot explode the backend's time-series count.
const defaultLabelCardinality = 100

// CardinalityLimiter prevents unbounded metric cardinality. It is shared by
// all instruments of one Service and disabled entirely when the configuration
// opts in to high-cardinality metrics.
type CardinalityLimiter struct {
	limit int
	seen  sync.Map // map[string]*sync.Map: metric.label -> value -> last seen

	stopChan chan struct{}
	stopped  sync.Once
}

// NewCardinalityLimiter creates a limiter with the given per-label value cap.
// A non-positive limit uses the default.
func NewCardinalityLimiter(limit int) *CardinalityLimiter {
	if limit <= 0 {
		limit = defaultLabelCardinality
	}
	c := &CardinalityLimiter{
		limit:    limit,
		stopChan: make(chan struct{}),
	}
	// Periodic cleanup so long-gone values do not pin memory forever.
	go c.cleanupLoop()
	return c
}

// CheckAndLimit returns the label value to record: the original value while
// under the cap, "other" once the metric/label pair is saturated with values
// this one is not among.
func (c *CardinalityLimiter) CheckAndLimit(metric, label, value string) string {
	key := metric + "." + label

	valMapI, _ := c.seen.LoadOrStore(key, &sync.Map{})
	valMap := valMapI.(*sync.Map)

	count := 0
	valMap.Range(func(k, v interface{}) bool {
		count++
		return count < c.limit
	})

	if count >= c.limit {
		if _, exists := valMap.Load(value); !exists {
			return "other"
		}
	}

	valMap.Store(value, time.Now())
	return value
}

func (c *CardinalityLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			return
		}
	}
}

// cleanup drops values not seen for ten minutes.
func (c *CardinalityLimiter) cleanup() {
	cutoff := time.Now().Add(-10 * time.Minute)
	c.seen.Range(func(key, valMapI interface{}) bool {
		valMap := valMapI.(*sync.Map)
		valMap.Range(func(val, lastSeen interface{}) bool {
			if lastSeen.(time.Time).Before(cutoff) {
				valMap.Delete(val)
			}
			return true
		})
		return true
	})
}

// Stop terminates the cleanup goroutine.
func (c *CardinalityLimiter) Stop() {
	c.stopped.Do(func() {
		close(c.stopChan)
	})
}
