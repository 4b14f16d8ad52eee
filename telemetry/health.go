package telemetry

import "time"

// Health is a point-in-time snapshot of the emission core's own condition,
// for exposure on a host diagnostics endpoint.
type Health struct {
	Enabled   bool   `json:"enabled"`
	State     string `json:"state"`
	Exporter  string `json:"exporter,omitempty"`
	Buffered  int    `json:"buffered"`
	Emitted   int64  `json:"emitted"`
	Dropped   int64  `json:"dropped"`
	LastError string `json:"last_error,omitempty"`
	Uptime    string `json:"uptime"`
}

// Health implements Telemetry.
func (s *Service) Health() Health {
	s.mu.Lock()
	state := s.state
	buffered := len(s.buffer)
	s.mu.Unlock()

	lastErr, _ := s.lastError.Load().(string)
	return Health{
		Enabled:   true,
		State:     state.String(),
		Exporter:  string(s.cfg.ExporterKind),
		Buffered:  buffered,
		Emitted:   s.emitted.Load(),
		Dropped:   s.dropped.Load(),
		LastError: lastErr,
		Uptime:    time.Since(s.startTime).String(),
	}
}
