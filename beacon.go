// Package beacon is the entry point for the beacon observability emission
// core. Most applications only need this package plus the telemetry
// interface:
//
//	tel := beacon.New(beacon.Options{HostVersion: "1.4.2"})
//	defer tel.Shutdown(context.Background())
//
// Configuration is resolved exactly once here, from the process environment
// and the host-application settings, and threaded through every component as
// an immutable snapshot. See the config package for the resolution rules.
package beacon

import (
	"github.com/itsneelabh/beacon/config"
	"github.com/itsneelabh/beacon/telemetry"
)

// Re-export the types application code holds on to, so call sites need a
// single import.
type (
	Telemetry  = telemetry.Telemetry
	SpanHandle = telemetry.SpanHandle
	Settings   = config.Settings
)

// Options configures construction. The zero value is valid: everything then
// comes from the environment and defaults.
type Options struct {
	// Settings are the host-application preferences; the environment
	// beats them.
	Settings config.Settings

	// SettingsFile optionally names a YAML file to load Settings from.
	// It is consulted only when Settings is the zero value, and any load
	// problem degrades to empty settings — construction cannot fail.
	SettingsFile string

	// HostVersion is recorded as the service version resource attribute.
	HostVersion string

	// SessionID labels every signal of this process run. Generated when
	// empty.
	SessionID string

	// TelemetryLevel is the host's global telemetry level; "off" is the
	// kill switch that beats every other signal.
	TelemetryLevel string
}

// New resolves configuration from the process environment and constructs the
// emission core. It returns immediately — backend initialization runs in the
// background — and never fails: a disabled or unresolvable configuration
// yields the no-op variant.
func New(opts Options) Telemetry {
	settings := opts.Settings
	if opts.SettingsFile != "" && settings == (config.Settings{}) {
		if loaded, err := config.LoadSettings(opts.SettingsFile); err == nil {
			settings = loaded
		}
	}
	cfg := config.Resolve(config.SystemEnv(), settings, opts.HostVersion, opts.SessionID, opts.TelemetryLevel)
	return telemetry.New(cfg)
}
