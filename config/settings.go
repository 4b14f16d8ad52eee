package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings carries host-application telemetry preferences. They sit below the
// environment in the resolution precedence: a BEACON_* or OTEL_* variable
// beats every field here.
//
// Pointer fields distinguish "not set" from an explicit false, so a host that
// says nothing still lets the environment decide.
type Settings struct {
	// Enabled turns emission on or off when the environment is silent.
	Enabled *bool `yaml:"enabled"`

	// Endpoint is the collector address used when no endpoint variable is
	// present.
	Endpoint string `yaml:"endpoint"`

	// ExporterKind overrides the protocol-derived sink selection.
	// One of: grpc, http, console, file.
	ExporterKind string `yaml:"exporterKind"`

	// FilePath routes all signals to a local NDJSON file. A non-empty
	// path forces the file exporter regardless of ExporterKind.
	FilePath string `yaml:"filePath"`

	// CaptureContent opts in to span content capture.
	CaptureContent *bool `yaml:"captureContent"`
}

// LoadSettings reads Settings from a YAML file. A missing file is not an
// error: hosts without a settings file simply contribute nothing to
// resolution.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s, nil
}

// Bool returns a *bool for literal Settings construction.
func Bool(v bool) *bool { return &v }
