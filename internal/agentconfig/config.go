// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package agentconfig loads the debuglet's configuration.
//
// Configuration is loaded from a single YAML file, located by:
//   - the GCLOUD_DEBUG_CONFIG environment variable, or
//   - an explicit path passed to LoadFile.
//
// There is no automatic discovery beyond that. A handful of individual
// settings (service name/version, log level, disable flag, repository-
// relative path) can additionally be overridden by dedicated environment
// variables, applied on top of the file via ApplyEnvOverrides — this
// mirrors how the original Node.js agent reads process.env once at
// startup without ever re-polling it.
package agentconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnvVar is the environment variable naming the config file path.
const ConfigEnvVar = "GCLOUD_DEBUG_CONFIG"

// Capture holds the CaptureEngine's size and depth limits (spec §4.4).
type Capture struct {
	// MaxFrames is the total number of stack frames captured.
	MaxFrames int `yaml:"max_frames"`

	// MaxExpandFrames is how many of those frames get their arguments
	// and locals materialized; deeper frames report a status stub.
	MaxExpandFrames int `yaml:"max_expand_frames"`

	// MaxProperties caps own-property children emitted per object or
	// array.
	MaxProperties int `yaml:"max_properties"`

	// MaxDataSize is the cumulative byte budget for captured values,
	// shared across locals and watch expressions.
	MaxDataSize int `yaml:"max_data_size"`

	// MaxStringLength truncates string values longer than this.
	MaxStringLength int `yaml:"max_string_length"`
}

// Log holds the logpoint throttling limits (spec §5).
type Log struct {
	// MaxLogsPerSecond is the token-bucket rate and burst for a single
	// logpoint's emissions.
	MaxLogsPerSecond int `yaml:"max_logs_per_second"`

	// LogDelaySeconds is how long a logpoint stays disabled after its
	// bucket empties, before being re-enabled.
	LogDelaySeconds int `yaml:"log_delay_seconds"`
}

// Config is the debuglet's full configuration (spec §6).
type Config struct {
	// WorkingDirectory is the root FileScanner walks.
	WorkingDirectory string `yaml:"working_directory"`

	// AppPathRelativeToRepository rebases server-supplied breakpoint
	// paths before FileScanner lookup.
	AppPathRelativeToRepository string `yaml:"app_path_relative_to_repository"`

	// BreakpointExpirationSec is the per-breakpoint TTL. Default() sets
	// it to 24h (86400s), which a file that omits it keeps; Validate
	// rejects zero and negative values.
	BreakpointExpirationSec int `yaml:"breakpoint_expiration_sec"`

	// BreakpointUpdateIntervalSec is the minimum gap between
	// successive updateBreakpoint calls for the same breakpoint. The
	// debuglet does not read it: it sends one update per breakpoint.
	BreakpointUpdateIntervalSec int `yaml:"breakpoint_update_interval_sec"`

	Capture Capture `yaml:"capture"`
	Log     Log     `yaml:"log"`

	// LogLevel is the minimum slog level name ("debug", "info",
	// "warn", "error").
	LogLevel string `yaml:"log_level"`

	// Enabled gates the entire agent. When false, Start returns
	// immediately without registering.
	Enabled bool `yaml:"enabled"`

	// ForceNewAgent bypasses any existing-agent detection a caller's
	// process-management layer performs. Peripheral: nothing in this
	// module reads it.
	ForceNewAgent bool `yaml:"force_new_agent_"`

	// ControllerURL is the base URL of the Debug Controller service
	// (spec §6). Not part of the original environment-variable set,
	// but required for this port since there is no baked-in default
	// production endpoint.
	ControllerURL string `yaml:"controller_url"`

	// ProjectID, when set, short-circuits projectid resolution
	// (explicit config takes priority over environment and the
	// metadata service, per spec §4.7).
	ProjectID string `yaml:"project_id"`

	// ServiceName and ServiceVersion populate the Debuggee's
	// description (spec §3).
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// Default returns a Config with every field at its documented default.
// It is not a fallback for a missing file — LoadFile always requires a
// file to exist — it only ensures zero-valued fields behave sensibly
// when the file omits them.
func Default() *Config {
	return &Config{
		WorkingDirectory:            ".",
		BreakpointExpirationSec:     int(24 * time.Hour / time.Second),
		BreakpointUpdateIntervalSec: 3,
		Capture: Capture{
			MaxFrames:       20,
			MaxExpandFrames: 5,
			MaxProperties:   10,
			MaxDataSize:     5 * 1024,
			MaxStringLength: 1024,
		},
		Log: Log{
			MaxLogsPerSecond: 50,
			LogDelaySeconds:  1,
		},
		LogLevel:      "info",
		Enabled:       true,
		ControllerURL: "https://clouddebugger.googleapis.com/v2/controller",
	}
}

// Load loads configuration from the path named by ConfigEnvVar. Returns
// an error if the variable is unset — there is no implicit fallback, so
// a missing config is always a loud failure rather than silent defaults
// in production.
func Load() (*Config, error) {
	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		return nil, fmt.Errorf("agentconfig: %s environment variable not set; "+
			"point it at the debuglet's YAML config file", ConfigEnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, then applies
// environment variable overrides (ApplyEnvOverrides).
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("agentconfig: parsing %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variable names for the peripheral per-field overrides
// named in spec §6. Read once at startup; the agent never re-polls
// the environment afterward.
const (
	envServiceName    = "GAE_SERVICE"
	envServiceVersion = "GAE_VERSION"
	envLogLevel       = "GCLOUD_DEBUG_LOGLEVEL"
	envDisable        = "GCLOUD_DEBUG_DISABLE"
	envSourceRoot     = "GCLOUD_DEBUG_SOURCE_ROOT"
)

// ApplyEnvOverrides applies the environment variable overrides on top
// of whatever the file specified. File values win only when the
// corresponding environment variable is unset.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(envServiceName); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv(envServiceVersion); v != "" {
		c.ServiceVersion = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envDisable); v == "1" || v == "true" {
		c.Enabled = false
	}
	if v := os.Getenv(envSourceRoot); v != "" {
		c.AppPathRelativeToRepository = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.WorkingDirectory == "" {
		return fmt.Errorf("agentconfig: working_directory is required")
	}
	if c.BreakpointExpirationSec <= 0 {
		return fmt.Errorf("agentconfig: breakpoint_expiration_sec must be positive")
	}
	if c.Capture.MaxFrames <= 0 || c.Capture.MaxExpandFrames <= 0 {
		return fmt.Errorf("agentconfig: capture.max_frames and capture.max_expand_frames must be positive")
	}
	if c.Capture.MaxExpandFrames > c.Capture.MaxFrames {
		return fmt.Errorf("agentconfig: capture.max_expand_frames cannot exceed capture.max_frames")
	}
	if c.Log.MaxLogsPerSecond <= 0 {
		return fmt.Errorf("agentconfig: log.max_logs_per_second must be positive")
	}
	if c.ControllerURL == "" {
		return fmt.Errorf("agentconfig: controller_url is required")
	}
	return nil
}
