// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package agentconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "debugger.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "working_directory: /srv/app\ncontroller_url: https://example.test/v2/controller\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Capture.MaxFrames != Default().Capture.MaxFrames {
		t.Errorf("Capture.MaxFrames = %d, want default %d", cfg.Capture.MaxFrames, Default().Capture.MaxFrames)
	}
	if cfg.BreakpointExpirationSec != 86400 {
		t.Errorf("BreakpointExpirationSec = %d, want 86400", cfg.BreakpointExpirationSec)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
working_directory: /srv/app
controller_url: https://example.test/v2/controller
capture:
  max_frames: 5
  max_expand_frames: 2
  max_properties: 3
  max_data_size: 100
  max_string_length: 50
log:
  max_logs_per_second: 1
  log_delay_seconds: 1
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Capture.MaxFrames != 5 || cfg.Capture.MaxExpandFrames != 2 {
		t.Errorf("Capture = %+v, want overridden limits", cfg.Capture)
	}
	if cfg.Log.MaxLogsPerSecond != 1 {
		t.Errorf("Log.MaxLogsPerSecond = %d, want 1", cfg.Log.MaxLogsPerSecond)
	}
}

func TestLoadMissingEnvVar(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with no env var set: want error, got nil")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(envServiceName, "checkout")
	t.Setenv(envServiceVersion, "v3")
	t.Setenv(envDisable, "1")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.ServiceName != "checkout" || cfg.ServiceVersion != "v3" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Enabled {
		t.Error("Enabled = true, want false after GCLOUD_DEBUG_DISABLE=1")
	}
}

func TestValidateRejectsInvertedFrameLimits(t *testing.T) {
	cfg := Default()
	cfg.Capture.MaxExpandFrames = cfg.Capture.MaxFrames + 1

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate(): want error when max_expand_frames exceeds max_frames")
	}
}
