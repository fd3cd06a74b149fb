// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package clouddebug

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/faketroller"
)

func TestStartRunsUntilStop(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "foo.js"), []byte("a();\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f := faketroller.New()
	t.Cleanup(f.Close)

	cfg := agentconfig.Default()
	cfg.WorkingDirectory = root
	cfg.ControllerURL = f.URL()
	cfg.ProjectID = "proj"
	cfg.ServiceName = "svc"

	agent, err := Start(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if agent == nil {
		t.Fatal("Start returned a nil Agent for an enabled configuration")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.RegisterCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.RegisterCount() == 0 {
		t.Fatal("debuglet never registered with the Controller")
	}

	agent.Stop()
	if err := agent.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after a normal Stop", err)
	}
}

func TestStartReturnsNilAgentWhenDisabled(t *testing.T) {
	cfg := agentconfig.Default()
	cfg.Enabled = false

	agent, err := Start(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if agent != nil {
		t.Errorf("agent = %v, want nil when Enabled is false", agent)
	}
	agent.Stop()
}
