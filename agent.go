// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package clouddebug is the module's public entry point. It is a thin
// construction layer: Start wires internal/agentconfig,
// internal/projectid, hostdbg/gojahost, internal/debugapi,
// internal/controller, and internal/debuglet together and hands back a
// running Agent. It carries no control-loop logic of its own — that
// lives in internal/debuglet.
package clouddebug

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg/gojahost"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/controller"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/debugapi"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/debuglet"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/projectid"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/scanner"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/sourcemapper"
)

// Options configures Start.
type Options struct {
	// Config, when non-nil, is used as-is instead of loading one via
	// agentconfig.Load — mainly for tests and callers that already
	// hold a parsed configuration.
	Config *agentconfig.Config

	// Logger receives every wired component's structured logs.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient backs both the Controller client and metadata-service
	// project id resolution. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Agent is a running debuglet. The zero value is not usable; obtain
// one from Start.
type Agent struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start loads configuration (unless Options.Config is set), resolves
// the project id, scans the working directory, and launches the
// debuglet control loop on a background goroutine. It returns
// (nil, nil) without starting anything when the configuration has
// Enabled: false.
func Start(ctx context.Context, opts Options) (*Agent, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := agentconfig.Load()
		if err != nil {
			return nil, fmt.Errorf("clouddebug: loading configuration: %w", err)
		}
		cfg = loaded
	}
	if !cfg.Enabled {
		return nil, nil
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	projectID, err := projectid.Resolve(ctx, cfg.ProjectID, projectid.MetadataResolver{HTTPClient: httpClient})
	if err != nil {
		return nil, fmt.Errorf("clouddebug: resolving project id: %w", err)
	}

	scn, err := scanner.Scan(cfg.WorkingDirectory, scanner.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("clouddebug: scanning %s: %w", cfg.WorkingDirectory, err)
	}

	var mapper *sourcemapper.Mapper
	mapPaths, err := findSourceMaps(cfg.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("clouddebug: finding source maps: %w", err)
	}
	if len(mapPaths) > 0 {
		mapper, err = sourcemapper.Load(mapPaths)
		if err != nil {
			return nil, fmt.Errorf("clouddebug: loading source maps: %w", err)
		}
	}

	clk := clock.Real()
	host := gojahost.New(logger)
	if err := loadScripts(ctx, host, scn); err != nil {
		return nil, fmt.Errorf("clouddebug: loading scanned sources into the host runtime: %w", err)
	}
	api := debugapi.New(host, scn, mapper, clk, cfg.AppPathRelativeToRepository, cfg.Capture, cfg.Log)
	ctrl := controller.New(httpClient, cfg.ControllerURL, clk, logger)
	dl := debuglet.New(ctrl, api, clk, logger, debuglet.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		ProjectID:      projectID,
		Config:         *cfg,
	})

	runCtx, cancel := context.WithCancel(ctx)
	agent := &Agent{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(agent.done)
		if err := dl.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error("debuglet control loop exited", "error", err)
			agent.err = err
		}
	}()

	return agent, nil
}

// Stop cancels the control loop and waits for it to exit. Safe to
// call on a nil Agent (the Enabled: false case Start returns).
func (a *Agent) Stop() {
	if a == nil {
		return
	}
	a.cancel()
	<-a.done
}

// Err returns the control loop's exit error, if it stopped for a
// reason other than Stop being called. Only meaningful after Stop
// returns or the loop has otherwise exited.
func (a *Agent) Err() error {
	if a == nil {
		return nil
	}
	return a.err
}

// loadScripts compiles and runs every file scn discovered under the
// goja VM host, so the filenames debugapi.Set later passes to
// runtime.SetBreakpoint actually name something the VM has loaded
// (hostdbg.Runtime.SetBreakpoint can only address code host.LoadScript
// has already compiled). Without this step, installed breakpoints
// would never fire: the debugger backend has nothing to pause in.
func loadScripts(ctx context.Context, host *gojahost.Host, scn *scanner.Scanner) error {
	for _, path := range scn.Files() {
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := host.LoadScript(ctx, path, string(source)); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// findSourceMaps walks root for .map files, the same tree FileScanner
// scans, so SourceMapper picks up every transpiled source map without
// separate configuration.
func findSourceMaps(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".map" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
