// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package debugapi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg"
	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg/fakehost"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/scanner"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func newTestAPI(t *testing.T, files map[string]string) (*DebugAPI, *fakehost.Host, *scanner.Scanner) {
	t.Helper()
	root := writeTree(t, files)
	s, err := scanner.Scan(root, scanner.DefaultConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	host := fakehost.New(0)
	limits := agentconfig.Capture{MaxFrames: 20, MaxExpandFrames: 5, MaxProperties: 10, MaxDataSize: 5120, MaxStringLength: 1024}
	logLimits := agentconfig.Log{MaxLogsPerSecond: 10, LogDelaySeconds: 1}
	api := New(host, s, nil, clock.Fake(time.Unix(0, 0)), "", limits, logLimits)
	return api, host, s
}

func TestSetInstallsAndClearRemoves(t *testing.T) {
	api, host, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\nb();\nc();\n"})

	bp := &model.Breakpoint{ID: "bp1", Action: model.ActionCapture, Location: model.SourceLocation{Path: "fixtures/foo.js", Line: 2}}
	if err := api.Set(bp); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if api.NumBreakpoints() != 1 {
		t.Fatalf("NumBreakpoints = %d, want 1", api.NumBreakpoints())
	}

	if err := api.Clear("bp1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if api.NumBreakpoints() != 0 {
		t.Errorf("NumBreakpoints after Clear = %d, want 0", api.NumBreakpoints())
	}
	if err := api.Clear("bp1"); err == nil {
		t.Errorf("second Clear = nil, want error for unknown id")
	}
	_ = host
}

func TestSetRejectsMissingLocation(t *testing.T) {
	api, _, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})
	err := api.Set(&model.Breakpoint{ID: "bp1"})
	if err == nil {
		t.Fatalf("Set with no location = nil, want error")
	}
}

func TestSetRejectsLineBeyondFile(t *testing.T) {
	api, _, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})
	err := api.Set(&model.Breakpoint{ID: "bp1", Location: model.SourceLocation{Path: "fixtures/foo.js", Line: 99}})
	if err == nil {
		t.Fatalf("Set past end of file = nil, want error")
	}
}

func TestSetRejectsBadCondition(t *testing.T) {
	api, _, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})
	err := api.Set(&model.Breakpoint{
		ID:        "bp1",
		Location:  model.SourceLocation{Path: "fixtures/foo.js", Line: 1},
		Condition: "x = 1",
	})
	if err == nil {
		t.Fatalf("Set with assignment condition = nil, want BREAKPOINT_CONDITION error")
	}
	if be, ok := err.(*BreakpointError); !ok || be.RefersTo != model.RefersToCondition {
		t.Errorf("err = %+v, want a BreakpointError with RefersToCondition", err)
	}
}

func TestWaitFiresOnCapture(t *testing.T) {
	api, host, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})

	bp := &model.Breakpoint{ID: "bp1", Action: model.ActionCapture, Location: model.SourceLocation{Path: "fixtures/foo.js", Line: 1}}
	if err := api.Set(bp); err != nil {
		t.Fatalf("Set: %v", err)
	}

	done := make(chan *model.Breakpoint, 1)
	if err := api.Wait("bp1", func(result *model.Breakpoint, err error) {
		if err != nil {
			t.Errorf("wait callback error: %v", err)
		}
		done <- result
	}); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	frame := &fakehost.Frame{Function: "a", LocalVars: []hostdbg.NamedValue{{Name: "n", Value: hostdbg.Value{Kind: hostdbg.KindNumber, Primitive: "1"}}}}
	host.Fire(1, []hostdbg.Frame{frame})

	select {
	case result := <-done:
		if !result.IsFinalState {
			t.Errorf("result.IsFinalState = false, want true")
		}
		if len(result.StackFrames) != 1 {
			t.Errorf("len(StackFrames) = %d, want 1", len(result.StackFrames))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait callback never fired")
	}

	if api.NumBreakpoints() != 1 {
		t.Errorf("NumBreakpoints after a capture hit (before Clear) = %d, want still 1", api.NumBreakpoints())
	}
}

func TestCaptureOnlyFiresOnce(t *testing.T) {
	api, host, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})

	bp := &model.Breakpoint{ID: "bp1", Action: model.ActionCapture, Location: model.SourceLocation{Path: "fixtures/foo.js", Line: 1}}
	api.Set(bp)

	hits := make(chan struct{}, 2)
	api.Wait("bp1", func(*model.Breakpoint, error) { hits <- struct{}{} })

	host.Fire(1, []hostdbg.Frame{&fakehost.Frame{Function: "a"}})
	host.Fire(1, []hostdbg.Frame{&fakehost.Frame{Function: "a"}})

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("first hit never fired")
	}
	select {
	case <-hits:
		t.Fatal("capture fired a second time, want exactly one")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLogFormatsAndEmits(t *testing.T) {
	api, host, _ := newTestAPI(t, map[string]string{"fixtures/foo.js": "a();\n"})

	bp := &model.Breakpoint{
		ID: "bp1", Action: model.ActionLog,
		Location:         model.SourceLocation{Path: "fixtures/foo.js", Line: 1},
		LogMessageFormat: "hit: $0",
		Expressions:      []string{"1"},
	}
	if err := api.Set(bp); err != nil {
		t.Fatalf("Set: %v", err)
	}

	host.SetEvalResult("1", hostdbg.Value{Kind: hostdbg.KindNumber, Primitive: "1"})

	emitted := make(chan string, 10)
	if err := api.Log("bp1", func(s string) { emitted <- s }, func() bool { return false }); err != nil {
		t.Fatalf("Log: %v", err)
	}

	host.Fire(1, []hostdbg.Frame{&fakehost.Frame{Function: "a"}})

	select {
	case msg := <-emitted:
		if msg != "hit: 1" {
			t.Errorf("emitted = %q, want %q", msg, "hit: 1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("log never emitted")
	}
}
