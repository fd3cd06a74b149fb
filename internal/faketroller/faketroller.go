// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package faketroller is an in-process fake Debug Controller, built on
// httptest.NewServer the way the pack's mock LLM and mock homeserver
// test servers are (integration/mock_llm_test.go, messaging's session
// tests): canned, inspectable responses instead of a real backend, so
// internal/debuglet's control loop can be driven deterministically in
// tests without a network dependency.
package faketroller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
)

// Faketroller serves the three Controller endpoints spec §6 defines.
// All state is protected by one mutex since httptest.Server dispatches
// each request on its own goroutine.
type Faketroller struct {
	server *httptest.Server

	mu             sync.Mutex
	nextID         int
	debuggeeID     string
	isDisabled     bool
	breakpoints    []model.Breakpoint
	updates        []model.Breakpoint
	registerCount  int
	failNext       int
	failNextStatus int
	pollGate       chan struct{} // non-nil while a poll is held open
}

// New starts a Faketroller and returns it already listening. Call
// Close when done, typically via t.Cleanup.
func New() *Faketroller {
	f := &Faketroller{debuggeeID: "debuggee-0"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /debuggees/register", f.handleRegister)
	mux.HandleFunc("GET /debuggees/{id}/breakpoints", f.handleListBreakpoints)
	mux.HandleFunc("PUT /debuggees/{id}/breakpoints/{bpId}", f.handleUpdateBreakpoint)
	f.server = httptest.NewServer(mux)
	return f
}

// URL is the base URL to pass to controller.New.
func (f *Faketroller) URL() string { return f.server.URL }

// Close shuts down the underlying httptest.Server.
func (f *Faketroller) Close() { f.server.Close() }

// SetBreakpoints replaces the active set future ListBreakpoints calls
// report, and releases a poll being held open by HoldNextPoll. An empty
// or nil set is reported as an empty breakpoint list, not as
// waitExpired.
func (f *Faketroller) SetBreakpoints(bps []model.Breakpoint) {
	if bps == nil {
		bps = []model.Breakpoint{}
	}
	f.mu.Lock()
	f.breakpoints = bps
	gate := f.pollGate
	f.pollGate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// HoldNextPoll makes the next ListBreakpoints call block until
// SetBreakpoints or ReleasePoll is called, simulating a hanging GET
// that has not yet timed out.
func (f *Faketroller) HoldNextPoll() {
	f.mu.Lock()
	f.pollGate = make(chan struct{})
	f.mu.Unlock()
}

// ReleasePoll releases a poll held by HoldNextPoll without changing the
// active set; the released poll reports the current set, or waitExpired
// if SetBreakpoints has never been called.
func (f *Faketroller) ReleasePoll() {
	f.mu.Lock()
	gate := f.pollGate
	f.pollGate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// SetDisabled controls whether future register calls report
// isDisabled:true.
func (f *Faketroller) SetDisabled(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isDisabled = disabled
}

// FailNextRequests makes the next n requests to any endpoint respond
// with the given HTTP status instead of their normal behavior, for
// exercising internal/controller's retry/backoff path.
func (f *Faketroller) FailNextRequests(n int, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.failNextStatus = status
}

// RegisterCount returns how many register calls have been received.
func (f *Faketroller) RegisterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCount
}

// Updates returns every breakpoint reported via updateBreakpoint, in
// receipt order.
func (f *Faketroller) Updates() []model.Breakpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Breakpoint(nil), f.updates...)
}

// consumeFailure reports whether this request should be failed, and
// if so with what status, decrementing the counter.
func (f *Faketroller) consumeFailure() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext <= 0 {
		return false, 0
	}
	f.failNext--
	return true, f.failNextStatus
}

func (f *Faketroller) handleRegister(w http.ResponseWriter, r *http.Request) {
	if fail, status := f.consumeFailure(); fail {
		http.Error(w, "injected failure", status)
		return
	}

	f.mu.Lock()
	f.registerCount++
	disabled := f.isDisabled
	id := f.debuggeeID
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"debuggee": map[string]any{
			"id":         id,
			"isDisabled": disabled,
		},
		"activePeriodSec": 3600,
	})
}

func (f *Faketroller) handleListBreakpoints(w http.ResponseWriter, r *http.Request) {
	if fail, status := f.consumeFailure(); fail {
		http.Error(w, "injected failure", status)
		return
	}

	f.mu.Lock()
	gate := f.pollGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	bps := f.breakpoints
	f.mu.Unlock()

	if bps == nil {
		// No active set has been published yet: answer like a long
		// poll that timed out with no change.
		writeJSON(w, map[string]any{"waitExpired": true})
		return
	}
	writeJSON(w, map[string]any{"breakpoints": bps})
}

func (f *Faketroller) handleUpdateBreakpoint(w http.ResponseWriter, r *http.Request) {
	if fail, status := f.consumeFailure(); fail {
		http.Error(w, "injected failure", status)
		return
	}

	var body struct {
		DebuggeeID string          `json:"debuggeeId"`
		Breakpoint model.Breakpoint `json:"breakpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.updates = append(f.updates, body.Breakpoint)
	f.mu.Unlock()

	writeJSON(w, map[string]any{"kind": "debugger#breakpoint"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
