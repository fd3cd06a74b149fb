// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/faketroller"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
)

func newTestClient(t *testing.T, f *faketroller.Faketroller) *Client {
	t.Helper()
	return New(http.DefaultClient, f.URL(), clock.Fake(time.Unix(0, 0)), nil)
}

// newRetryTestClient uses a real clock: these tests exercise the
// backoff-between-attempts path, and a fake clock never advances on
// its own, so clock.After(backoff) would block forever waiting for an
// Advance call nothing in the test issues.
func newRetryTestClient(t *testing.T, f *faketroller.Faketroller) *Client {
	t.Helper()
	return New(http.DefaultClient, f.URL(), clock.Real(), nil)
}

func TestRegisterReturnsDebuggeeID(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newTestClient(t, f)

	result, err := c.Register(context.Background(), model.Debuggee{Project: "p", Uniquifier: "u"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Debuggee.ID == "" {
		t.Errorf("Debuggee.ID is empty")
	}
	if f.RegisterCount() != 1 {
		t.Errorf("RegisterCount = %d, want 1", f.RegisterCount())
	}
}

func TestListBreakpointsReportsWaitExpiredWhenEmpty(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newTestClient(t, f)

	result, err := c.ListBreakpoints(context.Background(), "debuggee-0")
	if err != nil {
		t.Fatalf("ListBreakpoints: %v", err)
	}
	if !result.WaitExpired {
		t.Errorf("WaitExpired = false, want true before any active set is published")
	}
	if len(result.Breakpoints) != 0 {
		t.Errorf("Breakpoints = %v, want empty", result.Breakpoints)
	}
}

func TestListBreakpointsReturnsActiveSet(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newTestClient(t, f)

	f.SetBreakpoints([]model.Breakpoint{{ID: "bp1", Location: model.SourceLocation{Path: "a.js", Line: 2}}})

	result, err := c.ListBreakpoints(context.Background(), "debuggee-0")
	if err != nil {
		t.Fatalf("ListBreakpoints: %v", err)
	}
	if len(result.Breakpoints) != 1 || result.Breakpoints[0].ID != "bp1" {
		t.Fatalf("Breakpoints = %+v, want one entry bp1", result.Breakpoints)
	}
}

func TestUpdateBreakpointIsRecorded(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newTestClient(t, f)

	bp := model.Breakpoint{ID: "bp1", IsFinalState: true}
	if err := c.UpdateBreakpoint(context.Background(), "debuggee-0", bp); err != nil {
		t.Fatalf("UpdateBreakpoint: %v", err)
	}

	updates := f.Updates()
	if len(updates) != 1 || updates[0].ID != "bp1" || !updates[0].IsFinalState {
		t.Fatalf("Updates = %+v, want one final bp1", updates)
	}
}

func TestRegisterRetriesTransientFailure(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newRetryTestClient(t, f)

	f.FailNextRequests(2, http.StatusServiceUnavailable)

	result, err := c.Register(context.Background(), model.Debuggee{Project: "p", Uniquifier: "u"})
	if err != nil {
		t.Fatalf("Register after transient failures: %v", err)
	}
	if result.Debuggee.ID == "" {
		t.Errorf("Debuggee.ID is empty")
	}
	if f.RegisterCount() != 1 {
		t.Errorf("RegisterCount = %d, want 1 (the two failed attempts return before incrementing the counter)", f.RegisterCount())
	}
}

func TestRegisterDoesNotRetryPermanentFailure(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newRetryTestClient(t, f)

	f.FailNextRequests(1, http.StatusBadRequest)

	_, err := c.Register(context.Background(), model.Debuggee{Project: "p", Uniquifier: "u"})
	if err == nil {
		t.Fatalf("Register with a permanent 400 = nil error, want a failure")
	}
	if f.RegisterCount() != 0 {
		t.Errorf("RegisterCount = %d, want 0 (permanent failure should not retry into a success)", f.RegisterCount())
	}
}

func TestListBreakpointsBlocksUntilReleased(t *testing.T) {
	f := faketroller.New()
	t.Cleanup(f.Close)
	c := newTestClient(t, f)

	f.HoldNextPoll()

	done := make(chan error, 1)
	go func() {
		_, err := c.ListBreakpoints(context.Background(), "debuggee-0")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("ListBreakpoints returned before the poll was released")
	case <-time.After(100 * time.Millisecond):
	}

	f.ReleasePoll()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListBreakpoints: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListBreakpoints never returned after release")
	}
}
