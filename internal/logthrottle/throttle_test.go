// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package logthrottle

import (
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
)

func TestAllowExhaustsBucketThenCoolsDown(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	th := New(fake, 2, 1)

	if !th.Allow(nil) {
		t.Fatalf("first Allow() = false, want true (burst not yet exhausted)")
	}
	if !th.Allow(nil) {
		t.Fatalf("second Allow() = false, want true (burst not yet exhausted)")
	}
	if th.Allow(nil) {
		t.Fatalf("third Allow() = true, want false (burst exhausted, cooldown starts)")
	}
	if th.Allow(nil) {
		t.Fatalf("Allow() during cooldown = true, want false")
	}

	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	if !th.Allow(nil) {
		t.Errorf("Allow() after cooldown elapses = false, want true")
	}
}

func TestAllowStaysDisabledWhenShouldStop(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	th := New(fake, 1, 1)

	if !th.Allow(nil) {
		t.Fatalf("first Allow() = false, want true")
	}
	if th.Allow(func() bool { return true }) {
		t.Fatalf("second Allow() = true, want false")
	}

	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	if th.Allow(nil) {
		t.Errorf("Allow() after cooldown with shouldStop=true = true, want to remain disabled")
	}
}

func TestStopCancelsPendingReenable(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	th := New(fake, 1, 1)

	th.Allow(nil)
	th.Allow(nil) // exhausts the bucket, schedules the re-enable timer

	th.Stop()
	fake.Advance(time.Second)

	if th.Allow(nil) {
		t.Errorf("Allow() after Stop() = true, want the logpoint to remain disabled")
	}
}
