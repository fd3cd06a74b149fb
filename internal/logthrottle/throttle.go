// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package logthrottle implements the per-logpoint rate limiting spec §5
// describes: a token bucket bounds how many LOG actions fire per second,
// and once the bucket empties the logpoint goes quiet for a configured
// cooldown before being considered again. Each Breakpoint owns its own
// Throttle — never shared, so one noisy logpoint can't starve another.
package logthrottle

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
)

// Throttle gates emissions for a single logpoint. The token bucket
// (rate.Limiter) decides whether a given instant may emit; once it
// refuses, the logpoint is disabled for delay and a clock-driven timer
// re-enables it unless shouldStop reports the breakpoint should stay
// off (e.g. because it was cleared in the meantime).
type Throttle struct {
	clock clock.Clock
	limit *rate.Limiter
	delay time.Duration

	mu      chan struct{} // 1-buffered mutex; see lock/unlock below
	enabled bool
	timer   *clock.Timer
}

// New returns a Throttle with the given per-second rate and burst
// (maxLogsPerSecond, matching agentconfig.Log.MaxLogsPerSecond for
// both) and a re-enable delay of delaySeconds.
func New(clk clock.Clock, maxLogsPerSecond, delaySeconds int) *Throttle {
	t := &Throttle{
		clock: clk,
		limit: rate.NewLimiter(rate.Limit(maxLogsPerSecond), maxLogsPerSecond),
		delay: time.Duration(delaySeconds) * time.Second,
		mu:    make(chan struct{}, 1),
	}
	t.mu <- struct{}{}
	t.enabled = true
	return t
}

func (t *Throttle) lock()   { <-t.mu }
func (t *Throttle) unlock() { t.mu <- struct{}{} }

// Allow reports whether a logpoint emission may proceed right now. A
// false return either means the logpoint is already in its cooldown
// window, or this call found the bucket empty and started the
// cooldown. shouldStop is consulted only when the cooldown
// timer fires; if it reports true the logpoint stays disabled instead
// of being re-enabled (spec §5's "breakpoint removed during cooldown"
// case).
func (t *Throttle) Allow(shouldStop func() bool) bool {
	t.lock()
	defer t.unlock()

	if !t.enabled {
		return false
	}
	if t.limit.AllowN(t.clock.Now(), 1) {
		return true
	}

	t.enabled = false
	t.timer = t.clock.AfterFunc(t.delay, func() {
		t.lock()
		defer t.unlock()
		if shouldStop != nil && shouldStop() {
			return
		}
		t.enabled = true
	})
	return false
}

// Stop cancels any pending re-enable timer, leaving the logpoint
// disabled. DebugAPI calls this when a logpoint is cleared so a timer
// firing after removal doesn't resurrect a stale enabled state.
func (t *Throttle) Stop() {
	t.lock()
	defer t.unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}
