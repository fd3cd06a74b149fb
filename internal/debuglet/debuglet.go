// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package debuglet implements the Debuglet control loop (spec §4.7):
// the state machine that registers with the Controller, long-polls
// its active breakpoint set, reconciles that set against
// internal/debugapi, and reports finalized breakpoints back.
package debuglet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/controller"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/debugapi"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
)

// State names one node of the control loop's state machine (spec
// §4.7): INIT → REGISTERED → FETCHING ↔ UPDATING, terminal STOPPED.
type State string

const (
	StateInit       State = "INIT"
	StateRegistered State = "REGISTERED"
	StateFetching   State = "FETCHING"
	StateUpdating   State = "UPDATING"
	StateStopped    State = "STOPPED"
)

// defaultActivePeriod is used when the Controller's register response
// omits activePeriodSec, bounding how often an inactive (isDisabled)
// debuggee re-registers to check whether it has been re-enabled.
const defaultActivePeriod = 1 * time.Hour

// Options configures one Debuglet instance.
type Options struct {
	ProjectID      string
	ServiceName    string
	ServiceVersion string

	// Uniquifier identifies this process instance to the Controller,
	// alongside ProjectID (spec §3's Debuggee identity). Left empty,
	// New generates one with google/uuid — grounded on the same
	// generated-identifier idiom cmd/bureau-daemon uses for run ids.
	Uniquifier string

	Config agentconfig.Config
}

// tracked is what Debuglet remembers locally about one active
// breakpoint, independent of what debugapi.BreakpointData tracks.
type tracked struct {
	createTime time.Time
}

// Debuglet owns one Controller registration and its reconciliation
// against one DebugAPI instance. Its state, active set, and finalized
// guard are all protected by one mutex (the same single-owner-context
// idiom DebugAPI itself documents), since Controller responses arrive
// on Run's goroutine while capture-triggered finalization arrives on
// a goroutine debugapi.Wait's callback spawns.
type Debuglet struct {
	mu    sync.Mutex
	state State

	controller *controller.Client
	api        *debugapi.DebugAPI
	clock      clock.Clock
	logger     *slog.Logger
	opts       Options

	debuggeeID   string
	uniquifier   string
	active       bool // !isDisabled
	activePeriod time.Duration

	activeBreakpoints map[string]tracked
	finalized         map[string]bool

	runCtx context.Context
}

// New builds a Debuglet. It does not contact the Controller until Run
// is called.
func New(ctrl *controller.Client, api *debugapi.DebugAPI, clk clock.Clock, logger *slog.Logger, opts Options) *Debuglet {
	if logger == nil {
		logger = slog.Default()
	}
	uniquifier := opts.Uniquifier
	if uniquifier == "" {
		uniquifier = uuid.NewString()
	}
	opts.Uniquifier = uniquifier
	return &Debuglet{
		state:             StateInit,
		controller:        ctrl,
		api:               api,
		clock:             clk,
		logger:            logger,
		opts:              opts,
		uniquifier:        uniquifier,
		activeBreakpoints: make(map[string]tracked),
		finalized:         make(map[string]bool),
		activePeriod:      defaultActivePeriod,
	}
}

// State reports the control loop's current state.
func (d *Debuglet) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Debuglet) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run drives the control loop until ctx is canceled or registration
// fails permanently. It returns ctx.Err() on a normal shutdown.
func (d *Debuglet) Run(ctx context.Context) error {
	d.runCtx = ctx
	d.setState(StateInit)

	if err := d.register(ctx); err != nil {
		d.setState(StateStopped)
		return fmt.Errorf("debuglet: initial registration: %w", err)
	}

	for {
		if ctx.Err() != nil {
			d.setState(StateStopped)
			return ctx.Err()
		}

		d.mu.Lock()
		active := d.active
		period := d.activePeriod
		d.mu.Unlock()

		if !active {
			select {
			case <-ctx.Done():
				d.setState(StateStopped)
				return ctx.Err()
			case <-d.clock.After(period):
			}
			if err := d.register(ctx); err != nil {
				d.setState(StateStopped)
				return fmt.Errorf("debuglet: re-registration: %w", err)
			}
			continue
		}

		d.setState(StateFetching)
		result, err := d.controller.ListBreakpoints(ctx, d.debuggeeID)
		if err != nil {
			if ctx.Err() != nil {
				d.setState(StateStopped)
				return ctx.Err()
			}
			d.logger.Warn("listBreakpoints failed, re-registering", "error", err)
			if err := d.register(ctx); err != nil {
				d.setState(StateStopped)
				return fmt.Errorf("debuglet: re-registration after fetch failure: %w", err)
			}
			continue
		}

		d.setState(StateUpdating)
		if !result.WaitExpired {
			// waitExpired means the long poll simply timed out with no
			// change; breakpoints, when present, is the Controller's
			// complete current active set (not a diff), so only a
			// non-timeout response is reconciled against the local set.
			d.reconcile(ctx, result.Breakpoints)
		}
		d.expireOld(ctx)
	}
}

// register performs one POST register call and applies its result:
// caches the debuggee id, and flips d.active based on isDisabled
// (spec §4.7 "Registration").
func (d *Debuglet) register(ctx context.Context) error {
	debuggee := model.Debuggee{
		Project:      d.opts.ProjectID,
		Uniquifier:   d.uniquifier,
		Description:  d.opts.ServiceName,
		AgentVersion: "cloud-debug-go/1.0",
	}
	if d.opts.ServiceVersion != "" {
		debuggee.Labels = map[string]string{"version": d.opts.ServiceVersion}
	}

	result, err := d.controller.Register(ctx, debuggee)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.debuggeeID = result.Debuggee.ID
	d.active = !result.Debuggee.IsDisabled
	if result.ActivePeriodSec > 0 {
		d.activePeriod = time.Duration(result.ActivePeriodSec) * time.Second
	}
	d.mu.Unlock()

	d.setState(StateRegistered)
	if !d.active {
		d.logger.Info("debuggee registered but disabled", "id", result.Debuggee.ID)
	}
	return nil
}

// reconcile implements spec §4.7's fetch-loop diff: newSet = server -
// local, removedIds = local - server.
func (d *Debuglet) reconcile(ctx context.Context, serverBreakpoints []model.Breakpoint) {
	server := make(map[string]model.Breakpoint, len(serverBreakpoints))
	for _, bp := range serverBreakpoints {
		server[bp.ID] = bp
	}

	d.mu.Lock()
	var removedIDs []string
	for id := range d.activeBreakpoints {
		if _, ok := server[id]; !ok {
			removedIDs = append(removedIDs, id)
		}
	}
	var newSet []model.Breakpoint
	for id, bp := range server {
		if _, tracked := d.activeBreakpoints[id]; tracked {
			continue
		}
		if d.finalized[id] {
			continue
		}
		newSet = append(newSet, bp)
	}
	d.mu.Unlock()

	for _, id := range removedIDs {
		if err := d.api.Clear(id); err != nil {
			d.logger.Warn("clearing removed breakpoint failed", "id", id, "error", err)
		}
		d.mu.Lock()
		delete(d.activeBreakpoints, id)
		d.mu.Unlock()
	}

	for _, bp := range newSet {
		d.install(ctx, bp)
	}
}

// install sets one newly-seen breakpoint and registers the listener
// matching its action. A failed set is reported once, immediately
// (spec §4.7's "if set fails, immediately updateBreakpoint with the
// Error status").
func (d *Debuglet) install(ctx context.Context, bp model.Breakpoint) {
	copied := bp
	createTime := d.clock.Now()
	copied.CreateTime = createTime.Format(time.RFC3339)

	if err := d.api.Set(&copied); err != nil {
		d.finalizeWithError(ctx, copied, err)
		return
	}

	d.mu.Lock()
	d.activeBreakpoints[bp.ID] = tracked{createTime: createTime}
	d.mu.Unlock()

	switch copied.DefaultAction() {
	case model.ActionCapture:
		if err := d.api.Wait(bp.ID, d.onCaptureResult); err != nil {
			d.logger.Warn("registering wait listener failed", "id", bp.ID, "error", err)
		}
	case model.ActionLog:
		id := bp.ID
		emit := func(message string) {
			d.logger.Info("logpoint", "breakpoint", id, "message", message)
		}
		shouldStop := func() bool {
			d.mu.Lock()
			_, stillActive := d.activeBreakpoints[id]
			d.mu.Unlock()
			return !stillActive
		}
		if err := d.api.Log(bp.ID, emit, shouldStop); err != nil {
			d.logger.Warn("registering log listener failed", "id", bp.ID, "error", err)
		}
	}
}

// onCaptureResult is DebugAPI's Wait callback for a CAPTURE
// breakpoint: it runs on the goroutine debugapi.Wait spawns (spec
// §4.7 "Capture-triggered finalization").
func (d *Debuglet) onCaptureResult(result *model.Breakpoint, err error) {
	var id string
	if result != nil {
		id = result.ID
	}

	d.mu.Lock()
	if id == "" {
		d.mu.Unlock()
		return
	}
	if d.finalized[id] {
		d.mu.Unlock()
		return
	}
	d.finalized[id] = true
	delete(d.activeBreakpoints, id)
	d.mu.Unlock()

	final := result
	if err != nil {
		final = &model.Breakpoint{
			ID:           id,
			IsFinalState: true,
			Status: &model.Status{
				IsError:  true,
				RefersTo: model.RefersToUnspecified,
				Description: model.FormatMessage{Format: "Unable to capture state: " + err.Error()},
			},
		}
	}

	d.report(final)
	if clearErr := d.api.Clear(id); clearErr != nil {
		d.logger.Warn("clearing finalized breakpoint failed", "id", id, "error", clearErr)
	}
}

// finalizeWithError handles a failed Set (spec §4.7's install
// failure path): report the error immediately and mark finalized so
// the id is never re-installed if it reappears in a later poll.
func (d *Debuglet) finalizeWithError(ctx context.Context, bp model.Breakpoint, err error) {
	d.mu.Lock()
	d.finalized[bp.ID] = true
	d.mu.Unlock()

	refersTo := model.RefersToUnspecified
	var be *debugapi.BreakpointError
	if errors.As(err, &be) {
		refersTo = be.RefersTo
	}
	failed := bp
	failed.IsFinalState = true
	failed.Status = &model.Status{
		IsError:     true,
		RefersTo:    refersTo,
		Description: model.FormatMessage{Format: err.Error()},
	}
	d.report(&failed)
}

// expireOld finalizes every tracked breakpoint whose age has reached
// breakpointExpirationSec (spec §4.7 "Expiration"), guarded by the
// same finalized map so a breakpoint that reappears after expiring is
// never re-updated.
func (d *Debuglet) expireOld(ctx context.Context) {
	expiration := time.Duration(d.opts.Config.BreakpointExpirationSec) * time.Second
	now := d.clock.Now()

	d.mu.Lock()
	var expired []string
	for id, t := range d.activeBreakpoints {
		if now.Sub(t.createTime) >= expiration {
			expired = append(expired, id)
		}
	}
	d.mu.Unlock()

	for _, id := range expired {
		d.mu.Lock()
		if d.finalized[id] {
			delete(d.activeBreakpoints, id)
			d.mu.Unlock()
			continue
		}
		d.finalized[id] = true
		delete(d.activeBreakpoints, id)
		d.mu.Unlock()

		d.report(&model.Breakpoint{
			ID:           id,
			IsFinalState: true,
			Status: &model.Status{
				IsError:     true,
				RefersTo:    model.RefersToUnspecified,
				Description: model.FormatMessage{Format: "The snapshot has expired"},
			},
		})
		if err := d.api.Clear(id); err != nil {
			d.logger.Warn("clearing expired breakpoint failed", "id", id, "error", err)
		}
	}
}

// report sends one final breakpoint to the Controller. Failures are
// logged and dropped per spec §5's cancellation policy: "on
// exhaustion, log and drop ... it is better to forget than to loop."
// internal/controller already retries transient failures internally;
// this only handles what survives that retry budget.
func (d *Debuglet) report(bp *model.Breakpoint) {
	ctx := d.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.controller.UpdateBreakpoint(ctx, d.debuggeeID, *bp); err != nil {
		d.logger.Warn("updateBreakpoint failed, dropping", "id", bp.ID, "error", err)
	}
}
