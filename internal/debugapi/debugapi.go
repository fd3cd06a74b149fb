// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package debugapi implements DebugAPI (spec §4.5): the layer between
// Debuglet's control loop and one hostdbg.Runtime instance. It resolves
// a breakpoint's user-supplied location against internal/scanner and
// internal/sourcemapper, installs it on the low-level debugger,
// evaluates its condition on every pause, and dispatches to whichever
// listener Debuglet registered — a one-shot Wait for CAPTURE actions,
// a persistent, throttled Log for LOG actions.
package debugapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja/ast"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/capture"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/clock"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/expression"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/logthrottle"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/scanner"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/sourcemapper"
)

// BreakpointError carries the status.refersTo taxonomy (spec §7)
// through Go's error chain, so a caller can errors.As it into a wire
// model.Status without debugapi depending on the controller package.
type BreakpointError struct {
	RefersTo model.RefersTo
	Message  string
}

func (e *BreakpointError) Error() string { return e.Message }

func rejected(refersTo model.RefersTo, format string, args ...any) error {
	return &BreakpointError{RefersTo: refersTo, Message: fmt.Sprintf(format, args...)}
}

// BreakpointData is the per-breakpoint install record DebugAPI keeps
// alive for as long as a breakpoint is set (spec §4.5).
type BreakpointData struct {
	lowLevelID int
	active     bool

	// ast is the parsed condition, cached from internal/expression's
	// validation pass at set time. gojahost's EvaluateInFrame takes a
	// source string rather than a pre-parsed AST, so this field is not
	// itself re-consumed on every hit — it is kept so a future backend
	// capable of evaluating a pre-parsed expression could use it
	// without changing BreakpointData's shape. condition is what every
	// hit actually re-evaluates.
	ast       ast.Expression
	condition string

	original *model.Breakpoint
	throttle *logthrottle.Throttle
}

// listener is whichever callback Debuglet registered for one
// breakpoint id: at most one of wait or log is non-nil.
type listener struct {
	wait func(*model.Breakpoint, error)

	emit       func(string)
	shouldStop func() bool
}

// DebugAPI wraps one hostdbg.Runtime instance (spec §4.5). All public
// methods take DebugAPI's mutex, satisfying spec §5's requirement that
// "every public entry point ... must finish its state mutation before
// the next pause can be dispatched" — the mutex is this port's
// equivalent of the original agent's single-threaded cooperative
// scheduler, since the pause handler and Debuglet's control loop run
// on different goroutines here rather than sharing one JS call stack.
type DebugAPI struct {
	mu sync.Mutex

	runtime hostdbg.Runtime
	scanner *scanner.Scanner
	mapper  *sourcemapper.Mapper
	engine  *capture.Engine
	clock   clock.Clock

	appPathRelativeToRepository string
	captureLimits                agentconfig.Capture
	logLimits                     agentconfig.Log

	breakpoints  map[string]*BreakpointData
	listeners    map[string]*listener
	byLowLevelID map[int]string
}

// New builds a DebugAPI over runtime, registering its own pause
// handler. scn and mapper may be nil: a nil mapper means no source
// maps were found (every location resolves through scn's fuzzy
// rules); scn must not be nil.
func New(runtime hostdbg.Runtime, scn *scanner.Scanner, mapper *sourcemapper.Mapper, clk clock.Clock, appPathRelativeToRepository string, captureLimits agentconfig.Capture, logLimits agentconfig.Log) *DebugAPI {
	d := &DebugAPI{
		runtime:                      runtime,
		scanner:                      scn,
		mapper:                       mapper,
		engine:                       capture.New(runtime),
		clock:                        clk,
		appPathRelativeToRepository:  appPathRelativeToRepository,
		captureLimits:                captureLimits,
		logLimits:                    logLimits,
		breakpoints:                  make(map[string]*BreakpointData),
		listeners:                    make(map[string]*listener),
		byLowLevelID:                 make(map[int]string),
	}
	runtime.OnPause(d.handlePause)
	return d
}

// Set validates and installs bp (spec §4.5 "set"). On success, stores
// a BreakpointData keyed by bp.ID. Go's synchronous error return
// replaces the original callback-resolution convention: there is no
// async boundary to preserve once installation has no I/O of its own.
func (d *DebugAPI) Set(bp *model.Breakpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bp.ID == "" || bp.Location.Path == "" || bp.Location.Line <= 0 {
		return rejected(model.RefersToUnspecified, "INVALID_BREAKPOINT: missing id or location")
	}
	if _, exists := d.breakpoints[bp.ID]; exists {
		return rejected(model.RefersToUnspecified, "INVALID_BREAKPOINT: id %q already set", bp.ID)
	}
	if bp.DefaultAction() != model.ActionCapture && bp.DefaultAction() != model.ActionLog {
		return rejected(model.RefersToUnspecified, "only actions are CAPTURE/LOG")
	}

	file, line0, col0, err := d.resolveLocation(bp.Location)
	if err != nil {
		return err
	}

	var compiled ast.Expression
	condition := bp.Condition
	if !expression.IsUnconditional(condition) {
		compiled, err = expression.Validate(condition)
		if err != nil {
			return rejected(model.RefersToCondition, "%s", err.Error())
		}
	} else {
		condition = ""
	}

	lowLevelID, err := d.runtime.SetBreakpoint(file, line0, col0, "")
	if err != nil {
		return rejected(model.RefersToSourceLocation, "installing breakpoint: %s", err.Error())
	}

	copied := *bp
	d.breakpoints[bp.ID] = &BreakpointData{
		lowLevelID: lowLevelID,
		active:     true,
		ast:        compiled,
		condition:  condition,
		original:   &copied,
	}
	d.byLowLevelID[lowLevelID] = bp.ID
	return nil
}

// resolveLocation implements spec §4.5's "Location resolution":
// translate through the source map when one covers loc.Path,
// otherwise resolve via FileScanner's fuzzy rules; either way shift a
// line-1 column by the host runtime's module-wrap prefix length.
func (d *DebugAPI) resolveLocation(loc model.SourceLocation) (file string, line0, col0 int, err error) {
	requestedLine0 := loc.Line - 1

	if d.mapper != nil && d.mapper.HasMapping(loc.Path) {
		pos, ok := d.mapper.MappingInfo(loc.Path, requestedLine0, loc.Column)
		if !ok {
			return "", 0, 0, rejected(model.RefersToSourceLocation, "no generated position for %s:%d", loc.Path, loc.Line)
		}
		file, line0, col0 = pos.File, pos.Line0Based, pos.Column0Based
	} else {
		matches := d.scanner.FindScripts(loc.Path, d.appPathRelativeToRepository)
		switch len(matches) {
		case 0:
			return "", 0, 0, rejected(model.RefersToSourceLocation, "source location not found: %s", loc.Path)
		case 1:
			file = matches[0]
		default:
			return "", 0, 0, rejected(model.RefersToSourceLocation, "source location is ambiguous: %s", loc.Path)
		}

		stats, ok := d.scanner.Stat(file)
		if !ok {
			return "", 0, 0, rejected(model.RefersToSourceLocation, "source location not found: %s", loc.Path)
		}
		if loc.Line > stats.LineCount {
			return "", 0, 0, rejected(model.RefersToSourceLocation, "line %d beyond %s's %d lines", loc.Line, loc.Path, stats.LineCount)
		}
		line0, col0 = requestedLine0, loc.Column
	}

	if line0 == 0 {
		col0 += d.runtime.ModuleWrapPrefixLength()
	}
	return file, line0, col0, nil
}

// Clear removes a breakpoint's low-level hook and drops its stored
// data and listener (spec §4.5 "clear"). Clearing an unknown id is an
// error; clearing twice is safe since the second call hits that error
// path without side effects.
func (d *DebugAPI) Clear(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.breakpoints[id]
	if !ok {
		return fmt.Errorf("debugapi: clear: unknown breakpoint %q", id)
	}

	if err := d.runtime.RemoveBreakpoint(data.lowLevelID); err != nil {
		return fmt.Errorf("debugapi: clear: removing low-level breakpoint: %w", err)
	}
	if data.throttle != nil {
		data.throttle.Stop()
	}

	delete(d.breakpoints, id)
	delete(d.listeners, id)
	delete(d.byLowLevelID, data.lowLevelID)
	return nil
}

// Wait registers a one-shot listener resolving cb with the first hit
// or error (spec §4.5 "wait"). cb runs on a new goroutine, the
// equivalent of the original's "deferred to a fresh turn" — an
// unrecovered panic inside cb then terminates only that goroutine
// rather than unwinding into the pause dispatch.
func (d *DebugAPI) Wait(id string, cb func(*model.Breakpoint, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.breakpoints[id]; !ok {
		return fmt.Errorf("debugapi: wait: unknown breakpoint %q", id)
	}
	d.listeners[id] = &listener{wait: cb}
	return nil
}

// Log registers a persistent listener that renders logMessageFormat
// on every hit and calls emit with the result, throttled per spec §5,
// until shouldStop reports true (spec §4.5 "log").
func (d *DebugAPI) Log(id string, emit func(string), shouldStop func() bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.breakpoints[id]
	if !ok {
		return fmt.Errorf("debugapi: log: unknown breakpoint %q", id)
	}
	if data.throttle == nil {
		data.throttle = logthrottle.New(d.clock, d.logLimits.MaxLogsPerSecond, d.logLimits.LogDelaySeconds)
	}
	d.listeners[id] = &listener{emit: emit, shouldStop: shouldStop}
	return nil
}

// Disconnect tears down the low-level debugger session and drops all
// local state (spec §4.5 "disconnect").
func (d *DebugAPI) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.runtime.Disconnect()
	d.breakpoints = make(map[string]*BreakpointData)
	d.listeners = make(map[string]*listener)
	d.byLowLevelID = make(map[int]string)
	return err
}

// NumBreakpoints reports how many breakpoints are currently installed.
func (d *DebugAPI) NumBreakpoints() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.breakpoints)
}

// NumListeners reports how many listeners (wait or log) are currently
// registered.
func (d *DebugAPI) NumListeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// handlePause is the single hostdbg.PauseHandler registered for every
// installed breakpoint; it dispatches by PauseEvent.BreakpointID.
func (d *DebugAPI) handlePause(ev hostdbg.PauseEvent) {
	d.mu.Lock()
	id, ok := d.byLowLevelID[ev.BreakpointID]
	if !ok {
		d.mu.Unlock()
		return
	}
	data := d.breakpoints[id]
	lst := d.listeners[id]
	if data == nil || !data.active || len(ev.Frames) == 0 {
		d.mu.Unlock()
		return
	}
	top := ev.Frames[0]

	action := data.original.DefaultAction()

	if data.condition != "" {
		v, err := d.runtime.EvaluateInFrame(context.Background(), top, data.condition, true)
		if err != nil {
			if action == model.ActionCapture {
				data.active = false
			}
			d.mu.Unlock()
			if action == model.ActionCapture && lst != nil && lst.wait != nil {
				cb := lst.wait
				bp := *data.original
				go cb(&bp, rejected(model.RefersToCondition, "%s", err.Error()))
			}
			return
		}
		if !truthy(v) {
			d.mu.Unlock()
			return
		}
	}

	if lst == nil {
		d.mu.Unlock()
		return
	}

	switch action {
	case model.ActionCapture:
		data.active = false
		d.mu.Unlock()
		d.fireCapture(id, data, lst, top, ev.Frames)
	case model.ActionLog:
		d.mu.Unlock()
		d.fireLog(id, data, lst, top, ev.Frames)
	default:
		d.mu.Unlock()
	}
}

// fireCapture runs CaptureEngine against the paused frames and
// resolves the registered Wait listener with the populated breakpoint.
func (d *DebugAPI) fireCapture(id string, data *BreakpointData, lst *listener, top hostdbg.Frame, frames []hostdbg.Frame) {
	eval := func(expr string) (hostdbg.Value, error) {
		return d.runtime.EvaluateInFrame(context.Background(), top, expr, true)
	}
	result := d.engine.Capture(frames, d.captureLimits, data.original.Expressions, eval)

	populated := *data.original
	populated.StackFrames = result.StackFrames
	populated.VariableTable = result.VariableTable
	populated.EvaluatedExpressions = result.EvaluatedExpressions
	populated.IsFinalState = true

	if lst.wait != nil {
		cb := lst.wait
		go cb(&populated, nil)
	}
}

// fireLog throttles, formats, and emits one logpoint hit.
func (d *DebugAPI) fireLog(id string, data *BreakpointData, lst *listener, top hostdbg.Frame, frames []hostdbg.Frame) {
	if lst.shouldStop != nil && lst.shouldStop() {
		return
	}
	shouldStop := func() bool {
		d.mu.Lock()
		_, stillSet := d.breakpoints[id]
		d.mu.Unlock()
		return !stillSet || (lst.shouldStop != nil && lst.shouldStop())
	}
	if !data.throttle.Allow(shouldStop) {
		return
	}

	eval := func(expr string) (hostdbg.Value, error) {
		return d.runtime.EvaluateInFrame(context.Background(), top, expr, true)
	}
	result := d.engine.Capture(frames, d.captureLimits, data.original.Expressions, eval)

	params := make([]string, len(result.EvaluatedExpressions))
	for i, v := range result.EvaluatedExpressions {
		params[i] = renderLogParam(v)
	}
	formatted := model.FormatDirective(data.original.LogMessageFormat, params)

	if lst.emit != nil {
		emit := lst.emit
		go emit(formatted)
	}
}

// renderLogParam turns one evaluated expression's Variable into the
// string a log message's $n placeholder substitutes. Compound values
// have no plain string form in model.Variable, so they render as
// their type name rather than attempting a JSON dump the spec never
// asks for.
func renderLogParam(v model.Variable) string {
	if v.Status != nil && v.Status.IsError {
		return fmt.Sprintf("<%s>", v.Status.Description.Format)
	}
	if v.VarTableIndex != nil {
		return fmt.Sprintf("<%s>", v.Type)
	}
	return v.Value
}

// truthy mirrors ECMAScript's truthiness rules closely enough for
// condition evaluation: everything is truthy except undefined, null,
// false, 0, NaN, and the empty string.
func truthy(v hostdbg.Value) bool {
	switch v.Kind {
	case hostdbg.KindUndefined, hostdbg.KindNull:
		return false
	case hostdbg.KindBoolean:
		return v.Primitive == "true"
	case hostdbg.KindNumber:
		return v.Primitive != "0" && v.Primitive != "NaN" && v.Primitive != ""
	case hostdbg.KindString:
		return v.Primitive != ""
	default:
		return true
	}
}
