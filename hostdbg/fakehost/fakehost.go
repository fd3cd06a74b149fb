// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package fakehost is an in-memory hostdbg.Runtime double, letting
// internal/debugapi and internal/debuglet be tested without spinning
// up a real goja VM — the same role a hand-rolled fake service plays
// in the teacher's own tests (lib/service) rather than a generated
// mock.
package fakehost

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg"
)

// Frame is a directly-constructible hostdbg.Frame for test fixtures.
type Frame struct {
	Function  string
	Loc       hostdbg.Position
	Args      []hostdbg.NamedValue
	LocalVars []hostdbg.NamedValue
}

func (f *Frame) FunctionName() string             { return f.Function }
func (f *Frame) Location() hostdbg.Position        { return f.Loc }
func (f *Frame) Arguments() []hostdbg.NamedValue   { return f.Args }
func (f *Frame) Locals() []hostdbg.NamedValue      { return f.LocalVars }

// breakpoint is one installed fake breakpoint.
type breakpoint struct {
	filename  string
	line      int
	column    int
	condition string
}

// Host is a fully in-memory hostdbg.Runtime. Tests drive it by calling
// Fire to simulate a pause, and Properties to script object expansion
// results.
type Host struct {
	mu sync.Mutex

	nextID      int
	breakpoints map[int]*breakpoint
	handler     hostdbg.PauseHandler

	// properties lets a test pre-register the children of a given
	// handle, since fakehost has no real object graph.
	properties map[hostdbg.ObjectHandle][]hostdbg.Property

	// evalResults lets a test script EvaluateInFrame's return value
	// per expression string; missing entries return an error.
	evalResults map[string]hostdbg.Value
	evalErrors  map[string]error

	wrapPrefixLen int

	disconnected bool
}

// New returns an empty fake host. wrapPrefixLen lets tests exercise
// the line-1 column-shift behavior deterministically.
func New(wrapPrefixLen int) *Host {
	return &Host{
		breakpoints: make(map[int]*breakpoint),
		properties:  make(map[hostdbg.ObjectHandle][]hostdbg.Property),
		evalResults: make(map[string]hostdbg.Value),
		evalErrors:  make(map[string]error),
		wrapPrefixLen: wrapPrefixLen,
	}
}

func (h *Host) LoadScript(ctx context.Context, filename, source string) error { return nil }

func (h *Host) SetBreakpoint(filename string, line, column int, condition string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.breakpoints[id] = &breakpoint{filename: filename, line: line, column: column, condition: condition}
	return id, nil
}

func (h *Host) RemoveBreakpoint(id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.breakpoints, id)
	return nil
}

func (h *Host) OnPause(handler hostdbg.PauseHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Fire simulates breakpoint id pausing with the given frames,
// innermost first. It is a no-op if the breakpoint was never
// installed or has since been removed, mirroring the real backend's
// behavior of simply not calling the handler for a dead id.
func (h *Host) Fire(id int, frames []hostdbg.Frame) {
	h.mu.Lock()
	_, installed := h.breakpoints[id]
	handler := h.handler
	h.mu.Unlock()

	if !installed || handler == nil {
		return
	}
	handler(hostdbg.PauseEvent{BreakpointID: id, Frames: frames})
}

// SetEvalResult scripts EvaluateInFrame's return value for a given
// expression string.
func (h *Host) SetEvalResult(expression string, value hostdbg.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evalResults[expression] = value
}

// SetEvalError scripts EvaluateInFrame's error for a given expression
// string, simulating a side-effect rejection or runtime throw.
func (h *Host) SetEvalError(expression string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evalErrors[expression] = err
}

func (h *Host) EvaluateInFrame(ctx context.Context, f hostdbg.Frame, expression string, guardSideEffects bool) (hostdbg.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.evalErrors[expression]; ok {
		return hostdbg.Value{}, err
	}
	if v, ok := h.evalResults[expression]; ok {
		return v, nil
	}
	return hostdbg.Value{}, fmt.Errorf("fakehost: no scripted result for %q", expression)
}

// SetProperties scripts GetProperties' result for a given handle.
func (h *Host) SetProperties(handle hostdbg.ObjectHandle, props []hostdbg.Property) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.properties[handle] = props
}

func (h *Host) GetProperties(handle hostdbg.ObjectHandle) ([]hostdbg.Property, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.properties[handle], nil
}

func (h *Host) ModuleWrapPrefixLength() int { return h.wrapPrefixLen }

func (h *Host) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
	return nil
}

// Disconnected reports whether Disconnect has been called, for tests
// asserting on teardown.
func (h *Host) Disconnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}
