// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package hostdbg is the capability interface the core debug
// subsystems program against (spec §9 "dynamic-dispatch debugger
// choice": "hide behind a single capability interface"). DebugAPI
// never talks to a concrete VM; it talks to a hostdbg.Runtime, chosen
// once at startup. gojahost backs it with a real embedded goja
// ECMAScript runtime; fakehost backs it with an in-memory double for
// unit tests that don't need a real VM.
package hostdbg

import "context"

// Position is a source location inside host-loaded code, matching the
// shape goja's own Debugger reports (Position{Filename, Line, Column}).
type Position struct {
	Filename string
	Line     int
	Column   int
}

// ObjectHandle is the reference-equality primitive spec.md §9 calls
// for: "Capture uses an identity map from runtime object → index;
// this is the reference-equality primitive the implementation must
// provide." It must be a comparable dynamic value — gojahost hands
// back the backend's own object pointer directly, which is
// comparable by Go's built-in pointer identity.
type ObjectHandle any

// Kind classifies a captured Value for CaptureEngine without exposing
// backend-specific value types.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindArray
	KindFunction
	KindOther
)

// Value is a backend-agnostic snapshot of one host-language value.
// Primitives carry their already-stringified form in Primitive;
// compounds carry a Handle for the identity map and a ClassName for
// display ("Array", "Object", "Error", ...).
type Value struct {
	Kind      Kind
	Primitive string
	Handle    ObjectHandle
	ClassName string
}

// IsCompound reports whether v must be captured through the variable
// table rather than inlined as a primitive.
func (v Value) IsCompound() bool {
	return v.Kind == KindObject || v.Kind == KindArray || v.Kind == KindFunction
}

// Property is one own-property read off a compound Value. Err is set
// when the read itself failed (a throwing getter, a revoked proxy),
// distinct from the property simply holding an error value.
type Property struct {
	Name  string
	Value Value
	Err   error
}

// NamedValue pairs a binding name with its value, used for both
// function arguments and locals.
type NamedValue struct {
	Name  string
	Value Value
}

// Frame is one paused call frame, innermost first in
// PauseEvent.Frames.
type Frame interface {
	FunctionName() string
	Location() Position
	Arguments() []NamedValue
	Locals() []NamedValue
}

// PauseEvent describes one synchronous low-level-debugger pause.
type PauseEvent struct {
	BreakpointID int
	Frames       []Frame
}

// PauseHandler is invoked synchronously, in the host runtime's own
// execution context, when a breakpoint fires. It must not block: the
// agent is single-threaded cooperative (spec §5) and the host runtime
// is suspended for the handler's whole duration. The backend resumes
// execution unconditionally once the handler returns — this port
// never pauses the program observably (spec.md §1 non-goals) and
// implements no stepping.
type PauseHandler func(PauseEvent)

// Runtime is the low-level debugger capability spec.md §4.2 declares
// external. set/clear/eval-on-frame/remove-breakpoint/on-pause, per
// spec §9.
type Runtime interface {
	// LoadScript compiles and runs source under the given canonical
	// file name, so that subsequent SetBreakpoint calls can address it
	// by that same name.
	LoadScript(ctx context.Context, filename, source string) error

	// SetBreakpoint installs a breakpoint at a 0-based (line, column)
	// in filename, with an optional native condition expression
	// evaluated by the backend itself on every pass (not used by this
	// port — DebugAPI evaluates conditions itself via
	// internal/expression so it can apply the shared validation and
	// error-taxonomy rules; condition is always empty here). Returns a
	// backend-local id used to remove the breakpoint later.
	SetBreakpoint(filename string, line, column int, condition string) (id int, err error)

	// RemoveBreakpoint uninstalls a previously set breakpoint. Safe to
	// call on an already-removed id (no-op).
	RemoveBreakpoint(id int) error

	// OnPause registers the single handler invoked for every
	// breakpoint hit, across all installed breakpoints; the handler
	// itself dispatches by PauseEvent.BreakpointID.
	OnPause(handler PauseHandler)

	// EvaluateInFrame evaluates expression in the lexical context of
	// frame. guardSideEffects asks the backend to reject any
	// evaluation that would mutate observable state, where the backend
	// has such a guard — spec.md §4.4 step 6's "side-effect guards on".
	// gojahost accepts the flag but does not enforce it at run time;
	// expressions reach it only after internal/expression has
	// validated them as side-effect free.
	EvaluateInFrame(ctx context.Context, frame Frame, expression string, guardSideEffects bool) (Value, error)

	// GetProperties enumerates the own properties of a compound value
	// previously returned as a Value with a Handle, for CaptureEngine
	// to expand members beyond what the frame eagerly reported.
	GetProperties(handle ObjectHandle) ([]Property, error)

	// ModuleWrapPrefixLength returns the number of characters the
	// backend injects before user code (spec §9
	// MODULE_WRAP_PREFIX_LENGTH), affecting column coordinates on
	// line 1 only.
	ModuleWrapPrefixLength() int

	// Disconnect tears down the backend's debugger session.
	Disconnect() error
}
