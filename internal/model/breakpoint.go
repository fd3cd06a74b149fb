// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package model defines the wire types exchanged with the Debug
// Controller (spec §3, §6). These are the contract between the
// debuglet (writer of Debuggee, reader/writer of Breakpoint) and the
// Controller (owner of the canonical active breakpoint set) — both
// sides must agree on field names and JSON tags, mirroring how
// lib/schema pins wire structs for Bureau's daemon/doctor contract.
package model

// Action selects what a breakpoint does when it fires.
type Action string

const (
	// ActionCapture is the default: one-shot stack-and-locals capture.
	ActionCapture Action = "CAPTURE"

	// ActionLog emits a formatted line on every hit, subject to
	// throttling (spec §5).
	ActionLog Action = "LOG"
)

// RefersTo names which part of a breakpoint a Status describes (spec §7).
type RefersTo string

const (
	RefersToUnspecified    RefersTo = "UNSPECIFIED"
	RefersToSourceLocation RefersTo = "BREAKPOINT_SOURCE_LOCATION"
	RefersToCondition      RefersTo = "BREAKPOINT_CONDITION"
	RefersToExpression     RefersTo = "BREAKPOINT_EXPRESSION"
	RefersToVariableName   RefersTo = "VARIABLE_NAME"
	RefersToVariableValue  RefersTo = "VARIABLE_VALUE"
)

// SourceLocation identifies a breakpoint's intended position. Path is
// user-supplied and possibly partial; Line is 1-based.
type SourceLocation struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// FormatMessage is a printf-like template with $0..$n placeholders and
// the literal parameter values to substitute, used for both
// Breakpoint.Status.Description and logpoint output (spec's "$n
// directive" glossary entry).
type FormatMessage struct {
	Format     string   `json:"format"`
	Parameters []string `json:"parameters,omitempty"`
}

// Status describes a breakpoint's rejection or runtime error.
type Status struct {
	IsError     bool          `json:"isError,omitempty"`
	RefersTo    RefersTo      `json:"refersTo,omitempty"`
	Description FormatMessage `json:"description"`
}

// Variable is a captured value. Primitives carry Value directly;
// compound values are interned into the breakpoint's VariableTable and
// referenced by VarTableIndex — see spec §3's "Ownership" and §9's
// "Cyclic and shared object graphs."
type Variable struct {
	Name          string     `json:"name,omitempty"`
	Value         string     `json:"value,omitempty"`
	Type          string     `json:"type,omitempty"`
	Members       []Variable `json:"members,omitempty"`
	VarTableIndex *int       `json:"varTableIndex,omitempty"`
	Status        *Status    `json:"status,omitempty"`
}

// StackFrame is one captured call frame.
type StackFrame struct {
	Function  string         `json:"function"`
	Location  SourceLocation `json:"location"`
	Arguments []Variable     `json:"arguments"`
	Locals    []Variable     `json:"locals"`
}

// Breakpoint is the unit of work exchanged with the Controller (spec
// §3). Created server-side, mutated by the agent as it installs,
// fires, and finalizes it.
type Breakpoint struct {
	ID       string   `json:"id"`
	Action   Action   `json:"action,omitempty"`
	Location SourceLocation `json:"location"`

	Condition        string   `json:"condition,omitempty"`
	Expressions      []string `json:"expressions,omitempty"`
	LogMessageFormat string   `json:"logMessageFormat,omitempty"`

	IsFinalState bool    `json:"isFinalState,omitempty"`
	Status       *Status `json:"status,omitempty"`

	StackFrames          []StackFrame `json:"stackFrames,omitempty"`
	EvaluatedExpressions []Variable   `json:"evaluatedExpressions,omitempty"`
	VariableTable        []Variable   `json:"variableTable,omitempty"`

	// CreateTime is stamped by the debuglet when it first sees the
	// breakpoint, in RFC 3339. It is not part of the Controller's wire
	// contract for registration, and is carried along in updates for
	// information only: expiration (spec §4.7) is computed from the
	// debuglet's in-memory first-sight time, not from this field. Left
	// empty by the Controller; the debuglet fills it in locally on
	// first sight.
	CreateTime string `json:"createTime,omitempty"`
}

// DefaultAction returns the breakpoint's effective action, treating an
// empty Action field as ActionCapture per spec §3 ("CAPTURE (default)").
func (b *Breakpoint) DefaultAction() Action {
	if b.Action == "" {
		return ActionCapture
	}
	return b.Action
}

// SourceContext describes where the deployed source came from (spec §3
// Debuggee field; left opaque since its contents are defined by the
// Controller, not this agent).
type SourceContext map[string]any

// Debuggee identifies one running agent instance to the Controller
// (spec §3).
type Debuggee struct {
	ID             string          `json:"id,omitempty"`
	Project        string          `json:"project"`
	Uniquifier     string          `json:"uniquifier"`
	Description    string          `json:"description"`
	AgentVersion   string          `json:"agentVersion"`
	Labels         map[string]string `json:"labels,omitempty"`
	SourceContexts []SourceContext `json:"sourceContexts,omitempty"`
	Status         *Status         `json:"status,omitempty"`
	IsDisabled     bool            `json:"isDisabled,omitempty"`
}
