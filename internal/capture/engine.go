// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package capture implements CaptureEngine (spec §4.4): turning a
// paused call stack into a bounded-size StackFrame slice and a shared
// VariableTable, honoring the configured frame/property/size/string
// limits, plus evaluating watch expressions against the top frame
// with the same size budget.
package capture

import (
	"fmt"
	"unicode/utf8"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/expression"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/model"
)

// PropertyReader is the narrow slice of hostdbg.Runtime CaptureEngine
// needs: enumerating a compound value's own properties for expansion
// beyond what a frame eagerly reports.
type PropertyReader interface {
	GetProperties(handle hostdbg.ObjectHandle) ([]hostdbg.Property, error)
}

// Evaluator runs one already-validated expression against the frame a
// capture is centered on. DebugAPI binds this to the top paused frame
// with side-effect guards on before calling Capture (spec §4.4 step
// 6); the engine itself only decides *whether* to call it, via
// internal/expression's validation.
type Evaluator func(expr string) (hostdbg.Value, error)

// Result is CaptureEngine's output (spec §4.4 "Output").
type Result struct {
	StackFrames          []model.StackFrame
	VariableTable        []model.Variable
	EvaluatedExpressions []model.Variable
}

// Engine is stateless between captures: every Capture call gets its
// own identity map and byte budget, since the VariableTable it builds
// is owned by one Breakpoint for the lifetime of that one snapshot
// (spec §3 "Ownership").
type Engine struct {
	reader PropertyReader
}

func New(reader PropertyReader) *Engine {
	return &Engine{reader: reader}
}

// Capture runs the full algorithm of spec §4.4: frames innermost
// first, limits from agentconfig.Capture, and watchExpressions
// evaluated against the same frame via eval, sharing one byte budget
// across locals and watch expressions (spec step 5).
func (e *Engine) Capture(frames []hostdbg.Frame, limits agentconfig.Capture, watchExpressions []string, eval Evaluator) *Result {
	st := &state{
		limits:         limits,
		index:          make(map[hostdbg.ObjectHandle]int),
		remainingBytes: limits.MaxDataSize,
		reader:         e.reader,
	}

	if len(frames) > limits.MaxFrames {
		frames = frames[:limits.MaxFrames]
	}

	stackFrames := make([]model.StackFrame, 0, len(frames))
	for i, f := range frames {
		loc := f.Location()
		sf := model.StackFrame{
			Function: f.FunctionName(),
			Location: model.SourceLocation{Path: loc.Filename, Line: loc.Line, Column: loc.Column},
		}
		if i < limits.MaxExpandFrames {
			sf.Arguments = st.convertNamed(f.Arguments())
			sf.Locals = st.convertNamed(f.Locals())
		} else {
			stub := []model.Variable{notExpandedStub(limits.MaxExpandFrames)}
			sf.Arguments = stub
			sf.Locals = stub
		}
		stackFrames = append(stackFrames, sf)
	}

	return &Result{
		StackFrames:          stackFrames,
		VariableTable:        st.table,
		EvaluatedExpressions: st.evaluateExpressions(watchExpressions, eval),
	}
}

func notExpandedStub(maxExpandFrames int) model.Variable {
	return model.Variable{
		Status: &model.Status{
			RefersTo:    model.RefersToSourceLocation,
			Description: model.FormatMessage{Format: fmt.Sprintf("Locals and arguments are only displayed for the top %d stack frames.", maxExpandFrames)},
		},
	}
}

// state carries the identity map and shared byte budget for one
// Capture call, exactly the reference-equality primitive spec §9
// calls for.
type state struct {
	limits         agentconfig.Capture
	table          []model.Variable
	index          map[hostdbg.ObjectHandle]int
	remainingBytes int
	reader         PropertyReader
}

func (st *state) convertNamed(named []hostdbg.NamedValue) []model.Variable {
	if len(named) == 0 {
		return nil
	}
	out := make([]model.Variable, 0, len(named))
	for _, nv := range named {
		out = append(out, st.convertValue(nv.Name, nv.Value, false))
	}
	return out
}

// convertValue renders one named value. exempt is true only for the
// top-level value of a watch expression (spec §4.4 step 7); every
// other call site — locals, arguments, and every nested member —
// passes false.
func (st *state) convertValue(name string, v hostdbg.Value, exempt bool) model.Variable {
	if !v.IsCompound() {
		return st.primitiveVariable(name, v, exempt)
	}

	idx, isNew := st.intern(v.Handle)
	if isNew {
		st.populateCompound(idx, v, exempt)
	}
	i := idx
	return model.Variable{Name: name, Type: typeLabel(v), VarTableIndex: &i}
}

func (st *state) intern(handle hostdbg.ObjectHandle) (int, bool) {
	if idx, ok := st.index[handle]; ok {
		return idx, false
	}
	idx := len(st.table)
	st.table = append(st.table, model.Variable{})
	st.index[handle] = idx
	return idx, true
}

func (st *state) populateCompound(idx int, v hostdbg.Value, exempt bool) {
	props, err := st.reader.GetProperties(v.Handle)
	if err != nil {
		st.table[idx] = model.Variable{
			Type: typeLabel(v),
			Status: &model.Status{
				IsError: true, RefersTo: model.RefersToVariableValue, Description: model.FormatMessage{Format: err.Error()},
			},
		}
		return
	}

	total := len(props)
	members := make([]model.Variable, 0, total)
	for i, p := range props {
		if !exempt && i >= st.limits.MaxProperties {
			members = append(members, model.Variable{
				Name: fmt.Sprintf("Only first %d of %d items (config.capture.maxProperties=%d)", st.limits.MaxProperties, total, st.limits.MaxProperties),
			})
			break
		}
		if st.remainingBytes < 0 {
			st.table[idx] = model.Variable{
				Type: typeLabel(v), Members: members,
				Status: &model.Status{IsError: true, RefersTo: model.RefersToVariableValue, Description: model.FormatMessage{Format: "Max data size reached"}},
			}
			return
		}

		if p.Err != nil {
			members = append(members, model.Variable{
				Name:   p.Name,
				Status: &model.Status{IsError: true, RefersTo: model.RefersToVariableValue, Description: model.FormatMessage{Format: p.Err.Error()}},
			})
			continue
		}
		members = append(members, st.convertValue(p.Name, p.Value, false))
	}

	st.table[idx] = model.Variable{Type: typeLabel(v), Members: members}
}

func (st *state) primitiveVariable(name string, v hostdbg.Value, exempt bool) model.Variable {
	value := v.Primitive
	st.remainingBytes -= len(value)

	if !exempt && v.Kind == hostdbg.KindString {
		length := utf8.RuneCountInString(value)
		if length > st.limits.MaxStringLength {
			truncated := truncateRunes(value, st.limits.MaxStringLength) + "..."
			return model.Variable{
				Name: name, Value: truncated, Type: "string",
				Status: &model.Status{Description: model.FormatMessage{Format: fmt.Sprintf("Only first %d chars were captured (of length %d)", st.limits.MaxStringLength, length)}},
			}
		}
	}

	return model.Variable{Name: name, Value: value, Type: kindLabel(v.Kind)}
}

func (st *state) evaluateExpressions(expressions []string, eval Evaluator) []model.Variable {
	if len(expressions) == 0 {
		return nil
	}

	out := make([]model.Variable, len(expressions))
	for i, expr := range expressions {
		if _, err := expression.Validate(expr); err != nil {
			out[i] = model.Variable{
				Name:   expr,
				Status: &model.Status{IsError: true, RefersTo: model.RefersToVariableValue, Description: model.FormatMessage{Format: err.Error()}},
			}
			continue
		}

		v, err := eval(expr)
		if err != nil {
			out[i] = model.Variable{
				Name:   expr,
				Status: &model.Status{IsError: true, RefersTo: model.RefersToVariableValue, Description: model.FormatMessage{Format: err.Error()}},
			}
			continue
		}

		out[i] = st.convertValue(expr, v, true)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func typeLabel(v hostdbg.Value) string {
	if v.ClassName != "" {
		return v.ClassName
	}
	return kindLabel(v.Kind)
}

func kindLabel(k hostdbg.Kind) string {
	switch k {
	case hostdbg.KindUndefined:
		return "undefined"
	case hostdbg.KindNull:
		return "null"
	case hostdbg.KindBoolean:
		return "boolean"
	case hostdbg.KindNumber:
		return "number"
	case hostdbg.KindString:
		return "string"
	case hostdbg.KindArray:
		return "array"
	case hostdbg.KindFunction:
		return "function"
	case hostdbg.KindObject:
		return "object"
	default:
		return "unknown"
	}
}
