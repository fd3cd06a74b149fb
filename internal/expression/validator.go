// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package expression implements ExpressionValidator (spec §4.3):
// parsing a condition or watch-expression string with goja's own
// ECMAScript parser and rejecting any construct that could mutate
// observable state, so a validated expression is safe to evaluate
// with side effects presumed impossible rather than merely unlikely.
package expression

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// Error reports why an expression was rejected. Message is the
// human-readable form DebugAPI surfaces verbatim in a breakpoint's
// status.description (spec §7): "Unexpected token ..." for parse
// failures, "Expression not allowed" for a disallowed construct.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Validate parses src as a single expression and rejects it unless it
// is provably side-effect free per spec §4.3's construct list.
// Returns the parsed expression; evaluation itself goes through the
// source string, so the host runtime parses it again.
func Validate(src string) (ast.Expression, error) {
	prg, err := parser.ParseFile(nil, "<expression>", src, 0)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("Unexpected token: %v", err)}
	}

	if len(prg.Body) != 1 {
		return nil, &Error{Message: "Expression not allowed: must be a single expression"}
	}
	stmt, ok := prg.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, &Error{Message: "Expression not allowed: not an expression"}
	}

	if err := checkExpression(stmt.Expression); err != nil {
		return nil, err
	}

	return stmt.Expression, nil
}

// IsUnconditional reports whether a breakpoint condition string is
// one of the "treated as unconditional" forms spec §8 names: empty,
// "null", or a bare statement terminator.
func IsUnconditional(src string) bool {
	switch src {
	case "", "null", ";":
		return true
	default:
		return false
	}
}

func disallowed(construct string) error {
	return &Error{Message: fmt.Sprintf("Expression not allowed: %s", construct)}
}

// checkExpression walks an expression node rejecting any subform that
// could mutate observable state. Unrecognized expression node types
// are accepted by default — this validator denies by construct, not
// by an exhaustive allow-list of every leaf literal type goja's
// grammar can produce.
func checkExpression(node ast.Expression) error {
	if node == nil {
		return nil
	}

	switch n := node.(type) {
	case *ast.Identifier, *ast.NumberLiteral, *ast.StringLiteral,
		*ast.BooleanLiteral, *ast.NullLiteral, *ast.RegExpLiteral,
		*ast.ThisExpression:
		return nil

	case *ast.AssignExpression:
		return disallowed("assignment")

	case *ast.UnaryExpression:
		if n.Operator == token.INCREMENT || n.Operator == token.DECREMENT {
			return disallowed("increment/decrement")
		}
		if n.Operator == token.DELETE {
			return disallowed("delete")
		}
		return checkExpression(n.Operand)

	case *ast.BinaryExpression:
		if err := checkExpression(n.Left); err != nil {
			return err
		}
		return checkExpression(n.Right)

	case *ast.ConditionalExpression:
		if err := checkExpression(n.Test); err != nil {
			return err
		}
		if err := checkExpression(n.Consequent); err != nil {
			return err
		}
		return checkExpression(n.Alternate)

	case *ast.SequenceExpression:
		for _, e := range n.Sequence {
			if err := checkExpression(e); err != nil {
				return err
			}
		}
		return nil

	case *ast.DotExpression:
		return checkExpression(n.Left)

	case *ast.BracketExpression:
		if err := checkExpression(n.Left); err != nil {
			return err
		}
		return checkExpression(n.Member)

	case *ast.ArrayLiteral:
		for _, e := range n.Value {
			if err := checkExpression(e); err != nil {
				return err
			}
		}
		return nil

	case *ast.ObjectLiteral:
		for _, prop := range n.Value {
			if expr, ok := propertyValue(prop); ok {
				if err := checkExpression(expr); err != nil {
					return err
				}
			}
		}
		return nil

	case *ast.SpreadElement:
		return checkExpression(n.Expression)

	case *ast.TemplateLiteral:
		for _, e := range n.Expressions {
			if err := checkExpression(e); err != nil {
				return err
			}
		}
		return nil

	case *ast.NewExpression:
		return disallowed("new")

	case *ast.FunctionLiteral:
		return disallowed("function expression")

	case *ast.ArrowFunctionLiteral:
		return disallowed("arrow function")

	case *ast.CallExpression:
		if !isReadOnlyIntrinsic(n.Callee) {
			return disallowed("call to a non-intrinsic function")
		}
		for _, arg := range n.ArgumentList {
			if err := checkExpression(arg); err != nil {
				return err
			}
		}
		return nil

	default:
		_ = n
		return nil
	}
}

// propertyValue extracts the value expression from an object literal
// property, accommodating goja/ast's property representation without
// assuming a single concrete shape for shorthand vs. keyed properties.
func propertyValue(prop ast.Property) (ast.Expression, bool) {
	switch p := prop.(type) {
	case *ast.PropertyKeyed:
		if expr, ok := p.Value.(ast.Expression); ok {
			return expr, true
		}
	}
	return nil, false
}

// intrinsicGlobals are bare-identifier calls statically known to be
// pure (spec §4.3 "statically resolvable to read-only intrinsics").
var intrinsicGlobals = map[string]bool{
	"isNaN": true, "isFinite": true, "parseInt": true, "parseFloat": true,
	"String": true, "Number": true, "Boolean": true, "encodeURIComponent": true,
	"decodeURIComponent": true,
}

// intrinsicMethods are property-named calls (obj.method(...)) allowed
// regardless of the receiver's static type, since this validator has
// no type information to narrow by receiver — method name alone must
// be enough to call it a read-only intrinsic.
var intrinsicMethods = map[string]bool{
	"toString": true, "valueOf": true, "slice": true, "substring": true,
	"substr": true, "indexOf": true, "lastIndexOf": true, "includes": true,
	"charAt": true, "charCodeAt": true, "codePointAt": true,
	"toUpperCase": true, "toLowerCase": true, "trim": true,
	"trimStart": true, "trimEnd": true, "split": true, "concat": true,
	"join": true, "hasOwnProperty": true, "isArray": true, "keys": true,
	"values": true, "entries": true, "stringify": true, "test": true,
	"abs": true, "floor": true, "ceil": true, "round": true, "max": true,
	"min": true, "pow": true, "sqrt": true,
}

// isReadOnlyIntrinsic decides whether a CallExpression's callee is
// statically known to be side-effect free: either a bare global
// identifier on the allow-list, or a `receiver.method` access whose
// method name is on the allow-list. Bracket access (`receiver[...]`)
// as a callee is rejected. Anything else —
// notably a call through an arbitrary variable's own method, as in
// spec §8 scenario 8's `item.increasePriceByOne()` — is rejected,
// since there is no way to know statically whether it mutates state.
func isReadOnlyIntrinsic(callee ast.Expression) bool {
	switch c := callee.(type) {
	case *ast.Identifier:
		return intrinsicGlobals[string(c.Name)]
	case *ast.DotExpression:
		return intrinsicMethods[string(c.Identifier.Name)]
	default:
		return false
	}
}
