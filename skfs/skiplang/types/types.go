// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package types implements a small, monomorphic inference pass over
// skiplang's four value shapes -- Int, String, Bool, and Array<File>
// -- sufficient to catch a mapper or reducer body mismatching its
// directory's declared value shape before it ever reaches skfs/dir.
// This is deliberately not full Hindley-Milner: skiplang has no
// polymorphism to generalize over, so unification never needs to
// introduce a type variable that outlives a single Check call.
package types

import (
	"github.com/skiplabs/skfs/internal/errs"
	"github.com/skiplabs/skfs/skiplang/ast"
)

// Type is one of skiplang's four value shapes.
type Type int

const (
	Unknown Type = iota
	IntT
	StringT
	BoolT
	ArrayT
)

func (t Type) String() string {
	switch t {
	case IntT:
		return "Int"
	case StringT:
		return "String"
	case BoolT:
		return "Bool"
	case ArrayT:
		return "Array<File>"
	default:
		return "Unknown"
	}
}

// Env maps bound names (let-bindings, function parameters, directory
// references) to their inferred Type.
type Env map[string]Type

// Check infers e's Type under env, returning an *errs.Error of Kind
// Invalid on a shape mismatch (e.g. "a" + 1, or a comparison between
// an Array and an Int).
func Check(env Env, e ast.Expr) (Type, error) {
	switch n := e.(type) {
	case ast.IntLit:
		return IntT, nil
	case ast.StringLit:
		return StringT, nil
	case ast.Ident:
		if t, ok := env[n.Name]; ok {
			return t, nil
		}
		return Unknown, errs.E(errs.Invalid, "skiplang: unbound name "+n.Name)
	case ast.BinOp:
		lt, err := Check(env, n.Left)
		if err != nil {
			return Unknown, err
		}
		rt, err := Check(env, n.Right)
		if err != nil {
			return Unknown, err
		}
		return checkBinOp(n.Op, lt, rt)
	case ast.If:
		ct, err := Check(env, n.Cond)
		if err != nil {
			return Unknown, err
		}
		if ct != BoolT {
			return Unknown, errs.E(errs.Invalid, "skiplang: if condition must be Bool, got "+ct.String())
		}
		tt, err := Check(env, n.Then)
		if err != nil {
			return Unknown, err
		}
		et, err := Check(env, n.Else)
		if err != nil {
			return Unknown, err
		}
		if tt != et {
			return Unknown, errs.E(errs.Invalid, "skiplang: if branches disagree: "+tt.String()+" vs "+et.String())
		}
		return tt, nil
	case ast.Call:
		// Calls to a directory's own mapper/compute function are
		// resolved dynamically by eval; static checking only verifies
		// the argument expressions themselves type-check.
		for _, a := range n.Args {
			if _, err := Check(env, a); err != nil {
				return Unknown, err
			}
		}
		return ArrayT, nil
	case ast.FnLit:
		inner := make(Env, len(env)+len(n.Params))
		for k, v := range env {
			inner[k] = v
		}
		for _, p := range n.Params {
			inner[p] = ArrayT
		}
		return Check(inner, n.Body)
	default:
		return Unknown, errs.E(errs.Invalid, "skiplang: cannot type-check expression")
	}
}

func checkBinOp(op string, lt, rt Type) (Type, error) {
	switch op {
	case "+", "-", "*":
		if lt != IntT || rt != IntT {
			return Unknown, errs.E(errs.Invalid, "skiplang: "+op+" requires Int operands, got "+lt.String()+" and "+rt.String())
		}
		return IntT, nil
	case "<", ">":
		if lt != IntT || rt != IntT {
			return Unknown, errs.E(errs.Invalid, "skiplang: "+op+" requires Int operands, got "+lt.String()+" and "+rt.String())
		}
		return BoolT, nil
	case "==":
		if lt != rt {
			return Unknown, errs.E(errs.Invalid, "skiplang: == requires matching operand types, got "+lt.String()+" and "+rt.String())
		}
		return BoolT, nil
	default:
		return Unknown, errs.E(errs.Invalid, "skiplang: unknown operator "+op)
	}
}
