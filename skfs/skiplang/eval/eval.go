// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package eval is skiplang's tree-walking evaluator. Running a
// Program's statements against a skfs/ctx.Context is the init(ctx,
// srcDir) hook: Mkdir registers a directory (plain, mapper-derived, or
// lazy), Write seeds or updates one of its keys, and every other
// statement is evaluated for its expression value and discarded.
package eval

import (
	"crypto"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/writehash"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/internal/errs"
	"github.com/skiplabs/skfs/skiplang/ast"
)

// Bool is skiplang's own boolean File, kept local to the evaluator
// rather than added to the core value model: the engine itself never
// needs to compare or persist booleans, only skiplang's if/comparison
// expressions do.
type Bool bool

// Digest implements skfs.File.
func (b Bool) Digest() digest.Digest {
	h := digestAlgo.New()
	writehash.String(h, "bool")
	var tag byte
	if b {
		tag = 1
	}
	_, _ = h.Write([]byte{tag})
	return digest.New(digestAlgo, h.Sum(nil))
}

// digestAlgo mirrors skfs.File's own hash choice; relying on the
// skiplabs/skfs import to have already registered crypto/sha256.
const digestAlgo = crypto.SHA256

// closure is a bound FnLit: its Params name the values Call binds one
// level deep into env when the closure runs.
type closure struct {
	fn  *ast.FnLit
	env Env
}

// Env maps a skiplang name to either a skfs.File or a *closure.
type Env map[string]interface{}

// child returns a new Env that shadows e with additional bindings,
// leaving e itself untouched.
func (e Env) child() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Eval evaluates e under env, returning a skfs.File. Evaluating a
// bare FnLit yields a *closure bound to env, which Eval unwraps again
// the moment it is the target of a Call.
func Eval(env Env, e ast.Expr) (interface{}, error) {
	switch n := e.(type) {
	case ast.IntLit:
		return skfs.Int(n.Value), nil
	case ast.StringLit:
		return skfs.String(n.Value), nil
	case ast.Ident:
		v, ok := env[n.Name]
		if !ok {
			return nil, errs.E(errs.Invalid, "skiplang: unbound name "+n.Name)
		}
		return v, nil
	case ast.BinOp:
		return evalBinOp(env, n)
	case ast.If:
		cv, err := Eval(env, n.Cond)
		if err != nil {
			return nil, err
		}
		b, ok := cv.(Bool)
		if !ok {
			return nil, errs.E(errs.Invalid, "skiplang: if condition did not evaluate to Bool")
		}
		if bool(b) {
			return Eval(env, n.Then)
		}
		return Eval(env, n.Else)
	case ast.FnLit:
		return &closure{fn: &n, env: env}, nil
	case ast.Call:
		return evalCall(env, n)
	default:
		return nil, errs.E(errs.Invalid, "skiplang: cannot evaluate expression")
	}
}

func evalBinOp(env Env, n ast.BinOp) (interface{}, error) {
	lv, err := Eval(env, n.Left)
	if err != nil {
		return nil, err
	}
	rv, err := Eval(env, n.Right)
	if err != nil {
		return nil, err
	}
	if n.Op == "==" {
		return Bool(equalFiles(lv, rv)), nil
	}
	li, lok := lv.(skfs.Int)
	ri, rok := rv.(skfs.Int)
	if !lok || !rok {
		return nil, errs.E(errs.Invalid, "skiplang: "+n.Op+" requires Int operands")
	}
	switch n.Op {
	case "+":
		return li + ri, nil
	case "-":
		return li - ri, nil
	case "*":
		return li * ri, nil
	case "<":
		return Bool(li < ri), nil
	case ">":
		return Bool(li > ri), nil
	default:
		return nil, errs.E(errs.Invalid, "skiplang: unknown operator "+n.Op)
	}
}

func equalFiles(a, b interface{}) bool {
	af, aok := a.(skfs.File)
	bf, bok := b.(skfs.File)
	if !aok || !bok {
		return false
	}
	return af.Digest() == bf.Digest()
}

func evalCall(env Env, n ast.Call) (interface{}, error) {
	v, ok := env[n.Fn]
	if !ok {
		return nil, errs.E(errs.Invalid, "skiplang: call to unbound function "+n.Fn)
	}
	cl, ok := v.(*closure)
	if !ok {
		return nil, errs.E(errs.Invalid, "skiplang: "+n.Fn+" is not a function")
	}
	if len(n.Args) != len(cl.fn.Params) {
		return nil, errs.E(errs.Invalid, "skiplang: "+n.Fn+" takes "+itoa(len(cl.fn.Params))+" arguments")
	}
	call := cl.env.child()
	for i, p := range cl.fn.Params {
		av, err := Eval(env, n.Args[i])
		if err != nil {
			return nil, err
		}
		call[p] = av
	}
	return Eval(call, cl.fn.Body)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Run executes prog's Init statements against c, registering the
// directories and seeding the writes they describe. It is the
// top-level entry point callers use in place of a Go-coded
// init(ctx, srcDir) function.
func Run(c *ctx.Context, prog *ast.Program) error {
	env := make(Env)
	for _, stmt := range prog.Init {
		if err := runStmt(c, env, stmt); err != nil {
			return err
		}
	}
	return nil
}

func runStmt(c *ctx.Context, env Env, stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case ast.Let:
		v, err := Eval(env, s.Value)
		if err != nil {
			return err
		}
		env[s.Name] = v
		return nil
	case ast.ExprStmt:
		_, err := Eval(env, s.Value)
		return err
	case ast.Mkdir:
		return runMkdir(c, env, s)
	case ast.Write:
		return runWrite(c, env, s)
	default:
		return errs.E(errs.Invalid, "skiplang: unknown statement")
	}
}

func runMkdir(c *ctx.Context, env Env, s ast.Mkdir) error {
	name := skfs.DirName(s.Dir)
	switch {
	case s.Mapper != nil:
		source, err := c.UnsafeGetEagerDir(skfs.DirName(s.Source))
		if err != nil {
			return err
		}
		out, err := c.MkEagerDir(name)
		if err != nil {
			return err
		}
		fn := s.Mapper
		c.AttachMapper(source, out, func(eng dir.Engine, source, out *dir.EagerDir, key skfs.BaseName) {
			values := source.GetArray(eng, key)
			results := make([]skfs.File, 0, len(values))
			for _, v := range values {
				call := env.child()
				if len(fn.Params) > 0 {
					call[fn.Params[0]] = skfs.String(key.String())
				}
				if len(fn.Params) > 1 {
					call[fn.Params[1]] = v
				}
				rv, err := Eval(call, fn.Body)
				if err != nil {
					continue
				}
				if f, ok := rv.(skfs.File); ok {
					results = append(results, f)
				}
			}
			out.WriteArray(eng, key, results)
		})
		return nil
	case s.Compute != nil:
		fn := s.Compute
		_, err := c.MkLazyDir(name, func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
			call := env.child()
			if len(fn.Params) > 0 {
				call[fn.Params[0]] = skfs.String(key.String())
			}
			rv, err := Eval(call, fn.Body)
			if err != nil {
				return nil
			}
			f, ok := rv.(skfs.File)
			if !ok {
				return nil
			}
			return []skfs.File{f}
		})
		return err
	default:
		_, err := c.MkEagerDir(name)
		return err
	}
}

func runWrite(c *ctx.Context, env Env, s ast.Write) error {
	d, err := c.UnsafeGetEagerDir(skfs.DirName(s.Dir))
	if err != nil {
		return err
	}
	values := make([]skfs.File, 0, len(s.Values))
	for _, ve := range s.Values {
		v, err := Eval(env, ve)
		if err != nil {
			return err
		}
		f, ok := v.(skfs.File)
		if !ok {
			return errs.E(errs.Invalid, "skiplang: write value did not evaluate to a File")
		}
		values = append(values, f)
	}
	d.WriteArray(c, skfs.SID(s.Key), values)
	return nil
}
