// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package parser implements a recursive-descent parser over
// skiplang/lexer tokens, producing a skiplang/ast.Program. Errors
// surface as *errs.Error (Kind Invalid), not a second taxonomy, per
// the ambient error-handling convention the rest of the engine
// follows.
package parser

import (
	"strconv"

	"github.com/skiplabs/skfs/internal/errs"
	"github.com/skiplabs/skfs/skiplang/ast"
	"github.com/skiplabs/skfs/skiplang/lexer"
)

// Parser holds one token of lookahead over a lexer.Lexer.
type Parser struct {
	lex *lexer.Lexer
	tok lexer.Token
}

// New constructs a Parser over src.
func New(src string) *Parser {
	p := &Parser{lex: lexer.New(src)}
	p.advance()
	return p
}

func (p *Parser) advance() { p.tok = p.lex.Next() }

func (p *Parser) expect(k lexer.Kind) (lexer.Token, error) {
	if p.tok.Kind != k {
		return lexer.Token{}, errs.E(errs.Invalid, "skiplang: expected "+k.String()+", got "+p.tok.Kind.String())
	}
	t := p.tok
	p.advance()
	return t, nil
}

// ParseProgram parses an entire source file into a Program: a
// sequence of top-level statements run as the init(ctx, srcDir) hook.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.tok.Kind != lexer.EOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Init = append(prog.Init, stmt)
	}
	return prog, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.tok.Kind {
	case lexer.Let:
		return p.parseLet()
	case lexer.Mkdir:
		return p.parseMkdir()
	case lexer.Write:
		return p.parseWrite()
	default:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSemi()
		return ast.ExprStmt{Value: e}, nil
	}
}

func (p *Parser) skipSemi() {
	if p.tok.Kind == lexer.Semicolon {
		p.advance()
	}
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	p.advance() // 'let'
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Assign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSemi()
	return ast.Let{Name: name.Text, Value: val}, nil
}

// parseDirLit parses a '/'-separated directory literal, e.g.
// /counts/by_key, as a plain string: DirNames are path-like but are
// not themselves expressions.
func (p *Parser) parseDirLit() (string, error) {
	t, err := p.expect(lexer.Slashdir)
	if err != nil {
		return "", err
	}
	name := t.Text
	for p.tok.Kind == lexer.Ident {
		name += p.tok.Text
		p.advance()
		if p.tok.Kind != lexer.Slashdir {
			break
		}
		name += p.tok.Text
		p.advance()
	}
	return name, nil
}

func (p *Parser) parseMkdir() (ast.Stmt, error) {
	p.advance() // 'mkdir'
	dir, err := p.parseDirLit()
	if err != nil {
		return nil, err
	}
	m := ast.Mkdir{Dir: dir}
	if p.tok.Kind == lexer.Ident && p.tok.Text == "from" {
		p.advance()
		src, err := p.parseDirLit()
		if err != nil {
			return nil, err
		}
		m.Source = src
		fn, err := p.parseFnLit()
		if err != nil {
			return nil, err
		}
		m.Mapper = fn
	} else if p.tok.Kind == lexer.Fn {
		fn, err := p.parseFnLit()
		if err != nil {
			return nil, err
		}
		m.Compute = fn
	}
	p.skipSemi()
	return m, nil
}

func (p *Parser) parseWrite() (ast.Stmt, error) {
	p.advance() // 'write'
	dir, err := p.parseDirLit()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Comma); err != nil {
		return nil, err
	}
	key, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Comma); err != nil {
		return nil, err
	}
	var values []ast.Expr
	for {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.tok.Kind != lexer.Comma {
			break
		}
		p.advance()
	}
	p.skipSemi()
	return ast.Write{Dir: dir, Key: key.Text, Values: values}, nil
}

func (p *Parser) parseFnLit() (*ast.FnLit, error) {
	if _, err := p.expect(lexer.Fn); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var params []string
	for p.tok.Kind != lexer.RParen {
		id, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		params = append(params, id.Text)
		if p.tok.Kind == lexer.Comma {
			p.advance()
		}
	}
	p.advance() // ')'
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &ast.FnLit{Params: params, Body: body}, nil
}

// parseExpr parses the lowest-precedence level: comparisons.
func (p *Parser) parseExpr() (ast.Expr, error) {
	if p.tok.Kind == lexer.If {
		return p.parseIf()
	}
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Lt || p.tok.Kind == lexer.Gt || p.tok.Kind == lexer.Eq {
		op := p.tok.Text
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	p.advance() // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Else); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return ast.If{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Plus || p.tok.Kind == lexer.Minus {
		op := p.tok.Text
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Star {
		op := p.tok.Text
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = ast.BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.tok.Kind {
	case lexer.Int:
		n, err := strconv.ParseInt(p.tok.Text, 10, 64)
		if err != nil {
			return nil, errs.E(errs.Invalid, "skiplang: bad integer literal "+p.tok.Text)
		}
		p.advance()
		return ast.IntLit{Value: n}, nil
	case lexer.String:
		s := p.tok.Text
		p.advance()
		return ast.StringLit{Value: s}, nil
	case lexer.Ident:
		name := p.tok.Text
		p.advance()
		if p.tok.Kind == lexer.LParen {
			p.advance()
			var args []ast.Expr
			for p.tok.Kind != lexer.RParen {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.tok.Kind == lexer.Comma {
					p.advance()
				}
			}
			p.advance() // ')'
			return ast.Call{Fn: name, Args: args}, nil
		}
		return ast.Ident{Name: name}, nil
	case lexer.Fn:
		return p.parseFnLit()
	case lexer.LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, errs.E(errs.Invalid, "skiplang: unexpected token "+p.tok.Kind.String())
	}
}
