// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs/skiplang/ast"
)

func TestParseLetAndWrite(t *testing.T) {
	p := New(`let x = 1 + 2 * 3;
write /out, total, x;`)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	require.Len(t, prog.Init, 2)

	let, ok := prog.Init[0].(ast.Let)
	require.True(t, ok)
	assert.Equal(t, "x", let.Name)

	write, ok := prog.Init[1].(ast.Write)
	require.True(t, ok)
	assert.Equal(t, "/out", write.Dir)
	assert.Equal(t, "total", write.Key)
	require.Len(t, write.Values, 1)
}

func TestParseMkdirFromMapper(t *testing.T) {
	p := New(`mkdir /derived from /src fn(k, v) { v }`)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	require.Len(t, prog.Init, 1)

	m, ok := prog.Init[0].(ast.Mkdir)
	require.True(t, ok)
	assert.Equal(t, "/derived", m.Dir)
	assert.Equal(t, "/src", m.Source)
	require.NotNil(t, m.Mapper)
	assert.Equal(t, []string{"k", "v"}, m.Mapper.Params)
}

func TestParseMkdirLazy(t *testing.T) {
	p := New(`mkdir /lazy fn(k) { k }`)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	m, ok := prog.Init[0].(ast.Mkdir)
	require.True(t, ok)
	assert.Equal(t, "/lazy", m.Dir)
	require.NotNil(t, m.Compute)
	assert.Empty(t, m.Source)
}

func TestParseIfExpression(t *testing.T) {
	p := New(`let x = if 1 < 2 { 10 } else { 20 };`)
	prog, err := p.ParseProgram()
	require.NoError(t, err)
	let := prog.Init[0].(ast.Let)
	ifExpr, ok := let.Value.(ast.If)
	require.True(t, ok)
	assert.NotNil(t, ifExpr.Cond)
}

func TestParseErrorOnBadToken(t *testing.T) {
	p := New(`let = 1;`)
	_, err := p.ParseProgram()
	assert.Error(t, err)
}
