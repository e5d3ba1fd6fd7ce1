// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexerTokensBasic(t *testing.T) {
	l := New(`let x = 1 + 2; # a comment
write /out, k, "hi\n"`)
	var kinds []Kind
	for {
		tok := l.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == EOF {
			break
		}
	}
	assert.Equal(t, []Kind{
		Let, Ident, Assign, Int, Plus, Int, Semicolon,
		Write, Slashdir, Ident, Comma, Ident, Comma, String, EOF,
	}, kinds)
}

func TestLexerStringEscapes(t *testing.T) {
	l := New(`"a\tb\"c"`)
	tok := l.Next()
	assert.Equal(t, String, tok.Kind)
	assert.Equal(t, "a\tb\"c", tok.Text)
}

func TestLexerArrowAndEq(t *testing.T) {
	l := New(`-> == = -`)
	assert.Equal(t, Arrow, l.Next().Kind)
	assert.Equal(t, Eq, l.Next().Kind)
	assert.Equal(t, Assign, l.Next().Kind)
	assert.Equal(t, Minus, l.Next().Kind)
}

func TestLexerIllegalRune(t *testing.T) {
	l := New(`@`)
	tok := l.Next()
	assert.Equal(t, Illegal, tok.Kind)
}
