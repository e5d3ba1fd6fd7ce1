// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package hash implements File interning: a canonical table mapping a
// File's structural digest (github.com/grailbio/base/digest) to the
// single canonical instance of that value, so that cache comparisons
// across the engine can rely on pointer/interface identity instead of
// deep equality.
package hash

import (
	"github.com/grailbio/base/digest"
)

// Digestable is anything whose structural identity is captured by a
// Digest; skfs.File satisfies this.
type Digestable interface {
	Digest() digest.Digest
}

// Table is a single-writer interning table: not safe for concurrent
// use, matching the engine's single-threaded model.
type Table[F Digestable] struct {
	entries map[digest.Digest]F
}

// NewTable constructs an empty interning table.
func NewTable[F Digestable]() *Table[F] {
	return &Table[F]{entries: make(map[digest.Digest]F)}
}

// Intern returns the canonical instance equal (by digest) to f,
// registering f as canonical if none existed yet.
func (t *Table[F]) Intern(f F) F {
	d := f.Digest()
	if canon, ok := t.entries[d]; ok {
		return canon
	}
	t.entries[d] = f
	return f
}

// Same reports whether a and b intern to the same canonical value,
// i.e. have equal digests.
func Same[F Digestable](a, b F) bool {
	return a.Digest() == b.Digest()
}

// Len returns the number of distinct values currently interned.
func (t *Table[F]) Len() int { return len(t.entries) }
