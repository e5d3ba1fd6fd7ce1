// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package reduce

import "github.com/skiplabs/skfs"

// Sum incrementally maintains the sum of all skfs.Int values across an
// EagerDir's entries.
type Sum struct{}

func (Sum) CanReset() bool { return true }

func (Sum) Init(values []skfs.File) []skfs.File {
	var total int64
	for _, v := range values {
		if n, ok := v.(skfs.Int); ok {
			total += int64(n)
		}
	}
	return []skfs.File{skfs.Int(total)}
}

func (s Sum) Update(state []skfs.File, toRemove, toAdd []skfs.File) ([]skfs.File, bool) {
	var total int64
	if len(state) == 1 {
		if n, ok := state[0].(skfs.Int); ok {
			total = int64(n)
		}
	}
	for _, v := range toRemove {
		if n, ok := v.(skfs.Int); ok {
			total -= int64(n)
		}
	}
	for _, v := range toAdd {
		if n, ok := v.(skfs.Int); ok {
			total += int64(n)
		}
	}
	return []skfs.File{skfs.Int(total)}, true
}

// Count incrementally maintains the number of values across an
// EagerDir's entries.
type Count struct{}

func (Count) CanReset() bool { return true }

func (Count) Init(values []skfs.File) []skfs.File {
	return []skfs.File{skfs.Int(len(values))}
}

func (Count) Update(state []skfs.File, toRemove, toAdd []skfs.File) ([]skfs.File, bool) {
	var n int64
	if len(state) == 1 {
		if v, ok := state[0].(skfs.Int); ok {
			n = int64(v)
		}
	}
	n += int64(len(toAdd) - len(toRemove))
	return []skfs.File{skfs.Int(n)}, true
}

// Concat maintains the concatenation of every value written across
// all keys: Init keeps its input order, and Update drops removed
// values by digest and appends added ones at the end, so the
// aggregate's order depends on write order.
type Concat struct{}

func (Concat) CanReset() bool { return false } // order-sensitive, no safe partial re-Init.

func (Concat) Init(values []skfs.File) []skfs.File {
	out := make([]skfs.File, len(values))
	copy(out, values)
	return out
}

func (Concat) Update(state []skfs.File, toRemove, toAdd []skfs.File) ([]skfs.File, bool) {
	removed := make(map[[32]byte]bool, len(toRemove))
	for _, v := range toRemove {
		removed[digestKey(v)] = true
	}
	out := make([]skfs.File, 0, len(state)+len(toAdd))
	for _, v := range state {
		if !removed[digestKey(v)] {
			out = append(out, v)
		}
	}
	out = append(out, toAdd...)
	return out, true
}

func digestKey(f skfs.File) [32]byte {
	var k [32]byte
	copy(k[:], f.Digest().Bytes())
	return k
}
