// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package invalidate

import (
	"sort"

	"github.com/grailbio/base/bitset"
	"github.com/skiplabs/skfs"
)

// DirtySet is the set of reader Paths known to be stale and scheduled
// for recomputation. Context.Update drains it in ascending Path
// order, which is what makes recomputation order deterministic and
// test-friendly.
//
// Membership is kept in a map for every key shape, alongside a slice
// of marked paths that Pop sorts before choosing; DirtySet itself does
// not use the bitset-backed DenseIndex below.
type DirtySet struct {
	sparse map[skfs.Path]struct{}
	order  []skfs.Path // insertion isn't ordered; sorted lazily by Pop
}

// NewDirtySet constructs an empty DirtySet.
func NewDirtySet() *DirtySet {
	return &DirtySet{sparse: make(map[skfs.Path]struct{})}
}

// Mark adds p to the dirty set.
func (d *DirtySet) Mark(p skfs.Path) {
	if _, ok := d.sparse[p]; ok {
		return
	}
	d.sparse[p] = struct{}{}
	d.order = append(d.order, p)
}

// Contains reports whether p is currently marked dirty.
func (d *DirtySet) Contains(p skfs.Path) bool {
	_, ok := d.sparse[p]
	return ok
}

// Len reports the number of dirty paths.
func (d *DirtySet) Len() int { return len(d.sparse) }

// Pop removes and returns the smallest-ordered dirty path along with
// true, or the zero Path and false if the set is empty. Using the
// smallest-ordered path first, repeatedly, is what the driver loop
// relies on for deterministic recomputation.
func (d *DirtySet) Pop() (skfs.Path, bool) {
	if len(d.sparse) == 0 {
		return skfs.Path{}, false
	}
	sort.Slice(d.order, func(i, j int) bool { return d.order[i].Less(d.order[j]) })
	var (
		chosen skfs.Path
		found  bool
	)
	for i, p := range d.order {
		if _, ok := d.sparse[p]; ok {
			chosen = p
			found = true
			d.order = d.order[i+1:]
			break
		}
	}
	if !found {
		d.order = nil
		return skfs.Path{}, false
	}
	delete(d.sparse, chosen)
	return chosen, true
}

// denseWords sizes a bitset word array for up to n bits -- used by
// callers (e.g. skfs/ctx's GC) that want to test-and-set membership over a
// dense, pre-enumerated index of items rather than pay DirtySet's map
// overhead; exposed here so that usage stays grounded on
// grailbio-base/bitset's actual API instead of reimplementing it.
func denseWords(n int) []uintptr {
	return make([]uintptr, (n+bitset.BitsPerWord-1)/bitset.BitsPerWord)
}

// DenseIndex is a reusable test-and-set bitset over a fixed universe
// of up to n items, indexed 0..n-1 by the caller. It is used by
// skfs/ctx's GC to track which registered ExternalPointers were
// reached, where that universe is known up front and a bitset is far
// cheaper than a map.
type DenseIndex struct {
	words []uintptr
}

// NewDenseIndex constructs a DenseIndex over a universe of n items.
func NewDenseIndex(n int) *DenseIndex {
	return &DenseIndex{words: denseWords(n)}
}

// TestAndSet sets bit i and reports whether it was already set.
func (x *DenseIndex) TestAndSet(i int) bool {
	if bitset.Test(x.words, i) {
		return true
	}
	bitset.Set(x.words, i)
	return false
}

// Test reports whether bit i is set, without setting it.
func (x *DenseIndex) Test(i int) bool {
	return bitset.Test(x.words, i)
}
