// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ctx

import (
	"sync"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/traverse"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/internal/hash"
	"github.com/skiplabs/skfs/invalidate"
)

// GC performs one copying-collection pass over c: every directory's
// entries are relocated through a fresh interning table shared across
// the whole pass, so that two directories holding an equal File still
// share one instance afterward -- the identity invariant a copying
// collector is required to preserve. Directories are independent of
// one another, so relocation is sharded one goroutine per directory
// via traverse.Parallel, the same shape grailbio-base/traverse is
// built for.
//
// Any registered ExternalPointer whose digest
// this pass does not reach has failed to survive the copy: its
// Finalize is invoked exactly once and it is dropped from the
// registry. Finalize must tolerate being called on a Value some other
// still-live pointer also names, since interning already deduplicates
// equal pointers before GC ever runs.
//
// Every EagerDir with an attached reducer that reports CanReset is
// also re-derived from a fresh scan of its source after relocation,
// self-healing any drift; a reducer that cannot reset keeps whatever
// aggregate the copy carried across, untouched.
//
// GC returns the number of ExternalPointers finalized during this
// pass, for callers (skfs/gc) that report collection statistics.
func (c *Context) GC() (int, error) {
	names := c.dirs.Keys()
	ds := make([]dir.Dir, len(names))
	for i, n := range names {
		ds[i], _ = c.dirs.Get(n)
	}

	// newInterns is shared across every shard so that two directories
	// holding an equal File still canonicalize to one instance, but
	// hash.Table is documented as unsafe for concurrent use -- a mutex
	// serializes the actual Intern call while leaving each directory's
	// Relocate free to run concurrently.
	newInterns := hash.NewTable[skfs.File]()
	var internMu sync.Mutex
	intern := func(f skfs.File) skfs.File {
		internMu.Lock()
		defer internMu.Unlock()
		return newInterns.Intern(f)
	}
	reached := make([]map[digest.Digest]struct{}, len(ds))

	if err := traverse.Parallel(len(ds)).Do(func(i int) error {
		reached[i] = ds[i].Relocate(intern)
		return nil
	}); err != nil {
		return 0, err
	}

	for _, ed := range ds {
		if v, ok := ed.(*dir.EagerDir); ok {
			v.RefreshReducer(c)
		}
	}

	// The universe of candidates is exactly c.externalPointers, known up
	// front, so reachability is tracked with a DenseIndex bitset rather
	// than a map: each pointer's digest gets a fixed slot, and every
	// shard's reached set flips that slot instead of growing a map
	// entry neither GC nor the caller otherwise needs.
	digestIndex := make(map[digest.Digest]int, len(c.externalPointers))
	for d := range c.externalPointers {
		digestIndex[d] = len(digestIndex)
	}
	live := invalidate.NewDenseIndex(len(digestIndex))
	for _, seen := range reached {
		for d := range seen {
			if i, ok := digestIndex[d]; ok {
				live.TestAndSet(i)
			}
		}
	}
	finalized := 0
	for d, ep := range c.externalPointers {
		if live.Test(digestIndex[d]) {
			continue
		}
		if ep.Finalize != nil {
			ep.Finalize(ep.Value)
		}
		delete(c.externalPointers, d)
		finalized++
	}

	c.interns = newInterns
	return finalized, nil
}

// ExternalPointerCount returns the number of distinct ExternalPointers
// currently registered as live, for diagnostics.
func (c *Context) ExternalPointerCount() int { return len(c.externalPointers) }
