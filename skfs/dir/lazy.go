// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dir

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/internal/ordmap"
	"github.com/skiplabs/skfs/invalidate"
)

// ComputeFunc computes key's value for a LazyDir, given self (so a
// recursive definition can call self.GetArray on its own directory)
// and whatever other directories the closure captured at Mkdir time.
type ComputeFunc func(eng Engine, self *LazyDir, key skfs.BaseName) []skfs.File

type lazyState int

const (
	lazyDirty lazyState = iota
	lazyInFlight
	lazyClean
)

// LazyEntry is one key's memoized state in a LazyDir.
type LazyEntry struct {
	value     []skfs.File
	writeTime skfs.Time // time of the last recompute, for dependents' Dep records
	state     lazyState
	deps      []invalidate.Dep

	// readers holds every (dir, key) that has read this entry while a
	// reader frame was active, mirroring Entry.readers in eager.go: a
	// recompute that produces a new writeTime marks each of them dirty,
	// so a lazy dir reading another lazy dir's output is invalidated
	// the same way it would be reading an eager one.
	readers map[skfs.Path]struct{}
}

// LazyDir is a directory whose entries are computed on first read and
// memoized until one of their recorded dependencies changes.
//
// Unlike github.com/grailbio/base/sync/loadingcache.Value, whose
// GetOrLoad blocks a second caller behind a condition variable while a
// first caller's Load runs, LazyDir never blocks: a read that recurses
// back into a key already being computed (a cycle) observes that
// key's entry in its in-flight state and gets back its last memoized
// value (empty, the first time) instead of deadlocking. skfs is
// single-threaded, so there is no concurrent-loader race to guard
// against, only self-recursion.
type LazyDir struct {
	dirName skfs.DirName
	compute ComputeFunc
	entries *ordmap.Map[skfs.BaseName, *LazyEntry]
}

// NewLazyDir constructs a LazyDir named name whose entries are
// computed by fn.
func NewLazyDir(name skfs.DirName, fn ComputeFunc) *LazyDir {
	return &LazyDir{dirName: name, compute: fn, entries: ordmap.New[skfs.BaseName, *LazyEntry]()}
}

func (d *LazyDir) Name() skfs.DirName { return d.dirName }
func (*LazyDir) isDir()               {}

// GetArray returns key's value, computing and memoizing it if this is
// the first read or a prior dependency has changed since the last
// compute. If called while a reader frame is active, it also records
// a dependency on (this directory, key).
func (d *LazyDir) GetArray(eng Engine, key skfs.BaseName) []skfs.File {
	value := d.force(eng, key)
	if f := eng.CurrentFrame(); f != nil {
		e, _ := d.entries.Get(key)
		f.Record(invalidate.Dep{Path: skfs.NewPath(d.dirName, key), WriteTime: e.writeTime})
		e.readers[f.Reader] = struct{}{}
	}
	return value
}

// force runs the five-step cache/recompute/cycle-tolerance algorithm:
// 1. no entry yet -> create one, dirty.
// 2. entry in flight (this is a cyclic recursive read) -> return its
//    last memoized value without recomputing or recording new deps.
// 3. entry clean -> return the memoized value.
// 4. entry dirty -> mark in flight, push a frame, run compute, pop the
//    frame, memoize the result and the frame's recorded deps, mark
//    clean.
// 5. always return the memoized value, clean or not.
func (d *LazyDir) force(eng Engine, key skfs.BaseName) []skfs.File {
	e, ok := d.entries.Get(key)
	if !ok {
		e = &LazyEntry{state: lazyDirty, readers: map[skfs.Path]struct{}{}}
		d.entries.Set(key, e)
	}
	switch e.state {
	case lazyInFlight:
		return e.value
	case lazyClean:
		return e.value
	}
	e.state = lazyInFlight
	reader := skfs.NewPath(d.dirName, key)
	f := invalidate.NewFrame(reader)
	eng.PushFrame(f)
	value := d.compute(eng, d, key)
	eng.PopFrame()
	e.value = value
	e.writeTime = eng.Tick()
	e.deps = f.Deps()
	e.state = lazyClean
	d.entries.Set(key, e)
	for r := range e.readers {
		eng.MarkDirty(r)
	}
	return value
}

// HandleDirty implements Producer: a dirty LazyDir entry is marked
// stale and recomputed lazily on its next read, never eagerly here.
func (d *LazyDir) HandleDirty(_ Engine, key skfs.BaseName) error {
	e, ok := d.entries.Get(key)
	if !ok {
		return nil
	}
	e.state = lazyDirty
	d.entries.Set(key, e)
	return nil
}

// Clone returns a copy of d sharing its compute function but with its
// own memoization cache, all entries marked dirty so the clone
// recomputes independently of the original's subsequent writes.
func (d *LazyDir) Clone() *LazyDir {
	nd := NewLazyDir(d.dirName, d.compute)
	for _, k := range d.entries.Keys() {
		e, _ := d.entries.Get(k)
		readers := make(map[skfs.Path]struct{}, len(e.readers))
		for r := range e.readers {
			readers[r] = struct{}{}
		}
		nd.entries.Set(k, &LazyEntry{value: append([]skfs.File(nil), e.value...), state: lazyDirty, readers: readers})
	}
	return nd
}
