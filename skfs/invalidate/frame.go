// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package invalidate implements the dependency tracker and
// invalidation machinery: reader frames that record "who read what at
// which time" during a mapper run or a lazy compute, and the
// dirty-reader set that a write populates and Context.Update drains.
//
// This package holds no reference to skfs/ctx or skfs/dir, by design:
// rather than an ambient current-context global that re-entrant
// callbacks reach for implicitly, every engine entry point threads an
// explicit context parameter. Frame is that explicit parameter:
// skfs/ctx.Context owns an explicit stack of *Frame values and passes
// the top of the stack to whichever EagerDir/LazyDir operation is
// recording dependencies, rather than reaching for a package-level
// global.
package invalidate

import "github.com/skiplabs/skfs"

// Dep is one recorded dependency: a reader observed (dir, key) at the
// write time it held when read.
type Dep struct {
	Path      skfs.Path
	WriteTime skfs.Time
}

// Frame accumulates the dependencies observed during one mapper run or
// one lazy-directory compute. A Frame is pushed before invoking a
// compute function and popped (onto its caller, if nested) afterward.
type Frame struct {
	// Reader is the path whose value is being computed by this frame
	// (a mapper's output cell, or a lazy directory's entry).
	Reader skfs.Path
	deps   []Dep
}

// NewFrame constructs a Frame that will record dependencies on behalf
// of reader.
func NewFrame(reader skfs.Path) *Frame {
	return &Frame{Reader: reader}
}

// Record appends a dependency read during this frame. Duplicate reads
// of the same path are coalesced to the most recent write time seen.
func (f *Frame) Record(dep Dep) {
	for i := range f.deps {
		if f.deps[i].Path == dep.Path {
			if f.deps[i].WriteTime < dep.WriteTime {
				f.deps[i].WriteTime = dep.WriteTime
			}
			return
		}
	}
	f.deps = append(f.deps, dep)
}

// Deps returns the dependencies recorded so far, in recording order.
func (f *Frame) Deps() []Dep {
	out := make([]Dep, len(f.deps))
	copy(out, f.deps)
	return out
}
