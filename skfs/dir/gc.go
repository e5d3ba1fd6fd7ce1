// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dir

import (
	"github.com/grailbio/base/digest"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/internal/ordmap"
)

// relocateValues interns every element of vs through intern, recording
// each result's digest into reached.
func relocateValues(vs []skfs.File, intern func(skfs.File) skfs.File, reached map[digest.Digest]struct{}) []skfs.File {
	if len(vs) == 0 {
		return vs
	}
	out := make([]skfs.File, len(vs))
	for i, v := range vs {
		nv := intern(v)
		out[i] = nv
		reached[nv.Digest()] = struct{}{}
	}
	return out
}

// Relocate implements Dir: it interns every live entry's merged value
// and per-producer contributions through intern, and returns the
// digests it still holds reachable. Removed (tombstoned) entries hold
// no values and are skipped.
func (d *EagerDir) Relocate(intern func(skfs.File) skfs.File) map[digest.Digest]struct{} {
	reached := make(map[digest.Digest]struct{})
	for _, k := range d.entries.Keys() {
		e, _ := d.entries.Get(k)
		if e.removed {
			continue
		}
		e.merged = relocateValues(e.merged, intern, reached)
		relocated := ordmap.New[skfs.Path, []skfs.File]()
		for _, p := range e.contributions.Keys() {
			vs, _ := e.contributions.Get(p)
			relocated.Set(p, relocateValues(vs, intern, reached))
		}
		e.contributions = relocated
		d.entries.Set(k, e)
	}
	return reached
}

// RefreshReducer re-derives this directory's reducer aggregate from a
// full scan of its source, when the reducer reports that doing so is
// safe. A reducer that cannot reset is left untouched: GC evacuates
// its current aggregate whole rather than trying to recompute it out
// of order.
func (d *EagerDir) RefreshReducer(eng Engine) {
	s := d.reducerSink
	if s == nil || !s.r.CanReset() {
		return
	}
	s.outDir.WriteArray(eng, s.outKey, s.r.Init(s.source.allValues()))
}

// Relocate implements Dir: it interns every memoized entry's value
// through intern, regardless of cache state, and returns the digests
// it still holds reachable.
func (d *LazyDir) Relocate(intern func(skfs.File) skfs.File) map[digest.Digest]struct{} {
	reached := make(map[digest.Digest]struct{})
	for _, k := range d.entries.Keys() {
		e, _ := d.entries.Get(k)
		e.value = relocateValues(e.value, intern, reached)
		d.entries.Set(k, e)
	}
	return reached
}
