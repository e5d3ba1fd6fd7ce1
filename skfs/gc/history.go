// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gc

import (
	"sort"

	"github.com/grailbio/base/intervalmap"
	"github.com/skiplabs/skfs"
)

// History records the half-open generation range [created, removed)
// during which each directory name existed, so a benchmark harness
// driving many GC generations in a loop can ask "which directories
// were live at generation g" without re-walking a Context snapshot at
// every generation it wants to check -- intervalmap's static,
// build-once Kd-tree is the right shape for that: History batches
// closed ranges and only rebuilds the tree when a query actually
// needs one.
type History struct {
	gen     int64
	open    map[skfs.DirName]int64
	closed  []intervalmap.Entry
	tree    *intervalmap.T
	dirty   bool
}

// NewHistory constructs an empty History starting at generation 0.
func NewHistory() *History {
	return &History{open: make(map[skfs.DirName]int64)}
}

// Tick advances the history to the next generation, conventionally
// called once per completed GC pass.
func (h *History) Tick() { h.gen++ }

// Generation returns the current generation number.
func (h *History) Generation() int64 { return h.gen }

// DirCreated records that name began existing at the current
// generation. Calling it again for a name already open is a no-op,
// since a directory cannot be created twice without an intervening
// DirRemoved. It also satisfies ctx.LifecycleObserver, so a History
// can be registered directly against a Context to track its
// directories as they come and go.
func (h *History) DirCreated(name skfs.DirName) {
	if _, ok := h.open[name]; ok {
		return
	}
	h.open[name] = h.gen
}

// DirRemoved closes name's open interval at the current generation.
// It is a no-op if name was never recorded as created.
func (h *History) DirRemoved(name skfs.DirName) {
	start, ok := h.open[name]
	if !ok {
		return
	}
	delete(h.open, name)
	h.closed = append(h.closed, intervalmap.Entry{
		Interval: intervalmap.Interval{Start: start, Limit: h.gen},
		Data:     name,
	})
	h.dirty = true
}

// LiveAt returns, in ascending order, every directory name live at
// generation g: still-open directories created at or before g, plus
// any closed interval containing g.
func (h *History) LiveAt(g int64) []skfs.DirName {
	var names []skfs.DirName
	for name, start := range h.open {
		if start <= g {
			names = append(names, name)
		}
	}
	if len(h.closed) > 0 {
		if h.dirty || h.tree == nil {
			h.tree = intervalmap.New(h.closed)
			h.dirty = false
		}
		var ents []*intervalmap.Entry
		h.tree.Get(intervalmap.Interval{Start: g, Limit: g + 1}, &ents)
		for _, e := range ents {
			names = append(names, e.Data.(skfs.DirName))
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
