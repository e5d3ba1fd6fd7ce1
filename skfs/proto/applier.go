// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package proto

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/dir"
)

// Applier accumulates parsed records into per-key value lists and
// writes them to a target EagerDir as a single WriteArrayMany batch
// once a separator record flushes the accumulated batch -- matching
// the protocol's "k\t\"v1\"\nk\t\"v2\"\n parses to {k -> [v1, v2]}"
// example, where repeated keys within one batch append rather than
// overwrite.
type Applier struct {
	scanner *Scanner
	pending map[skfs.BaseName][]skfs.File
	order   []skfs.BaseName
}

// NewApplier constructs an Applier with its own Scanner.
func NewApplier() *Applier {
	return &Applier{pending: make(map[skfs.BaseName][]skfs.File), scanner: NewScanner()}
}

// Feed parses chunk and applies any completed batches (records up to
// and including a separator) to out, in one WriteArrayMany call per
// batch. A final partial batch (no trailing separator yet) is held
// across calls until a separator, or Flush, completes it.
func (a *Applier) Feed(eng dir.Engine, out *dir.EagerDir, chunk []byte) {
	a.scanner.Feed(chunk)
	for _, rec := range a.scanner.Drain() {
		if rec.Separator {
			a.flush(eng, out)
			continue
		}
		a.pending[rec.Key] = append(a.pending[rec.Key], skfs.String(rec.Value))
		a.order = append(a.order, rec.Key)
	}
}

// Flush applies any accumulated but not-yet-separated records, as if
// a separator had just been seen. It is used by the driver at the end
// of a stdin read that reached EOF without a trailing blank-key line.
func (a *Applier) Flush(eng dir.Engine, out *dir.EagerDir) {
	a.flush(eng, out)
}

func (a *Applier) flush(eng dir.Engine, out *dir.EagerDir) {
	if len(a.pending) == 0 {
		return
	}
	seen := make(map[skfs.BaseName]bool, len(a.order))
	var keys []skfs.BaseName
	for _, k := range a.order {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	pending := a.pending
	out.WriteArrayMany(eng, func(yield func(skfs.BaseName, []skfs.File) bool) {
		for _, k := range keys {
			if !yield(k, pending[k]) {
				return
			}
		}
	})
	a.pending = make(map[skfs.BaseName][]skfs.File)
	a.order = nil
}
