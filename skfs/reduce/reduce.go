// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package reduce implements EReducer, the incremental-fold engine
// attached to an EagerDir.
package reduce

import "github.com/skiplabs/skfs"

// EReducer maintains one or more aggregate entries derived from the
// per-key entries of an EagerDir.
//
// Implementations must satisfy: for any sequence of writes, Init
// applied to the final full set of values and repeated Update calls
// applied incrementally from an empty state must produce the same
// aggregate. The engine is free to call Init at any time in place of
// an incremental Update sequence (e.g. during GC replay, gated by
// CanReset); both entry points must therefore remain equivalent.
type EReducer interface {
	// CanReset reports whether Init is safe to call with partial data
	// during GC replay. A reducer that folds over values whose removal
	// cannot be observed out of order (e.g. order-sensitive folds)
	// should report false, in which case GC evacuates the aggregate
	// whole rather than recomputing it.
	CanReset() bool

	// Init computes the initial aggregate from a full scan of values.
	Init(values []skfs.File) []skfs.File

	// Update applies an incremental delta -- entries removed and
	// entries added since the aggregate in state was computed -- and
	// returns the new aggregate. Update returns (nil, false) if it
	// cannot incrementally maintain the aggregate, signaling the engine
	// to fall back to Init.
	//
	// The engine calls Update at most once per EagerDir.WriteArrayMany
	// batch, with the full set of removals and additions for that batch
	// aggregated into single toRemove/toAdd slices -- never once per
	// entry -- which is what keeps an incremental rebuild and a full
	// rebuild confluent regardless of how writes happen to be batched.
	Update(state []skfs.File, toRemove, toAdd []skfs.File) ([]skfs.File, bool)
}
