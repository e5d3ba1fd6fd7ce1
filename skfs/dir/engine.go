// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dir

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/invalidate"
)

// Engine is the minimal surface of skfs/ctx.Context that EagerDir and
// LazyDir operations need: a clock, the current reader frame (for
// dependency recording), the dirty-reader set, and the interning
// table. It exists so that this package never imports skfs/ctx --
// Context is instead required to satisfy this interface structurally,
// avoiding an import cycle while keeping every operation's signature
// close to the engine's own `(ctx, ...)` convention.
type Engine interface {
	// Tick advances the engine's clock by one and returns the new time.
	Tick() skfs.Time
	// Now returns the current time without advancing the clock.
	Now() skfs.Time
	// CurrentFrame returns the reader frame on top of the stack, or nil
	// if no mapper/lazy-compute is currently running.
	CurrentFrame() *invalidate.Frame
	// PushFrame pushes a new reader frame.
	PushFrame(f *invalidate.Frame)
	// PopFrame pops and returns the top reader frame.
	PopFrame() *invalidate.Frame
	// MarkDirty schedules p for recomputation.
	MarkDirty(p skfs.Path)
	// Intern returns the canonical instance of f, establishing that
	// equal Files share identity.
	Intern(f skfs.File) skfs.File
}

// Producer is implemented by directories whose entries are recomputed
// by the engine's invalidation driver rather than by direct client
// writes: EagerDir with an attached mapper recomputes a single output
// key eagerly during Context.Update; LazyDir instead just marks the
// corresponding cache entry stale, deferring recomputation to the
// next pull.
type Producer interface {
	// HandleDirty is called once per dirty key drained from the
	// context's dirty-reader set whose Path.Dir names this directory.
	HandleDirty(eng Engine, key skfs.BaseName) error
}
