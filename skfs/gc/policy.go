// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gc implements scheduling policy and diagnostics for the
// copying collector, ctx.Context.GC -- when a driver loop should pay
// for a collection pass, and a queryable history of which directories
// existed across past generations, for the benchmark and QuickCheck
// harnesses to cross-check GC against a baseline that never collects.
package gc

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
)

// Policy decides, from the engine's clock alone, whether a collection
// pass is due. The zero Policy collects on every call, matching
// skfs/driver's default of one pass per batch.
type Policy struct {
	everyTicks skfs.Time
	last       skfs.Time
	ran        bool
}

// Every constructs a Policy that collects at most once per n ticks of
// the engine clock.
func Every(n skfs.Time) *Policy {
	return &Policy{everyTicks: n}
}

// Due reports whether a pass is due given the engine's current time.
func (p *Policy) Due(now skfs.Time) bool {
	if !p.ran {
		return true
	}
	if p.everyTicks <= 0 {
		return true
	}
	return now-p.last >= p.everyTicks
}

// Result reports the outcome of one Collect call.
type Result struct {
	Finalized int
}

// Collect runs c.GC() if Due reports true, and records the time it
// ran for future Due calls. It is a no-op, reporting a zero Result,
// when collection is not yet due.
func (p *Policy) Collect(c *ctx.Context) (Result, error) {
	if !p.Due(c.Now()) {
		return Result{}, nil
	}
	finalized, err := c.GC()
	if err != nil {
		return Result{}, err
	}
	p.last = c.Now()
	p.ran = true
	return Result{Finalized: finalized}, nil
}
