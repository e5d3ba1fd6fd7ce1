// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package skfs

// Time is a strictly monotonic tick counter. TimeZero is the
// pre-history sentinel: no write or recomputation is ever stamped
// with it, so comparisons against it are always "older than anything
// observed."
type Time int64

// TimeZero is the pre-history sentinel.
const TimeZero Time = 0

// Before reports whether t happened strictly before other.
func (t Time) Before(other Time) bool { return t < other }

// Clock hands out strictly increasing Time values. A single Clock is
// owned by each Context; it is not safe for concurrent use, matching
// the engine's single-writer, single-threaded concurrency model.
type Clock struct {
	now Time
}

// Tick advances the clock by one and returns the new time. Every
// write and every invalidation-drain batch gets its own tick, so two
// writes share a tick only when explicitly batched together (see
// dir.EagerDir.WriteArrayMany).
func (c *Clock) Tick() Time {
	c.now++
	return c.now
}

// Now returns the current time without advancing the clock.
func (c *Clock) Now() Time { return c.now }
