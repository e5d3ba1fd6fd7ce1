// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
)

func TestLazyDirMemoizesUntilDirty(t *testing.T) {
	c := ctx.New()
	computes := 0
	ld, err := c.MkLazyDir("/lazy", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		computes++
		return []skfs.File{skfs.Int(int64(key.Int()) * 2)}
	})
	require.NoError(t, err)

	got := ld.GetArray(c, skfs.IID(21))
	assert.Equal(t, []skfs.File{skfs.Int(42)}, got)
	assert.Equal(t, 1, computes)

	got2 := ld.GetArray(c, skfs.IID(21))
	assert.Equal(t, got, got2)
	assert.Equal(t, 1, computes, "re-reading an unchanged key must not recompute")
}

func TestLazyDirRecomputesAfterHandleDirty(t *testing.T) {
	c := ctx.New()
	computes := 0
	ld, err := c.MkLazyDir("/lazy", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		computes++
		return []skfs.File{skfs.Int(1)}
	})
	require.NoError(t, err)

	ld.GetArray(c, skfs.SID("k"))
	require.Equal(t, 1, computes)

	require.NoError(t, ld.HandleDirty(c, skfs.SID("k")))
	ld.GetArray(c, skfs.SID("k"))
	assert.Equal(t, 2, computes)
}

func TestLazyDirToleratesSelfCycle(t *testing.T) {
	c := ctx.New()
	var ld *dir.LazyDir
	ld, _ = c.MkLazyDir("/cyclic", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		if key.Int() == 0 {
			// Recursing back into the same key that's already in
			// flight must return its last memoized value (empty, the
			// first time) instead of deadlocking or infinitely
			// recursing.
			return self.GetArray(eng, skfs.IID(0))
		}
		return []skfs.File{skfs.Int(1)}
	})

	assert.NotPanics(t, func() {
		got := ld.GetArray(c, skfs.IID(0))
		assert.Empty(t, got)
	})
}

func TestLazyDirFibMemoisationIsLinear(t *testing.T) {
	c := ctx.New()
	computes := 0
	var fib *dir.LazyDir
	fib, _ = c.MkLazyDir("/fib", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		computes++
		n := key.Int()
		if n < 2 {
			return []skfs.File{skfs.Int(n)}
		}
		a := self.GetArray(eng, skfs.IID(n-1))
		b := self.GetArray(eng, skfs.IID(n-2))
		return []skfs.File{skfs.Int(int64(a[0].(skfs.Int)) + int64(b[0].(skfs.Int)))}
	})

	got := fib.GetArray(c, skfs.IID(20))
	require.Len(t, got, 1)
	assert.Equal(t, skfs.Int(6765), got[0])
	assert.Equal(t, 21, computes, "one compute per distinct key 0..20")

	before := computes
	fib.GetArray(c, skfs.IID(20))
	assert.Equal(t, before, computes, "re-forcing with no intervening write must not recompute")
}

func TestLazyDirInvalidatesDownstreamLazyReader(t *testing.T) {
	c := ctx.New()
	base, err := c.MkLazyDir("/base", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		return []skfs.File{skfs.Int(1)}
	})
	require.NoError(t, err)

	derivedComputes := 0
	derived, err := c.MkLazyDir("/derived", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		derivedComputes++
		v := base.GetArray(eng, key)
		return []skfs.File{skfs.Int(int64(v[0].(skfs.Int)) * 10)}
	})
	require.NoError(t, err)

	got := derived.GetArray(c, skfs.SID("k"))
	assert.Equal(t, []skfs.File{skfs.Int(10)}, got)
	assert.Equal(t, 1, derivedComputes)

	// derived must not recompute again just from being re-read.
	derived.GetArray(c, skfs.SID("k"))
	assert.Equal(t, 1, derivedComputes)

	// base recomputing (here to the same value, under a fresh write
	// time) must mark derived's reader of it dirty, even though derived
	// never wrote anything itself -- a lazy dir reading another lazy
	// dir's output, not an eager one.
	require.NoError(t, base.HandleDirty(c, skfs.SID("k")))
	base.GetArray(c, skfs.SID("k"))
	require.NoError(t, c.Update(), "draining the dirty set must dispatch to derived's Producer")

	got = derived.GetArray(c, skfs.SID("k"))
	assert.Equal(t, []skfs.File{skfs.Int(10)}, got)
	assert.Equal(t, 2, derivedComputes, "derived must recompute once its dependency's lazy output is recomputed")
}

func TestLazyDirCloneRecomputesIndependently(t *testing.T) {
	c := ctx.New()
	computes := 0
	ld, err := c.MkLazyDir("/lazy", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		computes++
		return []skfs.File{skfs.Int(7)}
	})
	require.NoError(t, err)
	ld.GetArray(c, skfs.SID("k"))
	require.Equal(t, 1, computes)

	clone := ld.Clone()
	got := clone.GetArray(c, skfs.SID("k"))
	assert.Equal(t, []skfs.File{skfs.Int(7)}, got)
	assert.Equal(t, 2, computes, "a clone's entries start dirty and recompute independently")
}
