// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyEveryTicksThrottles(t *testing.T) {
	c := ctx.New()
	p := Every(skfs.Time(3))

	r, err := p.Collect(c)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Finalized)

	// Advance the clock by less than the period: the next Collect
	// should skip, reported by Due returning false.
	c.Tick()
	assert.False(t, p.Due(c.Now()))

	c.Tick()
	c.Tick()
	assert.True(t, p.Due(c.Now()))
}

func TestPolicyFinalizesUnreachableExternalPointer(t *testing.T) {
	c := ctx.New()
	ed, err := c.MkEagerDir(skfs.DirName("/in"))
	require.NoError(t, err)

	var finalizedWith int64 = -1
	ed.WriteArray(c, skfs.SID("k"), []skfs.File{
		skfs.ExternalPointer{Value: 7, Finalize: func(v int64) { finalizedWith = v }},
	})
	require.Equal(t, 1, c.ExternalPointerCount())

	ed.Remove(c, skfs.SID("k"))

	p := Every(0)
	r, err := p.Collect(c)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Finalized)
	assert.Equal(t, int64(7), finalizedWith)
	assert.Equal(t, 0, c.ExternalPointerCount())
}
