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
	"github.com/skiplabs/skfs/reduce"
)

func TestWriteArrayNoopOnIdenticalValueDoesNotMarkReaderDirty(t *testing.T) {
	c := ctx.New()
	src, err := c.MkEagerDir("/src")
	require.NoError(t, err)
	out, err := c.MkEagerDir("/out")
	require.NoError(t, err)

	src.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(1)})
	runs := 0
	dir.AttachMapper(c, src, out, func(eng dir.Engine, source, o *dir.EagerDir, key skfs.BaseName) {
		runs++
		o.WriteArray(eng, key, source.GetArray(eng, key))
	})
	require.Equal(t, 1, runs)

	src.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(1)})
	require.NoError(t, c.Update())

	assert.Equal(t, 1, runs, "rewriting an identical value must not mark readers dirty")
}

func TestRemoveThenGetArrayRawEmpty(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/d")
	require.NoError(t, err)

	d.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(1)})
	d.Remove(c, skfs.SID("k"))
	assert.Empty(t, d.GetArrayRaw(skfs.SID("k")))
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/d")
	require.NoError(t, err)
	assert.NotPanics(t, func() { d.Remove(c, skfs.SID("absent")) })
}

func TestKeysExcludesRemoved(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/d")
	require.NoError(t, err)

	d.WriteArray(c, skfs.SID("a"), []skfs.File{skfs.Int(1)})
	d.WriteArray(c, skfs.SID("b"), []skfs.File{skfs.Int(2)})
	d.Remove(c, skfs.SID("a"))

	assert.Equal(t, []skfs.BaseName{skfs.SID("b")}, d.Keys())
}

func TestWriteEntryMergesByProducerOrder(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/out")
	require.NoError(t, err)

	pLate := skfs.NewPath(skfs.DirName("/z"), skfs.SID("k"))
	pEarly := skfs.NewPath(skfs.DirName("/a"), skfs.SID("k"))

	d.WriteEntry(c, pLate, skfs.SID("k"), []skfs.File{skfs.Int(2)})
	d.WriteEntry(c, pEarly, skfs.SID("k"), []skfs.File{skfs.Int(1)})

	got := d.GetArrayRaw(skfs.SID("k"))
	assert.Equal(t, []skfs.File{skfs.Int(1), skfs.Int(2)}, got, "contributions must merge in ascending producer-path order regardless of write order")
}

func TestWriteArrayManyBatchUpdatesReducer(t *testing.T) {
	c := ctx.New()
	in, err := c.MkEagerDir("/in")
	require.NoError(t, err)
	sum, err := c.MkEagerDir("/sum")
	require.NoError(t, err)
	dir.AttachReducer(c, in, sum, skfs.SID("total"), reduce.Sum{})

	in.WriteArrayMany(c, func(yield func(skfs.BaseName, []skfs.File) bool) {
		yield(skfs.SID("a"), []skfs.File{skfs.Int(1)})
		yield(skfs.SID("b"), []skfs.File{skfs.Int(2)})
	})

	assert.Equal(t, []skfs.File{skfs.Int(3)}, sum.GetArrayRaw(skfs.SID("total")), "reducer aggregate must cover every key written in the batch")
}

func TestCloneIsIndependent(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/d")
	require.NoError(t, err)
	d.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(1)})

	clone := d.Clone()
	clone.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(99)})

	assert.Equal(t, []skfs.File{skfs.Int(1)}, d.GetArrayRaw(skfs.SID("k")), "mutating a clone must not affect the original")
	assert.Equal(t, []skfs.File{skfs.Int(99)}, clone.GetArrayRaw(skfs.SID("k")))
}

func TestAttachMapperPopulatesExistingKeysImmediately(t *testing.T) {
	c := ctx.New()
	src, err := c.MkEagerDir("/src")
	require.NoError(t, err)
	out, err := c.MkEagerDir("/out")
	require.NoError(t, err)

	src.WriteArray(c, skfs.SID("a"), []skfs.File{skfs.Int(5)})
	dir.AttachMapper(c, src, out, func(eng dir.Engine, source, o *dir.EagerDir, key skfs.BaseName) {
		vs := source.GetArray(eng, key)
		doubled := make([]skfs.File, len(vs))
		for i, v := range vs {
			doubled[i] = skfs.Int(int64(v.(skfs.Int)) * 2)
		}
		o.WriteArray(eng, key, doubled)
	})

	assert.Equal(t, []skfs.File{skfs.Int(10)}, out.GetArrayRaw(skfs.SID("a")))
}
