// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ctx

import (
	"testing"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/reduce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCPreservesObservableStateWhenIdle(t *testing.T) {
	c := New()
	ed, err := c.MkEagerDir(skfs.DirName("/in"))
	require.NoError(t, err)
	ed.WriteArray(c, skfs.SID("a"), []skfs.File{skfs.String("x"), skfs.Int(1)})
	ed.WriteArray(c, skfs.SID("b"), []skfs.File{skfs.String("y")})

	before := append([]skfs.File(nil), ed.GetArrayRaw(skfs.SID("a"))...)

	finalized, err := c.GC()
	require.NoError(t, err)
	assert.Equal(t, 0, finalized)

	after := ed.GetArrayRaw(skfs.SID("a"))
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].Digest(), after[i].Digest())
	}
	assert.Equal(t, []skfs.BaseName{skfs.SID("a"), skfs.SID("b")}, ed.Keys())
}

func TestGCFinalizesUnreachableExternalPointers(t *testing.T) {
	c := New()
	ed, err := c.MkEagerDir(skfs.DirName("/in"))
	require.NoError(t, err)

	var freed []int64
	ed.WriteArray(c, skfs.SID("k"), []skfs.File{
		skfs.ExternalPointer{Value: 42, Finalize: func(v int64) { freed = append(freed, v) }},
	})
	require.Equal(t, 1, c.ExternalPointerCount())

	// Overwriting k with a value that does not reference the pointer
	// makes it unreachable from every live directory.
	ed.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.String("replaced")})

	finalized, err := c.GC()
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, []int64{42}, freed)
	assert.Equal(t, 0, c.ExternalPointerCount())

	// A second GC pass must not finalize it again.
	finalized, err = c.GC()
	require.NoError(t, err)
	assert.Equal(t, 0, finalized)
	assert.Equal(t, []int64{42}, freed)
}

func TestGCKeepsEqualFilesInterned(t *testing.T) {
	c := New()
	a, err := c.MkEagerDir(skfs.DirName("/a"))
	require.NoError(t, err)
	b, err := c.MkEagerDir(skfs.DirName("/b"))
	require.NoError(t, err)

	a.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.String("shared")})
	b.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.String("shared")})

	_, err = c.GC()
	require.NoError(t, err)

	va := a.GetArrayRaw(skfs.SID("k"))[0]
	vb := b.GetArrayRaw(skfs.SID("k"))[0]
	assert.Equal(t, va.Digest(), vb.Digest())
}

func TestGCRefreshesResettableReducer(t *testing.T) {
	c := New()
	src, err := c.MkEagerDir(skfs.DirName("/src"))
	require.NoError(t, err)
	out, err := c.MkEagerDir(skfs.DirName("/out"))
	require.NoError(t, err)

	dir.AttachReducer(c, src, out, skfs.SID("sum"), reduce.Sum{})
	src.WriteArray(c, skfs.SID("x"), []skfs.File{skfs.Int(2)})
	src.WriteArray(c, skfs.SID("y"), []skfs.File{skfs.Int(3)})
	require.Equal(t, []skfs.File{skfs.Int(5)}, out.GetArrayRaw(skfs.SID("sum")))

	_, err = c.GC()
	require.NoError(t, err)
	assert.Equal(t, []skfs.File{skfs.Int(5)}, out.GetArrayRaw(skfs.SID("sum")))
}
