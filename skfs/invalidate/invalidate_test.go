// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package invalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs"
)

func TestDirtySetPopReturnsSmallestFirst(t *testing.T) {
	s := NewDirtySet()
	pc := skfs.NewPath(skfs.DirName("/c"), skfs.SID("x"))
	pa := skfs.NewPath(skfs.DirName("/a"), skfs.SID("x"))
	pb := skfs.NewPath(skfs.DirName("/b"), skfs.SID("x"))
	s.Mark(pc)
	s.Mark(pa)
	s.Mark(pb)

	require.Equal(t, 3, s.Len())

	p1, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, pa, p1)

	p2, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, pb, p2)

	p3, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, pc, p3)

	_, ok = s.Pop()
	assert.False(t, ok, "popping an empty set must report false")
}

func TestDirtySetMarkIsIdempotent(t *testing.T) {
	s := NewDirtySet()
	p := skfs.NewPath(skfs.DirName("/a"), skfs.SID("x"))
	s.Mark(p)
	s.Mark(p)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(p))
}

func TestDirtySetContainsAfterPop(t *testing.T) {
	s := NewDirtySet()
	p := skfs.NewPath(skfs.DirName("/a"), skfs.SID("x"))
	s.Mark(p)
	_, _ = s.Pop()
	assert.False(t, s.Contains(p))
}

func TestFrameRecordCoalescesDuplicatesToLatestWriteTime(t *testing.T) {
	f := NewFrame(skfs.NewPath(skfs.DirName("/out"), skfs.SID("k")))
	p := skfs.NewPath(skfs.DirName("/src"), skfs.SID("a"))

	f.Record(Dep{Path: p, WriteTime: 1})
	f.Record(Dep{Path: p, WriteTime: 5})
	f.Record(Dep{Path: p, WriteTime: 2})

	deps := f.Deps()
	require.Len(t, deps, 1)
	assert.Equal(t, skfs.Time(5), deps[0].WriteTime)
}

func TestFrameRecordPreservesOrderAcrossDistinctPaths(t *testing.T) {
	f := NewFrame(skfs.NewPath(skfs.DirName("/out"), skfs.SID("k")))
	pa := skfs.NewPath(skfs.DirName("/src"), skfs.SID("a"))
	pb := skfs.NewPath(skfs.DirName("/src"), skfs.SID("b"))

	f.Record(Dep{Path: pa, WriteTime: 1})
	f.Record(Dep{Path: pb, WriteTime: 1})

	deps := f.Deps()
	require.Len(t, deps, 2)
	assert.Equal(t, pa, deps[0].Path)
	assert.Equal(t, pb, deps[1].Path)
}

func TestDenseIndexTestAndSet(t *testing.T) {
	x := NewDenseIndex(8)
	assert.False(t, x.TestAndSet(3))
	assert.True(t, x.TestAndSet(3))
	assert.False(t, x.TestAndSet(4))
}
