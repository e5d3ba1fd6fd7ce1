// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package proto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/proto"
)

func TestScannerParsesBasicRecord(t *testing.T) {
	s := proto.NewScanner()
	s.Feed([]byte("k\t\"v\"\n"))
	recs := s.Drain()
	require.Len(t, recs, 1)
	assert.Equal(t, skfs.SID("k"), recs[0].Key)
	assert.Equal(t, "v", recs[0].Value)
	assert.False(t, recs[0].Separator)
}

func TestScannerParsesSeparator(t *testing.T) {
	s := proto.NewScanner()
	s.Feed([]byte("\t\"\"\n"))
	recs := s.Drain()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Separator)
}

func TestScannerResolvesEscapes(t *testing.T) {
	s := proto.NewScanner()
	s.Feed([]byte("a\\tb\t\"line1\\nline2 \\\"quoted\\\" \\\\done\"\n"))
	recs := s.Drain()
	require.Len(t, recs, 1)
	assert.Equal(t, skfs.SID("a\tb"), recs[0].Key)
	assert.Equal(t, "line1\nline2 \"quoted\" \\done", recs[0].Value)
}

func TestScannerToleratesByteAtATimeFeed(t *testing.T) {
	const stream = "k\t\"v1\"\nk\t\"v2\"\n\t\"\"\n"
	s := proto.NewScanner()
	for i := 0; i < len(stream); i++ {
		s.Feed([]byte{stream[i]})
	}
	recs := s.Drain()
	require.Len(t, recs, 3)
	assert.Equal(t, "v1", recs[0].Value)
	assert.Equal(t, "v2", recs[1].Value)
	assert.True(t, recs[2].Separator)
}

func TestApplierAccumulatesRepeatedKeysWithinBatch(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	a := proto.NewApplier()
	a.Feed(c, d, []byte("k\t\"v1\"\nk\t\"v2\"\n\t\"\"\n"))

	assert.Equal(t, []skfs.File{skfs.String("v1"), skfs.String("v2")}, d.GetArrayRaw(skfs.SID("k")))
}

func TestApplierFlushAppliesPartialBatch(t *testing.T) {
	c := ctx.New()
	d, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	a := proto.NewApplier()
	a.Feed(c, d, []byte("k\t\"v\"\n"))
	assert.Empty(t, d.GetArrayRaw(skfs.SID("k")), "a batch with no trailing separator must not be applied until Flush")

	a.Flush(c, d)
	assert.Equal(t, []skfs.File{skfs.String("v")}, d.GetArrayRaw(skfs.SID("k")))
}

func TestApplierToleratesArbitrarySplitPoints(t *testing.T) {
	const stream = "a\t\"1\"\nb\t\"2\"\na\t\"3\"\n\t\"\"\n"
	want := map[string][]skfs.File{
		"a": {skfs.String("1"), skfs.String("3")},
		"b": {skfs.String("2")},
	}

	for split := 0; split <= len(stream); split++ {
		c := ctx.New()
		d, err := c.MkEagerDir("/stdin")
		require.NoError(t, err)
		a := proto.NewApplier()
		a.Feed(c, d, []byte(stream[:split]))
		a.Feed(c, d, []byte(stream[split:]))
		a.Flush(c, d)

		got := map[string][]skfs.File{}
		for _, k := range d.Keys() {
			got[k.String()] = d.GetArrayRaw(k)
		}
		assert.Equal(t, want, got, "split at byte %d", split)
	}
}
