// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/skiplabs/skfs"
	"github.com/stretchr/testify/assert"
)

func TestHistoryLiveRanges(t *testing.T) {
	h := NewHistory()
	h.DirCreated(skfs.DirName("/a"))
	h.Tick() // gen 1
	h.DirCreated(skfs.DirName("/b"))
	h.Tick() // gen 2
	h.DirRemoved(skfs.DirName("/a"))
	h.Tick() // gen 3
	h.DirCreated(skfs.DirName("/c"))

	assert.Equal(t, []skfs.DirName{skfs.DirName("/a")}, h.LiveAt(0))
	assert.Equal(t, []skfs.DirName{skfs.DirName("/a"), skfs.DirName("/b")}, h.LiveAt(1))
	assert.Equal(t, []skfs.DirName{skfs.DirName("/b")}, h.LiveAt(2))
	assert.Equal(t, []skfs.DirName{skfs.DirName("/b"), skfs.DirName("/c")}, h.LiveAt(3))
}

func TestHistoryDoubleCreateAndRemoveAreNoops(t *testing.T) {
	h := NewHistory()
	h.DirCreated(skfs.DirName("/a"))
	h.DirCreated(skfs.DirName("/a"))
	h.Tick()
	h.DirRemoved(skfs.DirName("/a"))
	h.DirRemoved(skfs.DirName("/a"))
	assert.Empty(t, h.LiveAt(1))
	assert.Equal(t, []skfs.DirName{skfs.DirName("/a")}, h.LiveAt(0))
}
