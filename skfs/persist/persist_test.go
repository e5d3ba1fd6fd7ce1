// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package persist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/internal/errs"
	"github.com/skiplabs/skfs/persist"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena")

	c := ctx.New()
	d, err := c.MkEagerDir("/d")
	require.NoError(t, err)
	d.WriteArray(c, skfs.SID("str"), []skfs.File{skfs.String("hello")})
	d.WriteArray(c, skfs.IID(7), []skfs.File{skfs.Int(42)})

	require.NoError(t, persist.Save(path, c))

	snap, err := persist.Load(path)
	require.NoError(t, err)
	require.Contains(t, snap.Eager, skfs.DirName("/d"))

	entries := snap.Eager[skfs.DirName("/d")]
	assert.Equal(t, []skfs.File{skfs.String("hello")}, entries[skfs.SID("str")])
	assert.Equal(t, []skfs.File{skfs.Int(42)}, entries[skfs.IID(7)])
}

func TestApplyReplaysOntoMatchingEagerDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena")

	src := ctx.New()
	sd, err := src.MkEagerDir("/d")
	require.NoError(t, err)
	sd.WriteArray(src, skfs.SID("k"), []skfs.File{skfs.Int(1)})
	require.NoError(t, persist.Save(path, src))

	snap, err := persist.Load(path)
	require.NoError(t, err)

	dst := ctx.New()
	dd, err := dst.MkEagerDir("/d")
	require.NoError(t, err)
	snap.Apply(dst)

	assert.Equal(t, []skfs.File{skfs.Int(1)}, dd.GetArrayRaw(skfs.SID("k")))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notanarena")
	require.NoError(t, os.WriteFile(path, []byte("not an skfs arena at all"), 0o644))

	_, err := persist.Load(path)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.PersistenceMagicMismatch, e.Kind)
}
