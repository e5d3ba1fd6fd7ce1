// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package driver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
)

func TestRunWithGcAppliesStdinAndStopsOnEOF(t *testing.T) {
	c := ctx.New()
	_, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	calls := 0
	err = RunWithGc(c, "/stdin", strings.NewReader("k\t\"v1\"\nk\t\"v2\"\n\t\"\"\n"), func(c *ctx.Context) (Cont, error) {
		calls++
		return CContinue, nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 1)

	d, err := c.UnsafeGetEagerDir("/stdin")
	require.NoError(t, err)
	assert.Equal(t, []skfs.File{skfs.String("v1"), skfs.String("v2")}, d.GetArrayRaw(skfs.SID("k")))
}

func TestRunWithGcFlushesUnterminatedBatchAtEOF(t *testing.T) {
	c := ctx.New()
	_, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	err = RunWithGc(c, "/stdin", strings.NewReader("k\t\"v\"\n"), func(c *ctx.Context) (Cont, error) {
		return CContinue, nil
	})
	require.NoError(t, err)

	d, err := c.UnsafeGetEagerDir("/stdin")
	require.NoError(t, err)
	assert.Equal(t, []skfs.File{skfs.String("v")}, d.GetArrayRaw(skfs.SID("k")), "a batch with no trailing separator must still be applied once EOF is reached")
}

func TestRunWithGcStopsEarlyOnCStop(t *testing.T) {
	c := ctx.New()
	_, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	calls := 0
	err = RunWithGc(c, "/stdin", strings.NewReader("k\t\"v\"\n\t\"\"\n"), func(c *ctx.Context) (Cont, error) {
		calls++
		return CStop, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "CStop on the first invocation must end the loop without a second body call")
}

func TestRunWithGcPropagatesBodyError(t *testing.T) {
	c := ctx.New()
	_, err := c.MkEagerDir("/stdin")
	require.NoError(t, err)

	wantErr := assert.AnError
	err = RunWithGc(c, "/stdin", strings.NewReader(""), func(c *ctx.Context) (Cont, error) {
		return CStop, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestRunWithGcRejectsUnknownStdinDir(t *testing.T) {
	c := ctx.New()
	err := RunWithGc(c, "/missing", strings.NewReader(""), func(c *ctx.Context) (Cont, error) {
		return CStop, nil
	})
	assert.Error(t, err)
}
