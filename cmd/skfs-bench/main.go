// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command skfs-bench measures how long a batch of writes takes to
// settle (apply, invalidate, and collect) by running many independent
// trials concurrently, each against its own Context.Mclone of a
// shared baseline. Concurrency across trials is safe because each
// clone is its own single-writer instance; concurrency within a trial
// never happens, since that would violate the engine's single-writer
// invariant.
package main

import (
	"context"
	"time"

	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/traverse"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/driver"
	"github.com/skiplabs/skfs/reduce"
)

const (
	inDirName    = skfs.DirName("/bench/in")
	countDirName = skfs.DirName("/bench/count")
)

var (
	trials        int
	keysPerTrial  int
	concurrency   int
	trialDeadline time.Duration
)

func setup(c *ctx.Context) {
	in, err := c.MkEagerDir(inDirName)
	if err != nil {
		vlog.Fatalf("skfs-bench: setup: %v", err)
	}
	out, err := c.MkEagerDir(countDirName)
	if err != nil {
		vlog.Fatalf("skfs-bench: setup: %v", err)
	}
	dir.AttachReducer(c, in, out, skfs.SID("n"), reduce.Count{})
}

// body runs once: it forks `trials` clones of the already-populated
// baseline Context, each takes keysPerTrial sequential writes through
// its own copy (single-writer per clone), then ticks, updates and
// collects it, and reports the mean trial latency.
func body(c *ctx.Context) (driver.Cont, error) {
	lim := limiter.New()
	lim.Release(concurrency)

	latencies := make([]time.Duration, trials)
	if err := traverse.Parallel(trials).Do(func(i int) error {
		bgctx := context.Background()
		if err := lim.Acquire(bgctx, 1); err != nil {
			return err
		}
		defer lim.Release(1)

		trial := c.Mclone()
		in, err := trial.UnsafeGetEagerDir(inDirName)
		if err != nil {
			return err
		}
		start := time.Now()
		for k := 0; k < keysPerTrial; k++ {
			in.WriteArray(trial, skfs.IID(int64(k)), []skfs.File{skfs.Int(k)})
		}
		if err := trial.Update(); err != nil {
			return err
		}
		if _, err := trial.GC(); err != nil {
			return err
		}
		latencies[i] = time.Since(start)
		return nil
	}); err != nil {
		return driver.CStop, err
	}

	var total time.Duration
	worst := time.Duration(0)
	for _, d := range latencies {
		total += d
		if d > worst {
			worst = d
		}
	}
	mean := total / time.Duration(len(latencies))
	vlog.Infof("skfs-bench: %d trials x %d keys: mean=%s worst=%s", trials, keysPerTrial, mean, worst)
	if worst > trialDeadline {
		vlog.Infof("skfs-bench: worst trial exceeded deadline %s", trialDeadline)
	}
	return driver.CStop, nil
}

func main() {
	cmd := driver.NewCommand("skfs-bench", "replays a synthetic write workload across concurrent context clones and reports latency", inDirName, setup, body)
	cmd.Flags.IntVar(&trials, "trials", 16, "number of independent context clones to replay concurrently")
	cmd.Flags.IntVar(&keysPerTrial, "keys", 1000, "number of sequential keys written per trial")
	cmd.Flags.IntVar(&concurrency, "concurrency", 8, "maximum number of trials running at once")
	cmd.Flags.DurationVar(&trialDeadline, "deadline", time.Second, "log a warning if any trial exceeds this latency")
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(cmd)
}
