// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package driver implements the SKFS process entry point: CLI flag
// handling, the --init/--data dispatch, and the runWithGc loop that
// applies pending stdin updates, ticks the clock, drains invalidation,
// and invokes the client body once per batch.
package driver

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/persist"
	"github.com/skiplabs/skfs/proto"
	"github.com/skiplabs/skfs/skiplang/eval"
	"github.com/skiplabs/skfs/skiplang/parser"
)

// Cont is a client body's instruction to the driver loop: keep
// draining stdin and re-invoking the body, or commit and stop.
type Cont int

const (
	// CContinue instructs the driver to apply the next batch of pending
	// stdin updates and invoke the body again.
	CContinue Cont = iota
	// CStop instructs the driver to persist state (to the --init or
	// --data path) and exit cleanly.
	CStop
)

// Body is a client's driver loop callback, invoked once per update()
// batch.
type Body func(c *ctx.Context) (Cont, error)

// Exit codes, per the skrol CLI convention.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitUsageErr = 2
)

var (
	initPath   string
	dataPath   string
	scriptPath string
)

// NewCommand constructs the root cmdline.Command for an SKFS-backed
// binary. setup wires the initial directories (including an EagerDir
// named stdinDir, which receives every stdin write) into a freshly
// constructed Context; body is invoked once per driver batch against
// the live Context.
func NewCommand(name, short string, stdinDir skfs.DirName, setup func(c *ctx.Context), body Body) *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     name,
		Short:    short,
		Long:     short,
		Runner:   cmdutil.RunnerFunc(runner(stdinDir, setup, body)),
		ArgsName: "",
	}
	cmd.Flags.StringVar(&initPath, "init", "", "create a new persisted arena at this path and run")
	cmd.Flags.StringVar(&dataPath, "data", "", "load the persisted arena at this path and run")
	cmd.Flags.StringVar(&scriptPath, "script", "", "run this skiplang source file's init statements against the context after setup")
	return cmd
}

func runner(stdinDir skfs.DirName, setup func(c *ctx.Context), body Body) func(*cmdline.Env, []string) error {
	return func(env *cmdline.Env, args []string) error {
		if len(args) != 0 {
			fmt.Fprintln(env.Stderr, "skfs: unexpected non-option arguments")
			os.Exit(ExitUsageErr)
		}
		if (initPath == "") == (dataPath == "") {
			fmt.Fprintln(env.Stderr, "skfs: exactly one of --init or --data is required")
			os.Exit(ExitUsageErr)
		}
		var (
			c   = ctx.New()
			err error
			out string
		)
		if setup != nil {
			setup(c)
		}
		if initPath != "" {
			out = initPath
			if scriptPath != "" {
				if err := runScript(c, scriptPath); err != nil {
					vlog.Errorf("skfs: script %s: %v", scriptPath, err)
					os.Exit(ExitFatal)
				}
			}
		} else {
			out = dataPath
			snap, loadErr := persist.Load(dataPath)
			if loadErr != nil {
				vlog.Errorf("skfs: load %s: %v", dataPath, loadErr)
				os.Exit(ExitFatal)
			}
			snap.Apply(c)
		}
		err = RunWithGc(c, stdinDir, os.Stdin, body)
		if err == nil {
			err = persist.Save(out, c)
		}
		if err != nil {
			vlog.Errorf("skfs: %v", err)
			os.Exit(ExitFatal)
		}
		return nil
	}
}

// runScript reads, parses, and evaluates a skiplang source file's
// init statements against c, registering whatever directories and
// seed writes it describes. It is only run on --init: a --data load
// already has those directories materialized from the saved snapshot.
func runScript(c *ctx.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.New(string(src)).ParseProgram()
	if err != nil {
		return err
	}
	return eval.Run(c, prog)
}

// RunWithGc repeatedly reads available stdin, applies completed
// batches to the EagerDir named stdinDir, ticks the clock, drains
// invalidation via Context.Update, runs a copying GC pass, and invokes
// body -- looping on CContinue and returning once body answers CStop
// or stdin reaches EOF. A batch with nothing pending still ticks,
// updates and collects, but leaves no directory's observable contents
// changed.
func RunWithGc(c *ctx.Context, stdinDir skfs.DirName, stdin io.Reader, body Body) error {
	target, err := c.UnsafeGetEagerDir(stdinDir)
	if err != nil {
		return err
	}
	r := bufio.NewReaderSize(stdin, 64*1024)
	applier := proto.NewApplier()
	buf := make([]byte, 64*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			applier.Feed(c, target, buf[:n])
		}
		eof := readErr == io.EOF
		if eof {
			applier.Flush(c, target)
		}
		if readErr != nil && !eof {
			return readErr
		}
		if err := c.Update(); err != nil {
			return err
		}
		if _, err := c.GC(); err != nil {
			return err
		}
		cont, err := body(c)
		if err != nil {
			return err
		}
		if cont == CStop || eof {
			return nil
		}
	}
}
