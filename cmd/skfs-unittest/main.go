// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command skfs-unittest runs the six named scenarios from the
// engine's testable-properties section as a standalone assertion
// harness. It runs every scenario, then exits 23 -- the skrol CLI
// convention for a failed assertion -- if any of them failed, or 0 if
// all pass.
package main

import (
	"fmt"
	"os"

	"github.com/go-test/deep"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/proto"
	"github.com/skiplabs/skfs/reduce"
)

const (
	exitOK              = 0
	exitAssertionFailed = 23
)

type scenario struct {
	name string
	run  func() error
}

func main() {
	scenarios := []scenario{
		{"counter", scenarioCounter},
		{"stdin chunking", scenarioStdinChunking},
		{"invalidation minimality", scenarioInvalidationMinimality},
		{"lazy memoisation", scenarioLazyMemoisation},
		{"external pointer", scenarioExternalPointer},
		{"deleted dir", scenarioDeletedDir},
	}

	failed := false
	for _, s := range scenarios {
		if err := s.run(); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", s.name, err)
			failed = true
			continue
		}
		fmt.Printf("PASS %s\n", s.name)
	}
	if failed {
		os.Exit(exitAssertionFailed)
	}
	os.Exit(exitOK)
}

func assertEqual(got, want interface{}, what string) error {
	if diff := deep.Equal(got, want); diff != nil {
		return fmt.Errorf("%s: %v", what, diff)
	}
	return nil
}

// scenarioCounter: a single eager input dir with an attached sum
// reducer. Writing x, then y, then removing x must yield sums [2],
// [5], [3] at each settle point.
func scenarioCounter() error {
	c := ctx.New()
	in, _ := c.MkEagerDir("/in")
	sum, _ := c.MkEagerDir("/sum")
	dir.AttachReducer(c, in, sum, skfs.IID(0), reduce.Sum{})

	in.WriteArray(c, skfs.SID("x"), []skfs.File{skfs.Int(1)})

	in.WriteArray(c, skfs.SID("x"), []skfs.File{skfs.Int(2)})
	if err := assertEqual(sum.GetArrayRaw(skfs.IID(0)), []skfs.File{skfs.Int(2)}, "sum after writing x=2"); err != nil {
		return err
	}

	in.WriteArray(c, skfs.SID("y"), []skfs.File{skfs.Int(3)})
	if err := assertEqual(sum.GetArrayRaw(skfs.IID(0)), []skfs.File{skfs.Int(5)}, "sum after writing y=3"); err != nil {
		return err
	}

	in.Remove(c, skfs.SID("x"))
	return assertEqual(sum.GetArrayRaw(skfs.IID(0)), []skfs.File{skfs.Int(3)}, "sum after removing x")
}

// scenarioStdinChunking: "k\t\"v1\"\nk\t\"v2\"\n" must parse to
// {k -> [v1, v2]} regardless of where the stream is split.
func scenarioStdinChunking() error {
	const stream = "k\t\"v1\"\nk\t\"v2\"\n\t\"\"\n"
	want := map[string][]skfs.File{"k": {skfs.String("v1"), skfs.String("v2")}}

	for split := 0; split <= len(stream); split++ {
		c := ctx.New()
		d, _ := c.MkEagerDir("/stdin")
		a := proto.NewApplier()
		a.Feed(c, d, []byte(stream[:split]))
		a.Feed(c, d, []byte(stream[split:]))
		a.Flush(c, d)
		got := map[string][]skfs.File{}
		for _, k := range d.Keys() {
			got[k.String()] = d.GetArrayRaw(k)
		}
		if err := assertEqual(got, want, fmt.Sprintf("split at byte %d", split)); err != nil {
			return err
		}
	}
	return nil
}

// scenarioInvalidationMinimality: two keys a, b feed a derived dir via
// a per-key mapper. Writing a must recompute only a's derived entry.
func scenarioInvalidationMinimality() error {
	c := ctx.New()
	src, _ := c.MkEagerDir("/src")
	derived, _ := c.MkEagerDir("/derived")
	runs := map[skfs.BaseName]int{}

	src.WriteArray(c, skfs.SID("a"), []skfs.File{skfs.Int(1)})
	src.WriteArray(c, skfs.SID("b"), []skfs.File{skfs.Int(2)})

	c.AttachMapper(src, derived, func(eng dir.Engine, source, out *dir.EagerDir, key skfs.BaseName) {
		runs[key]++
		out.WriteArray(eng, key, source.GetArray(eng, key))
	})
	if runs[skfs.SID("a")] != 1 || runs[skfs.SID("b")] != 1 {
		return fmt.Errorf("expected one initial recompute per key, got a=%d b=%d", runs[skfs.SID("a")], runs[skfs.SID("b")])
	}
	bBefore := derived.GetArrayRaw(skfs.SID("b"))

	src.WriteArray(c, skfs.SID("a"), []skfs.File{skfs.Int(10)})
	if err := c.Update(); err != nil {
		return err
	}
	if runs[skfs.SID("a")] != 2 {
		return fmt.Errorf("expected exactly one recompute of a, ran %d times", runs[skfs.SID("a")])
	}
	if runs[skfs.SID("b")] != 1 {
		return fmt.Errorf("b was recomputed, ran %d times", runs[skfs.SID("b")])
	}
	return assertEqual(derived.GetArrayRaw(skfs.SID("b")), bBefore, "b's derived entry should be unchanged")
}

// scenarioLazyMemoisation: a lazy dir computing fib(n) recursively
// must take O(n) distinct computes to force fib(20), and O(1)
// (zero additional computes) to re-force it with no intervening write.
func scenarioLazyMemoisation() error {
	c := ctx.New()
	computes := 0
	var fib *dir.LazyDir
	fib, _ = c.MkLazyDir("/fib", func(eng dir.Engine, self *dir.LazyDir, key skfs.BaseName) []skfs.File {
		computes++
		n := key.Int()
		if n < 2 {
			return []skfs.File{skfs.Int(n)}
		}
		a := self.GetArray(eng, skfs.IID(n-1))
		b := self.GetArray(eng, skfs.IID(n-2))
		var av, bv int64
		if len(a) == 1 {
			av = int64(a[0].(skfs.Int))
		}
		if len(b) == 1 {
			bv = int64(b[0].(skfs.Int))
		}
		return []skfs.File{skfs.Int(av + bv)}
	})

	got := fib.GetArray(c, skfs.IID(20))
	if len(got) != 1 || got[0].(skfs.Int) != 6765 {
		return fmt.Errorf("fib(20) = %v, want [6765]", got)
	}
	if computes != 21 {
		return fmt.Errorf("fib(20) took %d computes, want 21 (one per distinct n)", computes)
	}

	before := computes
	got2 := fib.GetArray(c, skfs.IID(20))
	if computes != before {
		return fmt.Errorf("re-forcing fib(20) re-ran %d computes, want 0", computes-before)
	}
	return assertEqual(got2, got, "re-forced fib(20) should equal the memoized value")
}

// scenarioExternalPointer: an ExternalPointer replaced across a GC
// cycle must have its Finalize called exactly once.
func scenarioExternalPointer() error {
	c := ctx.New()
	in, _ := c.MkEagerDir("/in")

	finalized := 0
	stale := skfs.ExternalPointer{Value: 42, Finalize: func(int64) { finalized++ }}
	in.WriteArray(c, skfs.SID("handle"), []skfs.File{stale})

	fresh := skfs.ExternalPointer{Value: 43, Finalize: func(int64) { finalized++ }}
	in.WriteArray(c, skfs.SID("handle"), []skfs.File{fresh})

	if _, err := c.GC(); err != nil {
		return err
	}
	if finalized != 1 {
		return fmt.Errorf("finalized %d times, want exactly 1", finalized)
	}
	return nil
}

// scenarioDeletedDir: after remove of a source entry, reads of the
// derived dir's corresponding key return empty and nothing panics.
func scenarioDeletedDir() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()

	c := ctx.New()
	src, _ := c.MkEagerDir("/src")
	derived, _ := c.MkEagerDir("/derived")
	src.WriteArray(c, skfs.SID("k"), []skfs.File{skfs.Int(1)})
	c.AttachMapper(src, derived, func(eng dir.Engine, source, out *dir.EagerDir, key skfs.BaseName) {
		out.WriteArray(eng, key, source.GetArray(eng, key))
	})

	src.Remove(c, skfs.SID("k"))
	if err := c.Update(); err != nil {
		return err
	}
	if got := derived.GetArrayRaw(skfs.SID("k")); len(got) != 0 {
		return fmt.Errorf("expected empty read after remove, got %v", got)
	}
	return nil
}
