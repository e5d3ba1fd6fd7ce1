// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command skfs-qcheck property-tests three of the engine's quantified
// invariants by generating random inputs and comparing an incremental
// run against an independent reference computation, reporting any
// mismatch with github.com/go-test/deep.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/go-test/deep"
	"github.com/grailbio/base/log"

	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/proto"
	"github.com/skiplabs/skfs/reduce"
)

var (
	trials = flag.Int("trials", 200, "number of random trials to run per property")
	seed   = flag.Int64("seed", 1, "PRNG seed, for reproducing a failing run")
)

// Exit codes, per the skrol CLI convention: 0 on success, 1 on a
// confirmed property violation.
const (
	exitOK   = 0
	exitFail = 1
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	failures := 0
	failures += runProperty("confluence (invariant 2)", *trials, rng, checkConfluence)
	failures += runProperty("write/remove/write idempotence (invariant 3)", *trials, rng, checkRemoveIdempotence)
	failures += runProperty("stdin chunking idempotence (invariant 4)", *trials, rng, checkChunking)

	if failures > 0 {
		log.Fatalf("skfs-qcheck: %d propert(y/ies) failed", failures)
	}
	fmt.Printf("skfs-qcheck: all properties held over %d trials each\n", *trials)
	os.Exit(exitOK)
}

func runProperty(name string, n int, rng *rand.Rand, check func(*rand.Rand) []string) int {
	for i := 0; i < n; i++ {
		if diff := check(rng); diff != nil {
			log.Printf("skfs-qcheck: %s: trial %d FAILED:\n%s", name, i, fmt.Sprintf("%v", diff))
			return 1
		}
	}
	log.Printf("skfs-qcheck: %s: OK (%d trials)", name, n)
	return 0
}

// checkConfluence tests invariant 2: a full rebuild from scratch and
// the incremental result after applying the same writes must produce
// byte-identical aggregate contents.
func checkConfluence(rng *rand.Rand) []string {
	writes := randomWrites(rng, 1+rng.Intn(50))

	incremental := ctx.New()
	in, _ := incremental.MkEagerDir("/in")
	sum, _ := incremental.MkEagerDir("/sum")
	dir.AttachReducer(incremental, in, sum, skfs.SID("total"), reduce.Sum{})
	for _, w := range writes {
		in.WriteArray(incremental, w.key, w.values)
	}

	final := make(map[skfs.BaseName][]skfs.File)
	for _, w := range writes {
		final[w.key] = w.values
	}
	batch := ctx.New()
	batchIn, _ := batch.MkEagerDir("/in")
	batchSum, _ := batch.MkEagerDir("/sum")
	for k, vs := range final {
		batchIn.WriteArray(batch, k, vs)
	}
	dir.AttachReducer(batch, batchIn, batchSum, skfs.SID("total"), reduce.Sum{})

	return deep.Equal(sum.GetArrayRaw(skfs.SID("total")), batchSum.GetArrayRaw(skfs.SID("total")))
}

// checkRemoveIdempotence tests invariant 3: writeArray, remove,
// writeArray with the same inputs must leave state bit-identical to
// just the first write.
func checkRemoveIdempotence(rng *rand.Rand) []string {
	key := skfs.SID(randomString(rng, 1+rng.Intn(8)))
	values := randomFiles(rng, 1+rng.Intn(5))

	c := ctx.New()
	in, _ := c.MkEagerDir("/in")
	sum, _ := c.MkEagerDir("/sum")
	dir.AttachReducer(c, in, sum, skfs.SID("total"), reduce.Sum{})

	in.WriteArray(c, key, values)
	want := append([]skfs.File(nil), sum.GetArrayRaw(skfs.SID("total"))...)

	in.Remove(c, key)
	in.WriteArray(c, key, values)
	got := sum.GetArrayRaw(skfs.SID("total"))

	return deep.Equal(want, got)
}

// checkChunking tests invariant 4: splitting a stdin write-protocol
// stream at arbitrary byte boundaries and feeding the pieces in
// sequence must parse to the same key/value map as feeding the whole
// stream at once.
func checkChunking(rng *rand.Rand) []string {
	stream := randomStream(rng, 1+rng.Intn(20))

	whole := ctx.New()
	wholeDir, _ := whole.MkEagerDir("/stdin")
	wholeApplier := proto.NewApplier()
	wholeApplier.Feed(whole, wholeDir, []byte(stream))
	wholeApplier.Flush(whole, wholeDir)

	chunked := ctx.New()
	chunkedDir, _ := chunked.MkEagerDir("/stdin")
	chunkedApplier := proto.NewApplier()
	b := []byte(stream)
	for len(b) > 0 {
		n := 1 + rng.Intn(len(b))
		chunkedApplier.Feed(chunked, chunkedDir, b[:n])
		b = b[n:]
	}
	chunkedApplier.Flush(chunked, chunkedDir)

	return deep.Equal(snapshotDir(wholeDir), snapshotDir(chunkedDir))
}

func snapshotDir(d *dir.EagerDir) map[string][]skfs.File {
	out := make(map[string][]skfs.File)
	for _, k := range d.Keys() {
		out[k.String()] = d.GetArrayRaw(k)
	}
	return out
}

type write struct {
	key    skfs.BaseName
	values []skfs.File
}

func randomWrites(rng *rand.Rand, n int) []write {
	out := make([]write, n)
	for i := range out {
		out[i] = write{
			key:    skfs.SID(randomString(rng, 1+rng.Intn(4))),
			values: randomFiles(rng, 1+rng.Intn(3)),
		}
	}
	return out
}

func randomFiles(rng *rand.Rand, n int) []skfs.File {
	out := make([]skfs.File, n)
	for i := range out {
		out[i] = skfs.Int(rng.Intn(100))
	}
	return out
}

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func randomString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

// randomStream builds a well-formed write-protocol stream of n
// records followed by a batch-separator line.
func randomStream(rng *rand.Rand, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		key := randomString(rng, 1+rng.Intn(4))
		val := randomString(rng, rng.Intn(8))
		s += key + "\t\"" + val + "\"\n"
	}
	s += "\t\"\"\n"
	return s
}
