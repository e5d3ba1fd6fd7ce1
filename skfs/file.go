// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package skfs

import (
	"crypto"
	_ "crypto/sha256" // register crypto.SHA256
	"hash"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/writehash"
)

// digestAlgo is the hash function used to compute File digests for
// interning (skfs/internal/hash).
const digestAlgo = crypto.SHA256

// hasher returns a fresh hash.Hash to feed through writehash's
// type-tagged encoders before folding the result into a digest.Digest.
func hasher() hash.Hash { return digestAlgo.New() }

// File is an opaque, immutable value held in a directory entry. File
// values are deeply immutable: any "update" must produce a new File
// rather than mutate one in place.
//
// Implementations must make Digest() a pure function of their
// logical content, since the engine's interning table (see
// skfs/internal/hash) relies on structural equality coinciding with
// digest equality.
type File interface {
	// Digest returns the canonical structural hash of this value.
	Digest() digest.Digest
}

// Blob is the simplest File: an opaque byte string. skfs/persist uses
// it to encode File variants it has no dedicated tag for, and decodes
// such records back as Blob.
type Blob []byte

// Digest implements File.
func (b Blob) Digest() digest.Digest {
	h := hasher()
	writehash.String(h, "blob")
	_, _ = h.Write(b)
	return digest.New(digestAlgo, h.Sum(nil))
}

// String is a File wrapping a Go string, used by the SID-keyed parts
// of the stdin write protocol and the skiplang evaluator's string
// type.
type String string

// Digest implements File.
func (s String) Digest() digest.Digest {
	h := hasher()
	writehash.String(h, "string")
	writehash.String(h, string(s))
	return digest.New(digestAlgo, h.Sum(nil))
}

// Int is a File wrapping an int64, used by the skiplang evaluator's
// integer type and by reducer aggregates (skfs/reduce).
type Int int64

// Digest implements File.
func (n Int) Digest() digest.Digest {
	h := hasher()
	writehash.String(h, "int")
	writehash.Int64(h, int64(n))
	return digest.New(digestAlgo, h.Sum(nil))
}

// ExternalPointer is an opaque handle to a resource the engine does
// not manage (an open file descriptor, a native buffer, ...). Value
// is the handle passed to Finalize; Finalize must be idempotent,
// because copying GC may drop an ExternalPointer without invoking it
// when an equal pointer already survived the copy.
type ExternalPointer struct {
	Value    int64
	Finalize func(int64)
}

// Digest implements File. Two ExternalPointers with the same Value
// are, for interning purposes, the same value; Finalize is not part
// of their identity.
func (e ExternalPointer) Digest() digest.Digest {
	h := hasher()
	writehash.String(h, "externalptr")
	writehash.Int64(h, e.Value)
	return digest.New(digestAlgo, h.Sum(nil))
}
