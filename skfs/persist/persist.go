// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package persist implements SKFS's on-disk arena: a small magic/
// version preamble followed by a github.com/grailbio/base/stateio log
// whose most recent snapshot entry holds a gob-encoded dump of every
// EagerDir's current contents.
//
// Only EagerDir data is persisted. LazyDir entries are memoized
// values derived from that data plus a compute function the process
// doesn't have a portable way to serialize, so they are simply
// recomputed on first read after a restart -- which is exactly what
// an empty memoization cache already does. Likewise, mapper and
// reducer bindings are Go closures and are not serialized; the
// client's setup function is expected to be idempotent and re-attach
// them to the restored EagerDirs by name, the same way it attaches
// them on a fresh --init. An ExternalPointer's Finalize callback is
// process-scoped the same way a file descriptor is: it is never
// persisted, only the Value handle is, matching the fact that such a
// resource would not actually survive a process restart anyway.
package persist

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"

	"github.com/grailbio/base/stateio"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/ctx"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/internal/errs"
)

// magic identifies an SKFS arena file; version lets a future format
// change refuse to load an incompatible file rather than silently
// misinterpreting it.
var magic = [4]byte{'S', 'K', 'F', 'S'}

const version = 1

type wireFile struct {
	Kind  byte
	Bytes []byte
	Str   string
	Int   int64
}

const (
	kindBlob byte = iota
	kindString
	kindInt
	kindExternalPointer
)

func encodeFile(f skfs.File) wireFile {
	switch v := f.(type) {
	case skfs.Blob:
		return wireFile{Kind: kindBlob, Bytes: []byte(v)}
	case skfs.String:
		return wireFile{Kind: kindString, Str: string(v)}
	case skfs.Int:
		return wireFile{Kind: kindInt, Int: int64(v)}
	case skfs.ExternalPointer:
		return wireFile{Kind: kindExternalPointer, Int: v.Value}
	default:
		// A client-registered File variant with no wire codec of its
		// own degrades to an opaque blob of its digest, so the slot at
		// least round-trips as present.
		return wireFile{Kind: kindBlob, Bytes: []byte(v.Digest().String())}
	}
}

func decodeFile(w wireFile) skfs.File {
	switch w.Kind {
	case kindString:
		return skfs.String(w.Str)
	case kindInt:
		return skfs.Int(w.Int)
	case kindExternalPointer:
		return skfs.ExternalPointer{Value: w.Int}
	default:
		return skfs.Blob(w.Bytes)
	}
}

type wireDir struct {
	Deleted bool
	At      int64 // valid if Deleted
	Entries map[string][]wireFile
}

type wireSnapshot struct {
	Dirs map[string]wireDir
}

// Save writes c's EagerDir contents to path as a new arena snapshot,
// atomically: it is built in a temporary file and renamed into place,
// so a crash mid-write never leaves a half-written arena at path.
func Save(path string, c *ctx.Context) error {
	snap := wireSnapshot{Dirs: make(map[string]wireDir)}
	for _, name := range c.DirNames() {
		d, err := c.UnsafeGetDir(name)
		if err != nil {
			continue
		}
		switch v := d.(type) {
		case *dir.EagerDir:
			entries := make(map[string][]wireFile)
			for _, k := range v.Keys() {
				values := v.GetArrayRaw(k)
				wfs := make([]wireFile, len(values))
				for i, f := range values {
					wfs[i] = encodeFile(f)
				}
				entries[wireKey(k)] = wfs
			}
			snap.Dirs[string(name)] = wireDir{Entries: entries}
		case *dir.Deleted:
			snap.Dirs[string(name)] = wireDir{Deleted: true, At: int64(v.DeletedAt())}
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return errs.E(errs.Other, "encoding snapshot", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.E(errs.Other, "creating arena", err)
	}
	defer f.Close()

	var hdr [8]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:], version)
	if _, err := f.Write(hdr[:]); err != nil {
		return errs.E(errs.Other, "writing arena header", err)
	}
	w, err := stateio.NewFileWriter(f)
	if err != nil {
		return errs.E(errs.Other, "opening state log", err)
	}
	if err := w.Snapshot(buf.Bytes()); err != nil {
		return errs.E(errs.Other, "writing snapshot", err)
	}
	if err := f.Close(); err != nil {
		return errs.E(errs.Other, "closing arena", err)
	}
	return os.Rename(tmp, path)
}

// Snapshot is a decoded arena: every EagerDir's key/value contents and
// every tombstoned directory's deletion time, keyed by directory
// name. It carries no mapper, reducer, or lazy-compute wiring -- the
// caller's setup function re-establishes that against directories it
// creates, then applies this snapshot's entries on top via WriteArray.
type Snapshot struct {
	Eager   map[skfs.DirName]map[skfs.BaseName][]skfs.File
	Deleted map[skfs.DirName]skfs.Time
}

// Load reads and validates the arena at path, returning its decoded
// contents. It returns a *errs.Error of Kind PersistenceMagicMismatch
// if the file's header does not identify it as an SKFS arena of a
// known version.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.E(errs.Other, "opening arena", err)
	}
	defer f.Close()

	var hdr [8]byte
	if _, err := f.Read(hdr[:]); err != nil {
		return nil, errs.E(errs.PersistenceMagicMismatch, "reading arena header", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) || binary.LittleEndian.Uint32(hdr[4:]) != version {
		return nil, errs.E(errs.PersistenceMagicMismatch, "not an SKFS arena, or unsupported version")
	}

	state, _, _, err := stateio.RestoreFile(f)
	if err != nil {
		return nil, errs.E(errs.Other, "restoring state log", err)
	}
	var snap wireSnapshot
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&snap); err != nil {
		return nil, errs.E(errs.Other, "decoding snapshot", err)
	}

	out := &Snapshot{
		Eager:   make(map[skfs.DirName]map[skfs.BaseName][]skfs.File),
		Deleted: make(map[skfs.DirName]skfs.Time),
	}
	for name, wd := range snap.Dirs {
		dn := skfs.DirName(name)
		if wd.Deleted {
			out.Deleted[dn] = skfs.Time(wd.At)
			continue
		}
		entries := make(map[skfs.BaseName][]skfs.File, len(wd.Entries))
		for k, wfs := range wd.Entries {
			values := make([]skfs.File, len(wfs))
			for i, wf := range wfs {
				values[i] = decodeFile(wf)
			}
			entries[baseNameFromWire(k)] = values
		}
		out.Eager[dn] = entries
	}
	return out, nil
}

// Apply writes every entry in s into the matching (already-created)
// EagerDirs of c, via an ordinary WriteArray -- so a reload looks,
// from the engine's point of view, exactly like a client replaying
// its last known writes.
func (s *Snapshot) Apply(c *ctx.Context) {
	for name, entries := range s.Eager {
		ed, ok := c.MaybeGetEagerDir(name)
		if !ok {
			continue
		}
		for k, values := range entries {
			ed.WriteArray(c, k, values)
		}
	}
}

// wireKey and baseNameFromWire round-trip a BaseName through a gob
// map key, which must be a comparable, exported-field-free scalar:
// "s:"-prefixed for SID, "i:"-prefixed for IID.
func wireKey(b skfs.BaseName) string {
	if b.IsIID() {
		return "i:" + itoa(b.Int())
	}
	return "s:" + b.String()
}

func baseNameFromWire(s string) skfs.BaseName {
	if len(s) >= 2 && s[:2] == "i:" {
		return skfs.IID(atoi(s[2:]))
	}
	if len(s) >= 2 && s[:2] == "s:" {
		return skfs.SID(s[2:])
	}
	return skfs.SID(s)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func atoi(s string) int64 {
	var neg bool
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
