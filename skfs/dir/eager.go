// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dir implements the two directory kinds that form skfs's
// dependency DAG: EagerDir, whose entries are written directly by a
// client or a mapper and hold their full write history implicitly via
// a writeTime, and LazyDir, whose entries are computed on demand and
// memoized (see lazy.go).
package dir

import (
	"iter"

	"github.com/grailbio/base/digest"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/internal/ordmap"
	"github.com/skiplabs/skfs/invalidate"
	"github.com/skiplabs/skfs/reduce"
)

// Entry is one key's value in an EagerDir.
//
// A key written once via WriteArray holds its values directly. A key
// fed by more than one producer (distinct upstream (dir, key) pairs
// feeding the same output key through a mapper) instead accumulates
// one contribution per producer path, ordered by producer path so
// that the merged value is deterministic regardless of write order.
type Entry struct {
	key           skfs.BaseName
	writeTime     skfs.Time
	contributions *ordmap.Map[skfs.Path, []skfs.File]
	merged        []skfs.File
	readers       map[skfs.Path]struct{}
	removed       bool
}

// WriteTime reports the time this entry was last changed.
func (e *Entry) WriteTime() skfs.Time { return e.writeTime }

// EagerDir is a directory whose contents are written directly rather
// than computed on read.
type EagerDir struct {
	dirName skfs.DirName
	entries *ordmap.Map[skfs.BaseName, *Entry]

	// mapper and source are set by AttachMapper: when non-nil, this
	// directory's keys are derived from source by re-running mapper on
	// the single key the engine drains from the dirty set, rather than
	// written directly by a client.
	mapper MapperFunc
	source *EagerDir

	// reducerSink is set by AttachReducer: when non-nil, every write to
	// this directory also feeds an incremental aggregate maintained in
	// another EagerDir.
	reducerSink *reducerSink
}

// NewEagerDir constructs an empty, unattached EagerDir named name.
func NewEagerDir(name skfs.DirName) *EagerDir {
	return &EagerDir{dirName: name, entries: ordmap.New[skfs.BaseName, *Entry]()}
}

func (d *EagerDir) Name() skfs.DirName { return d.dirName }
func (*EagerDir) isDir()               {}

// WriteArray replaces key's entire value in one step, as if written by
// a single producer. If the interned new value is identical to the
// interned old one, the entry's writeTime is left unchanged and no
// reader is marked dirty; the engine clock still advances by one tick.
func (d *EagerDir) WriteArray(eng Engine, key skfs.BaseName, values []skfs.File) {
	d.WriteArrayMany(eng, single(key, values))
}

// WriteEntry sets the contribution that producer contributes to key,
// merging it with any other producers' contributions to the same key
// in ascending producer-path order. It is used by mappers that fan in
// more than one source key to a single output key.
func (d *EagerDir) WriteEntry(eng Engine, producer skfs.Path, key skfs.BaseName, values []skfs.File) {
	interned := internAll(eng, values)
	e, exists := d.entries.Get(key)
	if !exists || e.removed {
		readers := map[skfs.Path]struct{}{}
		if exists {
			readers = e.readers
		}
		e = &Entry{key: key, readers: readers, contributions: ordmap.New[skfs.Path, []skfs.File]()}
	}
	old, hadOld := e.contributions.Get(producer)
	if hadOld && sameFiles(old, interned) {
		d.entries.Set(key, e)
		return
	}
	prevMerged := e.merged
	e.contributions.Set(producer, interned)
	e.merged = mergeContributions(e.contributions)
	if sameFiles(prevMerged, e.merged) {
		d.entries.Set(key, e)
		return
	}
	e.writeTime = eng.Tick()
	e.removed = false
	d.entries.Set(key, e)
	toRemove, toAdd := diffValues(prevMerged, e.merged)
	for r := range e.readers {
		eng.MarkDirty(r)
	}
	if d.reducerSink != nil {
		d.reducerSink.applyDelta(eng, toRemove, toAdd)
	}
}

// Remove deletes key. A subsequent GetArray on key observes no values.
// Removing a key that does not exist, or is already removed, is a
// no-op.
func (d *EagerDir) Remove(eng Engine, key skfs.BaseName) {
	e, ok := d.entries.Get(key)
	if !ok || e.removed {
		return
	}
	prevMerged := e.merged
	e.merged = nil
	e.removed = true
	e.writeTime = eng.Tick()
	e.contributions = ordmap.New[skfs.Path, []skfs.File]()
	d.entries.Set(key, e)
	for r := range e.readers {
		eng.MarkDirty(r)
	}
	if d.reducerSink != nil {
		d.reducerSink.applyDelta(eng, prevMerged, nil)
	}
}

// GetArrayRaw returns key's current values without recording a
// dependency, for callers (reducers, GC) that already track their own
// dependency on the directory as a whole.
func (d *EagerDir) GetArrayRaw(key skfs.BaseName) []skfs.File {
	e, ok := d.entries.Get(key)
	if !ok || e.removed {
		return nil
	}
	return e.merged
}

// GetArray returns key's current values. If called while a reader
// frame is active (a mapper run or a lazy compute), it records a
// dependency on (this directory, key) at the entry's current write
// time, and registers the frame's reader as a reader of this entry so
// that a future write here marks it dirty.
func (d *EagerDir) GetArray(eng Engine, key skfs.BaseName) []skfs.File {
	p := skfs.NewPath(d.dirName, key)
	e, ok := d.entries.Get(key)
	if !ok || e.removed {
		if f := eng.CurrentFrame(); f != nil {
			f.Record(invalidate.Dep{Path: p, WriteTime: skfs.TimeZero})
			d.registerReader(key, f.Reader)
		}
		return nil
	}
	if f := eng.CurrentFrame(); f != nil {
		f.Record(invalidate.Dep{Path: p, WriteTime: e.writeTime})
		e.readers[f.Reader] = struct{}{}
	}
	return e.merged
}

// registerReader records reader against key even when key has no
// entry yet, so that a later first write to key correctly marks
// reader dirty.
func (d *EagerDir) registerReader(key skfs.BaseName, reader skfs.Path) {
	e, ok := d.entries.Get(key)
	if !ok {
		e = &Entry{key: key, readers: map[skfs.Path]struct{}{}, contributions: ordmap.New[skfs.Path, []skfs.File]()}
		e.removed = true
	}
	e.readers[reader] = struct{}{}
	d.entries.Set(key, e)
}

// Keys returns the directory's non-removed keys in ascending order.
func (d *EagerDir) Keys() []skfs.BaseName {
	var out []skfs.BaseName
	for _, k := range d.entries.Keys() {
		if e, ok := d.entries.Get(k); ok && !e.removed {
			out = append(out, k)
		}
	}
	return out
}

// allValues concatenates every non-removed key's merged value, in key
// order, for use by a reducer's full Init scan.
func (d *EagerDir) allValues() []skfs.File {
	var out []skfs.File
	for _, k := range d.Keys() {
		e, _ := d.entries.Get(k)
		out = append(out, e.merged...)
	}
	return out
}

// WriteArrayMany applies a batch of key/value writes as a single tick:
// every changed key shares one writeTime, and if a reducer is
// attached, its Update is invoked exactly once for the whole batch
// with the aggregated set of removed and added values, never once per
// key -- this is what keeps an incremental reducer's result equal to
// a full rebuild regardless of how a client happens to batch writes.
func (d *EagerDir) WriteArrayMany(eng Engine, entries iter.Seq2[skfs.BaseName, []skfs.File]) {
	t := eng.Tick()
	var dirtied []skfs.Path
	var toRemove, toAdd []skfs.File
	entries(func(key skfs.BaseName, values []skfs.File) bool {
		interned := internAll(eng, values)
		e, exists := d.entries.Get(key)
		if exists && !e.removed && sameFiles(e.merged, interned) {
			return true
		}
		readers := map[skfs.Path]struct{}{}
		if exists {
			readers = e.readers
			if !e.removed {
				toRemove = append(toRemove, e.merged...)
			}
		}
		toAdd = append(toAdd, interned...)
		d.entries.Set(key, &Entry{
			key:           key,
			writeTime:     t,
			merged:        interned,
			readers:       readers,
			contributions: ordmap.New[skfs.Path, []skfs.File](),
		})
		for r := range readers {
			dirtied = append(dirtied, r)
		}
		return true
	})
	for _, r := range dirtied {
		eng.MarkDirty(r)
	}
	if d.reducerSink != nil && (len(toRemove) > 0 || len(toAdd) > 0) {
		d.reducerSink.applyDelta(eng, toRemove, toAdd)
	}
}

func single(key skfs.BaseName, values []skfs.File) iter.Seq2[skfs.BaseName, []skfs.File] {
	return func(yield func(skfs.BaseName, []skfs.File) bool) {
		yield(key, values)
	}
}

func internAll(eng Engine, values []skfs.File) []skfs.File {
	out := make([]skfs.File, len(values))
	for i, v := range values {
		out[i] = eng.Intern(v)
	}
	return out
}

func sameFiles(a, b []skfs.File) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Digest() != b[i].Digest() {
			return false
		}
	}
	return true
}

// diffValues reports which of old's values are absent from new and
// vice versa, by digest -- the (toRemove, toAdd) delta a reducer needs
// from a single-key replacement.
func diffValues(old, new []skfs.File) (toRemove, toAdd []skfs.File) {
	oldSet := make(map[digest.Digest]skfs.File, len(old))
	for _, v := range old {
		oldSet[v.Digest()] = v
	}
	newSet := make(map[digest.Digest]skfs.File, len(new))
	for _, v := range new {
		newSet[v.Digest()] = v
	}
	for d, v := range oldSet {
		if _, ok := newSet[d]; !ok {
			toRemove = append(toRemove, v)
		}
	}
	for d, v := range newSet {
		if _, ok := oldSet[d]; !ok {
			toAdd = append(toAdd, v)
		}
	}
	return toRemove, toAdd
}

func mergeContributions(c *ordmap.Map[skfs.Path, []skfs.File]) []skfs.File {
	var out []skfs.File
	for _, k := range c.Keys() {
		vs, _ := c.Get(k)
		out = append(out, vs...)
	}
	return out
}

// reducerSink binds a source EagerDir's writes to an incrementally
// maintained aggregate entry in another EagerDir.
type reducerSink struct {
	source *EagerDir
	outDir *EagerDir
	outKey skfs.BaseName
	r      reduce.EReducer
}

func (s *reducerSink) applyDelta(eng Engine, toRemove, toAdd []skfs.File) {
	state := s.outDir.GetArrayRaw(s.outKey)
	updated, ok := s.r.Update(state, toRemove, toAdd)
	if !ok {
		if !s.r.CanReset() {
			return
		}
		updated = s.r.Init(s.source.allValues())
	}
	s.outDir.WriteArray(eng, s.outKey, updated)
}

// AttachReducer wires source's writes to incrementally maintain an
// aggregate at outDir/outKey, computing the initial aggregate
// immediately from source's current contents.
func AttachReducer(eng Engine, source, outDir *EagerDir, outKey skfs.BaseName, r reduce.EReducer) {
	source.reducerSink = &reducerSink{source: source, outDir: outDir, outKey: outKey, r: r}
	outDir.WriteArray(eng, outKey, r.Init(source.allValues()))
}

// MapperSource reports the upstream directory d's mapper reads from,
// and whether one is attached at all. Context.Mclone uses this to
// find the clone sibling a cloned mapper output should rewire onto.
func (d *EagerDir) MapperSource() (*EagerDir, bool) {
	if d.mapper == nil {
		return nil, false
	}
	return d.source, true
}

// RewireMapperSource repoints d's mapper at source instead of
// whatever directory it was attached against, without re-running it.
// It is a no-op if d has no mapper attached.
func (d *EagerDir) RewireMapperSource(source *EagerDir) {
	if d.mapper != nil {
		d.source = source
	}
}

// ReducerSink reports the outDir, outKey and reducer d's reducerSink
// feeds, and whether one is attached at all. Context.Mclone uses this
// to find the clone sibling a cloned reducerSink's output should
// rewire onto.
func (d *EagerDir) ReducerSink() (outDir *EagerDir, outKey skfs.BaseName, r reduce.EReducer, ok bool) {
	if d.reducerSink == nil {
		return nil, "", nil, false
	}
	return d.reducerSink.outDir, d.reducerSink.outKey, d.reducerSink.r, true
}

// RewireReducerSink repoints d's reducerSink at outDir instead of
// whatever directory it was attached against, leaving outKey and the
// reducer itself unchanged. It is a no-op if d has no reducerSink.
func (d *EagerDir) RewireReducerSink(outDir *EagerDir) {
	if d.reducerSink != nil {
		d.reducerSink = &reducerSink{source: d, outDir: outDir, outKey: d.reducerSink.outKey, r: d.reducerSink.r}
	}
}

// Clone returns a copy of d with its own entries, safe to mutate
// independently; File values are immutable and so are shared rather
// than deep-copied. A cloned directory's mapper/reducer bindings still
// point at the original source/outDir until rewired: Context.Mclone
// calls RewireMapperSource/RewireReducerSink against its own clone
// siblings after cloning every directory, so callers that build an
// EagerDir tree outside a Context (or clone one directly rather than
// through Mclone) are responsible for the same rewiring if the
// derived directory needs to keep recomputing against the clone.
func (d *EagerDir) Clone() *EagerDir {
	nd := &EagerDir{dirName: d.dirName, entries: ordmap.New[skfs.BaseName, *Entry](), mapper: d.mapper, source: d.source, reducerSink: d.reducerSink}
	for _, k := range d.entries.Keys() {
		e, _ := d.entries.Get(k)
		ne := &Entry{
			key:           e.key,
			writeTime:     e.writeTime,
			merged:        append([]skfs.File(nil), e.merged...),
			removed:       e.removed,
			readers:       make(map[skfs.Path]struct{}, len(e.readers)),
			contributions: e.contributions.Clone(),
		}
		for r := range e.readers {
			ne.readers[r] = struct{}{}
		}
		nd.entries.Set(k, ne)
	}
	return nd
}
