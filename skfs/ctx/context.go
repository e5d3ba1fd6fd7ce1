// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ctx implements Context, the single top-level handle a
// client holds onto an SKFS instance: it owns every directory, the
// clock, the interning table, the reader-frame stack, and the dirty
// set that Update drains.
package ctx

import (
	"github.com/grailbio/base/digest"
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/dir"
	"github.com/skiplabs/skfs/internal/errs"
	"github.com/skiplabs/skfs/internal/hash"
	"github.com/skiplabs/skfs/internal/ordmap"
	"github.com/skiplabs/skfs/invalidate"
)

// Context owns the full set of directories that make up one SKFS
// instance and drives invalidation between them. It satisfies
// dir.Engine, which is the only surface EagerDir and LazyDir need, so
// this package is the only one that imports both skfs/dir and
// skfs/invalidate directly.
type Context struct {
	clock   skfs.Clock
	dirs    *ordmap.Map[skfs.DirName, dir.Dir]
	globals map[string]interface{}
	interns *hash.Table[skfs.File]
	frames  []*invalidate.Frame
	dirty   *invalidate.DirtySet

	// producers holds one entry per directory whose contents the
	// invalidation driver recomputes rather than a client writing
	// directly: EagerDirs with an attached mapper, and LazyDirs.
	producers map[skfs.DirName]dir.Producer

	// externalPointers records every ExternalPointer ever interned,
	// keyed by digest, so that GC can tell which ones a copy no longer
	// reaches.
	externalPointers map[digest.Digest]skfs.ExternalPointer

	observer LifecycleObserver
}

// LifecycleObserver is notified as directories are created and
// removed. It exists so that diagnostics (skfs/gc.History) can track
// directory lifetimes without Context importing skfs/gc.
type LifecycleObserver interface {
	DirCreated(name skfs.DirName)
	DirRemoved(name skfs.DirName)
}

// SetLifecycleObserver registers o to be notified of every subsequent
// directory creation and removal. Only one observer can be registered
// at a time; a second call replaces the first.
func (c *Context) SetLifecycleObserver(o LifecycleObserver) { c.observer = o }

// New constructs an empty Context.
func New() *Context {
	return &Context{
		dirs:             ordmap.New[skfs.DirName, dir.Dir](),
		globals:          make(map[string]interface{}),
		interns:          hash.NewTable[skfs.File](),
		dirty:            invalidate.NewDirtySet(),
		producers:        make(map[skfs.DirName]dir.Producer),
		externalPointers: make(map[digest.Digest]skfs.ExternalPointer),
	}
}

// -- dir.Engine --

func (c *Context) Tick() skfs.Time { return c.clock.Tick() }
func (c *Context) Now() skfs.Time  { return c.clock.Now() }

func (c *Context) CurrentFrame() *invalidate.Frame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *Context) PushFrame(f *invalidate.Frame) { c.frames = append(c.frames, f) }

func (c *Context) PopFrame() *invalidate.Frame {
	n := len(c.frames)
	if n == 0 {
		return nil
	}
	f := c.frames[n-1]
	c.frames = c.frames[:n-1]
	return f
}

func (c *Context) MarkDirty(p skfs.Path) { c.dirty.Mark(p) }

// Intern returns f's canonical instance, registering it as the live
// representative of its digest. An ExternalPointer is additionally
// recorded in the context's external-pointer registry, so that GC can
// later tell whether it survived a copy.
func (c *Context) Intern(f skfs.File) skfs.File {
	canon := c.interns.Intern(f)
	if ep, ok := canon.(skfs.ExternalPointer); ok {
		c.externalPointers[ep.Digest()] = ep
	}
	return canon
}

// -- directory management --

// MkEagerDir creates and registers a new, empty EagerDir named name.
// It is an error to call it for a name that already exists.
func (c *Context) MkEagerDir(name skfs.DirName) (*dir.EagerDir, error) {
	if _, ok := c.dirs.Get(name); ok {
		return nil, errs.E(errs.Invalid, "directory already exists: "+string(name))
	}
	d := dir.NewEagerDir(name)
	c.dirs.Set(name, d)
	if c.observer != nil {
		c.observer.DirCreated(name)
	}
	return d, nil
}

// MkLazyDir creates and registers a new LazyDir named name, computed
// by fn. It is an error to call it for a name that already exists.
func (c *Context) MkLazyDir(name skfs.DirName, fn dir.ComputeFunc) (*dir.LazyDir, error) {
	if _, ok := c.dirs.Get(name); ok {
		return nil, errs.E(errs.Invalid, "directory already exists: "+string(name))
	}
	ld := dir.NewLazyDir(name, fn)
	c.dirs.Set(name, ld)
	c.producers[name] = ld
	if c.observer != nil {
		c.observer.DirCreated(name)
	}
	return ld, nil
}

// AttachMapper derives out's entries from source via fn and registers
// out with the invalidation driver, so that a write to source
// eventually re-runs fn for the affected key only.
func (c *Context) AttachMapper(source, out *dir.EagerDir, fn dir.MapperFunc) {
	dir.AttachMapper(c, source, out, fn)
	c.producers[out.Name()] = out
}

// DirNames returns the names of every directory currently registered,
// in ascending order, for callers (persist.Save, diagnostics) that
// need to enumerate the whole Context.
func (c *Context) DirNames() []skfs.DirName { return c.dirs.Keys() }

// UnsafeGetDir returns the directory named name, or a *errs.Error of
// Kind DirNotFound if it does not exist. It does not record a
// dependency; callers that need fine-grained invalidation should use
// the directory's own GetArray/GetArrayRaw instead.
func (c *Context) UnsafeGetDir(name skfs.DirName) (dir.Dir, error) {
	d, ok := c.dirs.Get(name)
	if !ok {
		return nil, errs.E(errs.DirNotFound, "no such directory: "+string(name))
	}
	return d, nil
}

// UnsafeGetEagerDir is UnsafeGetDir narrowed to *dir.EagerDir, failing
// with Kind DirTypeMismatch if name names a different variant.
func (c *Context) UnsafeGetEagerDir(name skfs.DirName) (*dir.EagerDir, error) {
	d, err := c.UnsafeGetDir(name)
	if err != nil {
		return nil, err
	}
	ed, ok := d.(*dir.EagerDir)
	if !ok {
		return nil, errs.E(errs.DirTypeMismatch, "not an eager directory: "+string(name))
	}
	return ed, nil
}

// UnsafeGetLazyDir is UnsafeGetDir narrowed to *dir.LazyDir.
func (c *Context) UnsafeGetLazyDir(name skfs.DirName) (*dir.LazyDir, error) {
	d, err := c.UnsafeGetDir(name)
	if err != nil {
		return nil, err
	}
	ld, ok := d.(*dir.LazyDir)
	if !ok {
		return nil, errs.E(errs.DirTypeMismatch, "not a lazy directory: "+string(name))
	}
	return ld, nil
}

// MaybeGetEagerDir returns name's EagerDir and true, or (nil, false)
// if it does not exist or is a different variant.
func (c *Context) MaybeGetEagerDir(name skfs.DirName) (*dir.EagerDir, bool) {
	ed, err := c.UnsafeGetEagerDir(name)
	if err != nil {
		return nil, false
	}
	return ed, true
}

// Remove replaces the directory named name with a tombstone. Writes
// and reads against it after this point observe it as a deleted
// directory until GC reclaims it.
func (c *Context) Remove(name skfs.DirName) error {
	_, ok := c.dirs.Get(name)
	if !ok {
		return errs.E(errs.DirNotFound, "no such directory: "+string(name))
	}
	c.dirs.Set(name, dir.NewDeleted(name, c.clock.Tick()))
	delete(c.producers, name)
	if c.observer != nil {
		c.observer.DirRemoved(name)
	}
	return nil
}

// SetGlobal stores an out-of-band value under key, for ambient
// configuration that does not participate in the dependency graph
// (e.g. the driver's current batch id).
func (c *Context) SetGlobal(key string, value interface{}) { c.globals[key] = value }

// GetGlobal retrieves a value set by SetGlobal.
func (c *Context) GetGlobal(key string) (interface{}, bool) {
	v, ok := c.globals[key]
	return v, ok
}

// Update drains the dirty set in ascending Path order, dispatching
// each dirty key to the Producer registered for its directory. Eager
// mapper outputs recompute immediately; lazy entries are simply
// marked stale, deferring recomputation to their next read. Each call
// first advances the clock by one tick. Update returns once the dirty set is empty; because dispatch can itself
// mark further readers dirty (a chain of derived directories), it
// keeps draining until a full pass finds nothing left.
func (c *Context) Update() error {
	c.clock.Tick()
	for {
		p, ok := c.dirty.Pop()
		if !ok {
			return nil
		}
		producer, ok := c.producers[p.Dir]
		if !ok {
			continue
		}
		if err := producer.HandleDirty(c, p.Base); err != nil {
			return err
		}
	}
}

// Mclone returns a deep-enough copy of c suitable for independent
// mutation: every directory's structure is copied, but File values
// remain shared since they are immutable. Mclone is used by the
// benchmark harness to fork a baseline context before
// each trial without re-running the trial's setup from scratch.
//
// A plain per-directory clone is not enough: an EagerDir's mapper and
// reducerSink bindings, and the producers map driving Update, would
// otherwise still point at c's directories rather than out's, so a
// write against the clone would silently recompute or aggregate into
// the original context instead of its own copy. Mclone rewires every
// such binding onto its clone sibling, found by directory name, and
// rebuilds producers against the new directories so derived
// directories in the clone keep recomputing independently.
func (c *Context) Mclone() *Context {
	out := New()
	out.clock = c.clock
	for _, name := range c.dirs.Keys() {
		d, _ := c.dirs.Get(name)
		out.dirs.Set(name, cloneDir(d))
	}
	for _, name := range c.dirs.Keys() {
		orig, _ := c.dirs.Get(name)
		oed, ok := orig.(*dir.EagerDir)
		if !ok {
			continue
		}
		ncd, _ := out.dirs.Get(name)
		ned := ncd.(*dir.EagerDir)
		if srcDir, ok := oed.MapperSource(); ok {
			if ncSrc, ok := out.dirs.Get(srcDir.Name()); ok {
				if ncSrcEd, ok := ncSrc.(*dir.EagerDir); ok {
					ned.RewireMapperSource(ncSrcEd)
				}
			}
		}
		if outDir, _, _, ok := oed.ReducerSink(); ok {
			if ncOut, ok := out.dirs.Get(outDir.Name()); ok {
				if ncOutEd, ok := ncOut.(*dir.EagerDir); ok {
					ned.RewireReducerSink(ncOutEd)
				}
			}
		}
	}
	for name, producer := range c.producers {
		cd, ok := out.dirs.Get(name)
		if !ok {
			continue
		}
		cp, ok := cd.(dir.Producer)
		if !ok {
			continue
		}
		out.producers[name] = cp
	}
	for k, v := range c.globals {
		out.globals[k] = v
	}
	return out
}

func cloneDir(d dir.Dir) dir.Dir {
	switch v := d.(type) {
	case *dir.EagerDir:
		return v.Clone()
	case *dir.LazyDir:
		return v.Clone()
	case *dir.Deleted:
		return dir.NewDeleted(v.Name(), v.DeletedAt())
	default:
		return d
	}
}
