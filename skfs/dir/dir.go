// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dir implements the two directory variants that make up the
// SKFS dependency graph -- EagerDir (materialized, producer-written)
// and LazyDir (computed on demand, memoized) -- plus the Deleted
// tombstone that replaces a removed directory until GC.
package dir

import (
	"github.com/grailbio/base/digest"
	"github.com/skiplabs/skfs"
)

// Dir is the closed tagged union of directory variants a Context can
// hold for a given DirName: an explicit set of variants rather than an
// open class hierarchy.
type Dir interface {
	// Name returns the directory's name.
	Name() skfs.DirName
	// isDir is unexported so Dir is a closed union: only this package
	// can introduce new variants.
	isDir()
	// Relocate rewrites every File value this directory holds through
	// intern and returns the set of post-relocation digests it keeps
	// reachable. It is GC's copying step: run once per directory, it
	// both unifies interning across the whole context and tells GC
	// which ExternalPointers survived.
	Relocate(intern func(skfs.File) skfs.File) map[digest.Digest]struct{}
}

// Deleted is a tombstone left behind by Context.Remove(dirName): it
// answers every query as empty until GC reclaims it.
type Deleted struct {
	dirName skfs.DirName
	at      skfs.Time
}

// NewDeleted constructs a tombstone for dirName, recording the time at
// which it was removed.
func NewDeleted(dirName skfs.DirName, at skfs.Time) *Deleted {
	return &Deleted{dirName: dirName, at: at}
}

func (d *Deleted) Name() skfs.DirName { return d.dirName }
func (d *Deleted) isDir()             {}

// DeletedAt returns the time at which the directory was removed.
func (d *Deleted) DeletedAt() skfs.Time { return d.at }

// Relocate implements Dir. A tombstone holds no values to relocate.
func (d *Deleted) Relocate(func(skfs.File) skfs.File) map[digest.Digest]struct{} {
	return nil
}
