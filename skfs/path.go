// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package skfs

import (
	"fmt"
	"strings"
)

// DirName identifies a directory within a Context. DirNames are
// absolute, '/'-separated, path-like strings; they are never renamed
// once created.
type DirName string

// Valid reports whether d is a well-formed directory name: absolute,
// with no "." or ".." segments.
func (d DirName) Valid() bool {
	s := string(d)
	if !strings.HasPrefix(s, "/") {
		return false
	}
	for _, part := range strings.Split(s, "/") {
		if part == "." || part == ".." {
			return false
		}
	}
	return true
}

func (d DirName) String() string { return string(d) }

// Path identifies a single cell: a key within a directory.
type Path struct {
	Dir  DirName
	Base BaseName
}

// NewPath constructs a Path.
func NewPath(dir DirName, base BaseName) Path { return Path{Dir: dir, Base: base} }

func (p Path) String() string { return fmt.Sprintf("%s/%s", p.Dir, p.Base.GoString()) }

// Compare defines a total order over Path: first by DirName, then by
// BaseName. This is the order in which the invalidation driver drains
// dirty readers and in which LazyDir recompute order is made
// deterministic.
func (p Path) Compare(other Path) int {
	if p.Dir != other.Dir {
		if p.Dir < other.Dir {
			return -1
		}
		return 1
	}
	return p.Base.Compare(other.Base)
}

// Less is a convenience wrapper around Compare.
func (p Path) Less(other Path) bool { return p.Compare(other) < 0 }
