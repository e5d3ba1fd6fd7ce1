// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package skfs implements the value model of the SKFS incremental
// computation engine: BaseName, DirName, Path, Time and File. Derived
// engine components (directories, the context, persistence and GC)
// live in subpackages that import this one.
package skfs

import "fmt"

// baseKind distinguishes the two BaseName variants.
type baseKind uint8

const (
	kindSID baseKind = iota
	kindIID
)

// BaseName is a directory key: either a string id (SID) or an integer
// id (IID). BaseName is comparable (usable as a map key) and totally
// ordered via Compare.
type BaseName struct {
	kind baseKind
	s    string
	i    int64
}

// SID constructs a string-valued BaseName.
func SID(s string) BaseName { return BaseName{kind: kindSID, s: s} }

// IID constructs an integer-valued BaseName.
func IID(i int64) BaseName { return BaseName{kind: kindIID, i: i} }

// IsSID reports whether b was constructed with SID.
func (b BaseName) IsSID() bool { return b.kind == kindSID }

// IsIID reports whether b was constructed with IID.
func (b BaseName) IsIID() bool { return b.kind == kindIID }

// String returns the underlying string value. Valid only if IsSID.
func (b BaseName) String() string {
	switch b.kind {
	case kindSID:
		return b.s
	case kindIID:
		return fmt.Sprintf("%d", b.i)
	default:
		return ""
	}
}

// Int returns the underlying integer value. Valid only if IsIID.
func (b BaseName) Int() int64 { return b.i }

// GoString renders b the way it would be constructed, for diagnostics.
func (b BaseName) GoString() string {
	if b.kind == kindSID {
		return fmt.Sprintf("SID(%q)", b.s)
	}
	return fmt.Sprintf("IID(%d)", b.i)
}

// Compare defines a total order over BaseName: all SIDs sort before
// all IIDs (an arbitrary but stable tie-break, since the two variants
// are otherwise incomparable), and each variant is ordered internally
// by its underlying value.
func (b BaseName) Compare(other BaseName) int {
	if b.kind != other.kind {
		if b.kind == kindSID {
			return -1
		}
		return 1
	}
	switch b.kind {
	case kindSID:
		switch {
		case b.s < other.s:
			return -1
		case b.s > other.s:
			return 1
		default:
			return 0
		}
	default:
		switch {
		case b.i < other.i:
			return -1
		case b.i > other.i:
			return 1
		default:
			return 0
		}
	}
}

// Less is a convenience wrapper around Compare for use with sort.Slice
// and the ordmap package.
func (b BaseName) Less(other BaseName) bool { return b.Compare(other) < 0 }
