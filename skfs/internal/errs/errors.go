// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errs implements the engine's structured error taxonomy. It
// is adapted directly from github.com/grailbio/base/errors: a
// Kind-tagged, chainable error type, minus that package's
// v.io/v23/verror interoperability (SKFS has no RPC transport to
// interoperate with).
package errs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind classifies an engine-observable error.
type Kind int

const (
	// Other is an unclassified error.
	Other Kind = iota
	// DirNotFound is returned by unsafeGetDir et al. for an unknown DirName.
	DirNotFound
	// DirTypeMismatch is returned when a directory exists but under the
	// wrong variant (e.g. unsafeGetEagerDir on a LazyDir).
	DirTypeMismatch
	// WriteToDeletedDir is returned when a write targets a tombstoned dir.
	WriteToDeletedDir
	// CycleDetected marks a lazy recomputation that re-entered itself;
	// non-fatal, handled by returning the stale cache.
	CycleDetected
	// ComputeFailure wraps a panic or error raised by a mapper or a lazy
	// compute function; non-fatal, the stale cache (if any) is kept.
	ComputeFailure
	// PersistenceMagicMismatch is returned when an arena's magic number
	// does not match the running build; fatal on load.
	PersistenceMagicMismatch
	// ExternalPointerInvalid marks an ExternalPointer that did not survive
	// a GC copy; its finalizer has already been invoked.
	ExternalPointerInvalid
	// Canceled mirrors context.Canceled.
	Canceled
	// Invalid indicates invalid caller-supplied arguments.
	Invalid

	maxKind
)

var kindStrings = map[Kind]string{
	Other:                    "unknown error",
	DirNotFound:              "directory not found",
	DirTypeMismatch:          "directory type mismatch",
	WriteToDeletedDir:        "write to deleted directory",
	CycleDetected:            "dependency cycle detected",
	ComputeFailure:           "compute failure",
	PersistenceMagicMismatch: "persistence magic mismatch",
	ExternalPointerInvalid:   "external pointer invalid",
	Canceled:                 "operation was canceled",
	Invalid:                  "invalid argument",
}

var kindStdErrs = map[Kind]error{
	Canceled: context.Canceled,
	Invalid:  os.ErrInvalid,
}

// String renders a human-readable description of k.
func (k Kind) String() string { return kindStrings[k] }

// Error is SKFS's standard error type: a Kind, an optional message,
// and an optional chained cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// E constructs a new *Error from the given arguments, interpreted by
// type: Kind sets the kind, string arguments are joined (space
// separated) into the message, and any other error value becomes the
// chained cause. This mirrors grailbio-base/errors.E's calling
// convention.
func E(args ...interface{}) error {
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(a)
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		default:
			return &Error{Kind: Invalid, Message: fmt.Sprintf("errs.E: unsupported argument %T", arg)}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	if prev, ok := e.Err.(*Error); ok && e.Kind == Other {
		e.Kind = prev.Kind
	}
	if e.Kind == Other {
		for k := Kind(0); k < maxKind; k++ {
			if std, ok := kindStdErrs[k]; ok && errors.Is(e.Err, std) {
				e.Kind = k
				break
			}
		}
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		pad(&b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(&b, ":\n\t")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is/errors.As traverse the cause chain.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether e.Kind corresponds to the standard error target.
func (e *Error) Is(target error) bool {
	return target != nil && kindStdErrs[e.Kind] == target
}

// Recover wraps a plain error into *Error if it is not one already.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return E(err).(*Error)
}

// Is tells whether err carries the given Kind, looking through the
// chain of *Error causes (but not through opaque foreign errors).
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	e := Recover(err)
	for {
		if e.Kind != Other {
			return e.Kind == kind
		}
		next, ok := e.Err.(*Error)
		if !ok {
			return false
		}
		e = next
	}
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}
