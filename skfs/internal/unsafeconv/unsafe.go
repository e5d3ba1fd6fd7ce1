// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package unsafeconv provides zero-copy []byte<->string conversions,
// adapted from github.com/grailbio/base/unsafe. It is used by
// skfs/proto's stdin-protocol scanner to hand out BaseName keys
// without copying out of the scan buffer.
package unsafeconv

import (
	"unsafe"
)

// BytesToString casts src to a string without copying. The returned
// string shares memory with src; callers must not mutate src for as
// long as the string is live.
func BytesToString(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	return unsafe.String(&src[0], len(src))
}

// StringToBytes casts src to []byte without copying. The returned
// slice shares memory with src and must not be mutated.
func StringToBytes(src string) []byte {
	if len(src) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(src), len(src))
}
