// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dir

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/invalidate"
)

// MapperFunc computes out's contribution for key from source,
// expressed as a write back into out. It is invoked once per dirty
// key, inside a reader frame whose Reader is (out.Name(), key), so any
// source.GetArray call it makes records a fine-grained dependency:
// writing a different key of source will not re-run this mapper.
type MapperFunc func(eng Engine, source, out *EagerDir, key skfs.BaseName)

// AttachMapper derives out's entries from source via fn: fn runs once
// immediately for every key currently in source (initial population),
// and again for exactly the key the engine later drains from the
// dirty set whenever that key's recorded dependencies change.
func AttachMapper(eng Engine, source, out *EagerDir, fn MapperFunc) {
	out.mapper = fn
	out.source = source
	for _, key := range source.Keys() {
		out.HandleDirty(eng, key)
	}
}

// HandleDirty implements Producer. It is a no-op unless a mapper has
// been attached via AttachMapper.
func (d *EagerDir) HandleDirty(eng Engine, key skfs.BaseName) error {
	if d.mapper == nil {
		return nil
	}
	reader := skfs.NewPath(d.dirName, key)
	f := invalidate.NewFrame(reader)
	eng.PushFrame(f)
	d.mapper(eng, d.source, d, key)
	eng.PopFrame()
	return nil
}
