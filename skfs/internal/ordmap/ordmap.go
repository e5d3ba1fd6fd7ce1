// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ordmap implements a small ordered map keyed by any
// totally-ordered skfs key type (skfs.BaseName, skfs.Path, ...),
// backed by a sorted slice searched with sort.Search rather than a
// balanced tree.
// Directory entry counts are expected to be modest (this is an
// in-memory engine, not a general database), so insertion's O(n)
// shift is an acceptable trade for a simple, cache-friendly,
// deterministically-ordered container that EagerDir.Keys() and
// LazyDir's deterministic recompute order can walk directly.
package ordmap

import "sort"

// Key is any type with a total order, as implemented by skfs.BaseName
// and skfs.Path.
type Key[K any] interface {
	Compare(other K) int
}

type entry[K Key[K], V any] struct {
	key K
	val V
}

// Map is an ordered map from K to V.
type Map[K Key[K], V any] struct {
	entries []entry[K, V]
}

// New constructs an empty Map.
func New[K Key[K], V any]() *Map[K, V] { return &Map[K, V]{} }

func (m *Map[K, V]) search(key K) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].key.Compare(key) >= 0
	})
}

// Get returns the value stored at key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	i := m.search(key)
	if i < len(m.entries) && m.entries[i].key.Compare(key) == 0 {
		return m.entries[i].val, true
	}
	var zero V
	return zero, false
}

// Set stores val at key, overwriting any previous value.
func (m *Map[K, V]) Set(key K, val V) {
	i := m.search(key)
	if i < len(m.entries) && m.entries[i].key.Compare(key) == 0 {
		m.entries[i].val = val
		return
	}
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[K, V]{key: key, val: val}
}

// Delete removes key from the map, if present. It reports whether the
// key was present.
func (m *Map[K, V]) Delete(key K) bool {
	i := m.search(key)
	if i < len(m.entries) && m.entries[i].key.Compare(key) == 0 {
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		return true
	}
	return false
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Keys returns the map's keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Range calls f for every entry in ascending key order, stopping
// early if f returns false.
func (m *Map[K, V]) Range(f func(key K, val V) bool) {
	for _, e := range m.entries {
		if !f(e.key, e.val) {
			return
		}
	}
}

// Clone returns a shallow copy of m.
func (m *Map[K, V]) Clone() *Map[K, V] {
	out := &Map[K, V]{entries: make([]entry[K, V], len(m.entries))}
	copy(out.entries, m.entries)
	return out
}
