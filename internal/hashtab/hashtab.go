// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hashtab implements the DSL's named, order-preserving
// associative arrays (original_source/parser.c's ParseHashSTE_t /
// ParseHashKE_t linked lists, reimplemented as a Go map plus an
// insertion-order slice). The reserved name "nvstate" is transparently
// backed by the persistent store instead of living in process memory.
package hashtab

import (
	"github.com/xplhald/xplhald/internal/store"
)

// NVStateName is the reserved hash name backed by the persistent store.
const NVStateName = "nvstate"

// entry is one key/value pair, kept in a slice to preserve insertion
// order the way the original's linked list does.
type entry struct {
	key   string
	value string
}

// Hash is a single named associative array.
type Hash struct {
	name    string
	entries []entry
	index   map[string]int // key -> index into entries

	// backing, if non-nil, makes this hash a transparent view over the
	// persistent store (only ever set for the nvstate hash).
	backing store.Store
}

// NewHash creates an in-memory hash named name.
func NewHash(name string) *Hash {
	return &Hash{name: name, index: make(map[string]int)}
}

// NewStoreBackedHash creates the reserved nvstate hash, whose reads and
// writes pass through to backing.
func NewStoreBackedHash(backing store.Store) *Hash {
	h := NewHash(NVStateName)
	h.backing = backing
	return h
}

// Name returns the hash's name.
func (h *Hash) Name() string { return h.name }

// Get returns the value for key and whether it was present.
func (h *Hash) Get(key string) (string, bool) {
	if h.backing != nil {
		v, err := h.backing.ReadNVState(key)
		if err != nil {
			return "", false
		}
		return v, true
	}
	i, ok := h.index[key]
	if !ok {
		return "", false
	}
	return h.entries[i].value, true
}

// Set inserts or updates key. Existing keys keep their original
// position; new keys are appended, preserving insertion order.
func (h *Hash) Set(key, value string) error {
	if h.backing != nil {
		return h.backing.WriteNVState(key, value)
	}
	if i, ok := h.index[key]; ok {
		h.entries[i].value = value
		return nil
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, entry{key: key, value: value})
	return nil
}

// Keys returns every key in insertion order. For a store-backed hash
// this is always empty: the store is keyed by arbitrary external
// writers and has no enumerable "this execution's keys" notion.
func (h *Hash) Keys() []string {
	if h.backing != nil {
		return nil
	}
	keys := make([]string, len(h.entries))
	for i, e := range h.entries {
		keys[i] = e.key
	}
	return keys
}

// Entries returns every (key, value) pair in insertion order, used by
// the xplcmd primitive to build a message body from a hash's contents.
func (h *Hash) Entries() [][2]string {
	if h.backing != nil {
		return nil
	}
	out := make([][2]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = [2]string{e.key, e.value}
	}
	return out
}

// Clear empties the hash's contents in place, leaving its name and
// store backing untouched. Used by the xplcmd primitive to drain
// %xplout after sending, per original_source/parser.c's
// deleteHashContents call following every xplcmd send.
func (h *Hash) Clear() {
	if h.backing != nil {
		return
	}
	h.entries = h.entries[:0]
	for k := range h.index {
		delete(h.index, k)
	}
}

// Table is the set of named hashes visible to one script execution.
type Table struct {
	hashes map[string]*Hash
}

// NewTable creates an empty Table, pre-populated with a store-backed
// nvstate hash.
func NewTable(backing store.Store) *Table {
	t := &Table{hashes: make(map[string]*Hash)}
	t.hashes[NVStateName] = NewStoreBackedHash(backing)
	return t
}

// Hash returns the named hash, creating an in-memory one on first
// reference (the DSL has no explicit hash-declaration statement; a hash
// springs into existence the first time it's referenced, reads included).
func (t *Table) Hash(name string) *Hash {
	if h, ok := t.hashes[name]; ok {
		return h
	}
	h := NewHash(name)
	t.hashes[name] = h
	return h
}

// Exists reports whether name has been referenced yet, backing the
// EXISTS opcode's "has this hash ever been referenced" check.
func (t *Table) Exists(name string) bool {
	_, ok := t.hashes[name]
	return ok
}
