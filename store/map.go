package store

import "sort"

/*
Map is an immutable snapshot of the key->entry mapping.

None of the example repos vendor a persistent HAMT or immutable B-tree (see
DESIGN.md), so Map is rendered the idiomatic Go way the design notes
explicitly allow as a fallback: a copy-on-write top-level map, structurally
shared at the *Entry level. withNewEntry never mutates an existing Map in
place; it always builds a new top-level map, copying unchanged key->*Entry
pointers from the previous snapshot, so a flush iterating an old snapshot
is never disturbed by a writer installing a newer one.

Entry identity is never re-created for a key that already exists: once a
key is present, every later snapshot maps it to the same *Entry pointer,
and in-place value/counter mutation on that pointer is immediately visible
to holders of older snapshots too. withNewEntry is therefore only ever
used to install a key that is not yet present anywhere in the map.
*/
type Map struct {
	entries map[string]*Entry
}

func newMap() *Map {
	return &Map{entries: make(map[string]*Entry)}
}

func (m *Map) get(key string) (*Entry, bool) {
	e, ok := m.entries[key]
	return e, ok
}

// withNewEntry returns a new Map with key mapped to a freshly created
// Entry{Value: value, Reads: 0, Writes: 1}. The caller must already have
// established, under the cell's retry loop, that key is not present in m.
func (m *Map) withNewEntry(key string, value []byte) *Map {
	next := &Map{entries: make(map[string]*Entry, len(m.entries)+1)}
	for k, v := range m.entries {
		next.entries[k] = v
	}
	e := newEntry(value)
	e.Writes.Add(1)
	next.entries[key] = e
	return next
}

// withLoadedEntry installs a key loaded from a snapshot file into m in
// place, with Reads=0, Writes=0, since counters are not persisted. Used only
// during startup, before the store is reachable from any other goroutine.
func (m *Map) withLoadedEntry(key string, value []byte) {
	m.entries[key] = newEntry(value)
}

// sortedKeys returns the map's keys in ascending order, for deterministic
// snapshot output. Ordering among keys is never observable by clients.
func (m *Map) sortedKeys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
