package store

import "sync/atomic"

/*
cell is a single atomically swappable reference to the current Map
snapshot. All readers observe some past snapshot; writers install a new
snapshot via compare-and-swap, retrying on contention.

GET is lock-free and snapshot-consistent. SET is wait-free per attempt: a
new key is installed via the CAS loop below, but once a key exists its
Entry is mutated in place (see map.go) and no further CAS is needed for
that write, so concurrent sets to the same key never double-count writes
just because an unrelated key's set happened to race the map swap.
*/
type cell struct {
	ptr atomic.Pointer[Map]
}

func newCell() *cell {
	c := &cell{}
	c.ptr.Store(newMap())
	return c
}

func (c *cell) load() *Map {
	return c.ptr.Load()
}

// set installs key->value. It returns the Entry that now holds the value,
// already reflecting this call's mutation.
func (c *cell) set(key string, value []byte) *Entry {
	for {
		old := c.ptr.Load()
		if entry, ok := old.get(key); ok {
			entry.setValue(value)
			entry.Writes.Add(1)
			return entry
		}

		next := old.withNewEntry(key, value)
		if c.ptr.CompareAndSwap(old, next) {
			entry, _ := next.get(key)
			return entry
		}
		// Lost the race to an unrelated (or same-key) concurrent writer;
		// reload and retry. If the other writer created the same key, the
		// next iteration's old.get(key) will find it and take the in-place
		// mutation path instead.
	}
}

// install replaces the current snapshot outright. Used only when loading a
// snapshot file at construction time, before the store is reachable from
// any other goroutine.
func (c *cell) install(m *Map) {
	c.ptr.Store(m)
}
