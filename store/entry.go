package store

import (
	"sync"
	"sync/atomic"
)

/*
Entry represents one stored value plus its per-key read/write counters.

An entry is created on first SET of a key and never removed (there is no
DELETE command). Its identity is retained across map snapshots: when a key
already exists, Set mutates this same Entry's Value and increments Writes
in place, so concurrent Gets observing either the old or the new snapshot
see a consistent, monotonically non-decreasing counter sequence.

Reads and Writes are lock-free atomics. Value itself needs a narrow
critical section so a concurrent Set replacing it can never race with a Get
copying it out; the lock is held only across the copy/replace, never across
I/O or the map-cell CAS.
*/
type Entry struct {
	mu    sync.Mutex
	value []byte

	Reads  atomic.Uint64
	Writes atomic.Uint64
}

func newEntry(value []byte) *Entry {
	return &Entry{value: value}
}

func (e *Entry) Value() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Entry) setValue(value []byte) {
	e.mu.Lock()
	e.value = value
	e.mu.Unlock()
}
