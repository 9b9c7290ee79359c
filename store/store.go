/*
Package store implements the shared, concurrency-safe key/value map at the
center of the system: a persistent snapshot held behind a single
compare-and-swap cell, with per-key read/write counters and periodic
on-disk snapshotting.
*/
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dimatd/kvstore/snapshot"
)

/*
Store is the public contract used by the server dispatcher:

  - Get returns a snapshot-consistent observation of a key (the map lookup
    takes no lock) and bumps its read counter and the process-wide GET
    counters.
  - Set installs (or mutates in place) a key's entry and marks the store
    dirty.
  - FlushIfDirty best-effort persists the current snapshot to disk.
  - Stats exposes the shared counters.
*/
type Store struct {
	cell     *cell
	counters *Counters
	dirty    atomic.Bool
	path     string
	log      *zap.SugaredLogger
}

// New constructs a Store backed by the snapshot file at path. If the file
// does not exist, the store starts empty; that is not an error. log may be
// nil, in which case a no-op logger is used.
func New(path string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Store{
		cell:     newCell(),
		counters: newCounters(),
		path:     path,
		log:      log,
	}

	if err := s.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("store: loading snapshot %q: %w", path, err)
	}

	return s, nil
}

func (s *Store) loadFromDisk() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	m := newMap()
	err = snapshot.Load(f, func(item snapshot.Item) {
		m.withLoadedEntry(item.Key, item.Value)
	})
	if err != nil {
		return err
	}

	s.cell.install(m)
	return nil
}

// Get returns a key's current value along with its live read/write
// counters. As a side effect it increments the entry's Reads counter and
// the process-wide GET counters. The map lookup takes no lock, but reading
// the value takes the entry's own mutex (see Entry), so a Get can briefly
// wait on a concurrent Set of the same key. The returned value is the
// stored slice itself, not a copy.
func (s *Store) Get(key string) (value []byte, reads, writes uint64, ok bool) {
	m := s.cell.load()
	entry, found := m.get(key)
	s.counters.addGet()
	if !found {
		return nil, 0, 0, false
	}

	entry.Reads.Add(1)
	return entry.Value(), entry.Reads.Load(), entry.Writes.Load(), true
}

// Set installs value under key, creating the entry on first write or
// mutating the existing one in place (value replaced, Writes incremented).
// It marks the store dirty so the next flush persists the change.
func (s *Store) Set(key string, value []byte) {
	s.cell.set(key, value)
	s.counters.addSet()
	s.dirty.Store(true)
}

// FlushIfDirty persists the current snapshot to disk if the store has been
// mutated since the last successful flush. It returns true if a write
// occurred. On I/O failure, the error is logged and the dirty flag is left
// cleared for this attempt; the next Set re-arms it.
func (s *Store) FlushIfDirty() bool {
	if !s.dirty.CompareAndSwap(true, false) {
		return false
	}

	if err := s.flush(); err != nil {
		s.log.Errorw("snapshot flush failed", "path", s.path, "error", err)
		return false
	}
	return true
}

func (s *Store) flush() error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	m := s.cell.load()
	keys := m.sortedKeys()

	idx := 0
	stream := func(yield func(snapshot.Item) bool) {
		for idx < len(keys) {
			key := keys[idx]
			idx++
			entry, ok := m.get(key)
			if !ok {
				continue
			}
			if !yield(snapshot.Item{Key: key, Value: entry.Value()}) {
				return
			}
		}
	}

	if err := snapshot.Write(tmp, uint64(len(keys)), stream); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, s.path)
}

// Stats returns a point-in-time read of the shared counters.
func (s *Store) Stats() Snapshot {
	return s.counters.Snapshot()
}

// ResetStatsWindow zeroes the window counters; called by the stats timer.
func (s *Store) ResetStatsWindow() {
	s.counters.ResetWindow()
}
