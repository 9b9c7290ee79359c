/*
Package snapshot provides a minimal, protocol-agnostic on-disk format for a
key/value dataset.

It intentionally has no dependency on the store package, so the store's
internals can evolve without touching the persisted format.

Format (little-endian): [count:u64][key_len:u64][key][value_len:u64][value]...

An earlier design left these widths at the host's native size_t,
which is not portable across architectures. This package fixes every width
at u64 instead (see DESIGN.md for the decision record) and does not persist
per-key read/write counters; entries loaded from disk always start at
reads=0, writes=0.
*/
package snapshot

import (
	"encoding/binary"
	"io"
)

// Item is a single persisted key/value pair.
type Item struct {
	Key   string
	Value []byte
}

// Streamer pushes items one at a time; returning false from yield stops
// the stream early. Push-based iteration lets Write stay allocation-free
// regardless of which store implementation is feeding it.
type Streamer func(yield func(Item) bool)

// Write serializes count, then each item from stream, to w.
func Write(w io.Writer, count uint64, stream Streamer) error {
	var writeErr error

	write := func(v any) {
		if writeErr != nil {
			return
		}
		writeErr = binary.Write(w, binary.LittleEndian, v)
	}

	write(count)
	if writeErr != nil {
		return writeErr
	}

	stream(func(item Item) bool {
		write(uint64(len(item.Key)))
		if writeErr == nil {
			_, writeErr = io.WriteString(w, item.Key)
		}
		write(uint64(len(item.Value)))
		if writeErr == nil {
			_, writeErr = w.Write(item.Value)
		}
		return writeErr == nil
	})

	return writeErr
}

// Load reads a snapshot written by Write and invokes set for every item,
// in file order. A truncated or malformed file aborts loading with an
// error; partial snapshots are never partially applied by the caller,
// since set is only called once every field of an item has been read in
// full.
func Load(r io.Reader, set func(Item)) error {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	for i := uint64(0); i < count; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return err
		}
		value, err := readLenPrefixed(r)
		if err != nil {
			return err
		}
		set(Item{Key: string(key), Value: value})
	}

	return nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
