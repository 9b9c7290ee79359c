package snapshot

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	items := []Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "c", Value: []byte("")},
	}

	stream := func(yield func(Item) bool) {
		for _, it := range items {
			if !yield(it) {
				return
			}
		}
	}

	if err := Write(&buf, uint64(len(items)), stream); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var loaded []Item
	if err := Load(&buf, func(it Item) {
		loaded = append(loaded, it)
	}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(loaded) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(loaded))
	}
	for i := range items {
		if items[i].Key != loaded[i].Key {
			t.Fatalf("key mismatch at %d: got %q want %q", i, loaded[i].Key, items[i].Key)
		}
		if string(items[i].Value) != string(loaded[i].Value) {
			t.Fatalf("value mismatch at %d", i)
		}
	}
}

func TestEmpty(t *testing.T) {
	var buf bytes.Buffer

	if err := Write(&buf, 0, func(yield func(Item) bool) {}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var loaded []Item
	if err := Load(&buf, func(it Item) { loaded = append(loaded, it) }); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no items, got %d", len(loaded))
	}
}

func TestLoad_AbsentFileIsNotAnError(t *testing.T) {
	// An empty reader (as if the file did not exist) must not be treated
	// as an error: the store starts empty in that case.
	var buf bytes.Buffer
	if err := Load(&buf, func(Item) { t.Fatal("unexpected item") }); err != nil {
		t.Fatalf("expected nil error for empty input, got %v", err)
	}
}

func TestLoad_TruncatedKey(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, 1, func(yield func(Item) bool) {
		yield(Item{Key: "abcdef", Value: []byte("v")})
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:12])
	err := Load(truncated, func(Item) {})
	if err == nil {
		t.Fatalf("expected error for truncated snapshot")
	}
	if err == io.EOF {
		t.Fatalf("truncation mid-item must not look like a clean EOF")
	}
}

func TestWrite_PropagatesIOError(t *testing.T) {
	fw := &failingWriter{failAt: 1}
	err := Write(fw, 1, func(yield func(Item) bool) {
		yield(Item{Key: "a", Value: []byte("1")})
	})
	if err == nil {
		t.Fatalf("expected error from failing writer")
	}
}

type failingWriter struct {
	writes int
	failAt int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes >= f.failAt {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}
