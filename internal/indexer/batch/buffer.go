// Package batch holds the writer's uncommitted documents between a commit
// boundary and the next.
package batch

import (
	"sync"
)

// Entry is one converted document waiting for commit.
type Entry struct {
	Fields map[string]any
}

type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int64
}

func NewBuffer() *Buffer {
	return &Buffer{
		entries: make([]Entry, 0, 64),
	}
}

func (b *Buffer) Add(fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Fields: fields})
	b.size += estimateSize(fields)
}

// Snapshot returns the buffered entries in insertion order. The returned
// slice is a copy; the buffer keeps its contents until Reset.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Size is a rough byte estimate of the buffered documents.
func (b *Buffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]Entry, 0, 64)
	b.size = 0
}

func estimateSize(fields map[string]any) int64 {
	var n int64 = 64
	for name, v := range fields {
		n += int64(len(name))
		switch val := v.(type) {
		case string:
			n += int64(len(val))
		default:
			n += 8
		}
	}
	return n
}
