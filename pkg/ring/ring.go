// Package ring provides a fixed-capacity buffer that overwrites its oldest
// element when full.
package ring

import "sync"

// Buffer keeps the most recent Cap() items. It is safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // next write position
	size  int
}

// New returns a buffer holding up to capacity items. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends item, dropping the oldest one when the buffer is full.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
	b.mu.Unlock()
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Snapshot copies the stored items, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	return b.Last(b.Cap())
}

// Last copies up to n of the most recent items, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := b.head - n
	if start < 0 {
		start += len(b.items)
	}
	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}
