// Package ringbuf keeps fixed-capacity rolling windows of recent samples.
package ringbuf

import (
	"sort"
	"sync"
)

// Buffer is a fixed-capacity FIFO. Pushing into a full buffer evicts the
// oldest element. A Buffer is not safe for concurrent use; Set adds locking.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New returns a buffer holding at most capacity elements. A capacity below
// one is treated as one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
}

// Window returns a copy of the buffered elements, oldest first.
func (b *Buffer[T]) Window() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Reset drops all buffered elements.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

// Set is a named collection of buffers, one per channel, safe for
// concurrent use. Channels are fixed at construction.
type Set[T any] struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer[T]
}

// NewSet creates one buffer per entry in capacities.
func NewSet[T any](capacities map[string]int) *Set[T] {
	s := &Set[T]{buffers: make(map[string]*Buffer[T], len(capacities))}
	for name, c := range capacities {
		s.buffers[name] = New[T](c)
	}
	return s
}

// Push appends v to the named channel. It reports false if the channel is
// not part of the set.
func (s *Set[T]) Push(channel string, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[channel]
	if !ok {
		return false
	}
	b.Push(v)
	return true
}

// Window returns the named channel's contents oldest to newest.
func (s *Set[T]) Window(channel string) ([]T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buffers[channel]
	if !ok {
		return nil, false
	}
	return b.Window(), true
}

// Channels returns the sorted channel names.
func (s *Set[T]) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buffers))
	for name := range s.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns every channel's window.
func (s *Set[T]) Snapshot() map[string][]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]T, len(s.buffers))
	for name, b := range s.buffers {
		out[name] = b.Window()
	}
	return out
}
