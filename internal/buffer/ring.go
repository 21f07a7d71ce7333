// ABOUTME: Lock-free single-producer/single-consumer ring buffer
// ABOUTME: Holds timestamped chunks per receiver source without locking
package buffer

import "sync/atomic"

// Cloner is implemented by values that can deep-copy themselves.
// The ring stores clones so producer and consumer never alias payloads.
type Cloner[T any] interface {
	Clone() T
}

// Ring is a lock-free SPSC ring buffer. One slot is always kept free so
// empty and full are distinguishable from the two indices alone: capacity
// n holds at most n-1 items. The write index is mutated only by the
// producer and the read index only by the consumer; each index update is
// the last step of its operation, so atomic load/store ordering is the
// only synchronization needed.
type Ring[T Cloner[T]] struct {
	slots    []T
	capacity uint64
	readPos  atomic.Uint64
	writePos atomic.Uint64
}

// NewRing creates a ring buffer holding at most capacity-1 items
func NewRing[T Cloner[T]](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring[T]{
		slots:    make([]T, capacity),
		capacity: uint64(capacity),
	}
}

// Write stores a clone of v. Returns false when the buffer is full;
// it never blocks. Producer-side only.
func (r *Ring[T]) Write(v T) bool {
	w := r.writePos.Load()
	rd := r.readPos.Load()
	if w-rd >= r.capacity-1 {
		return false
	}
	r.slots[w%r.capacity] = v.Clone()
	r.writePos.Store(w + 1)
	return true
}

// Read removes and returns the oldest item. Consumer-side only.
func (r *Ring[T]) Read() (T, bool) {
	var zero T
	rd := r.readPos.Load()
	if rd == r.writePos.Load() {
		return zero, false
	}
	v := r.slots[rd%r.capacity]
	r.slots[rd%r.capacity] = zero
	r.readPos.Store(rd + 1)
	return v, true
}

// Peek returns the item at the given offset from the read position
// without consuming it. Consumer-side only; the returned value must be
// treated as read-only until consumed with Read.
func (r *Ring[T]) Peek(offset int) (T, bool) {
	var zero T
	rd := r.readPos.Load()
	w := r.writePos.Load()
	if offset < 0 || uint64(offset) >= w-rd {
		return zero, false
	}
	return r.slots[(rd+uint64(offset))%r.capacity], true
}

// Available returns the number of items ready to read
func (r *Ring[T]) Available() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// SpaceAvailable returns the number of items that can still be written
func (r *Ring[T]) SpaceAvailable() int {
	return int(r.capacity - 1 - (r.writePos.Load() - r.readPos.Load()))
}

// Utilization returns fill level in [0,1]
func (r *Ring[T]) Utilization() float64 {
	return float64(r.Available()) / float64(r.capacity-1)
}

// Clear drains all pending items. Consumer-side only.
func (r *Ring[T]) Clear() {
	r.readPos.Store(r.writePos.Load())
}
