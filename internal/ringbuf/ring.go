// File: internal/ringbuf/ring.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity ring buffer used for the loop's per-iteration transient
// buffers: the fired-list scratch space and the timer-fd backend's
// deferred-close queue. Both users run on the loop's owning goroutine, so
// the atomics here buy nothing extra there.

package ringbuf

import "sync/atomic"

// Ring is a lock-free fixed-capacity ring buffer (power-of-two size).
type Ring[T any] struct {
	data []T
	mask uint64
	head uint64
	tail uint64
}

// New allocates a ring buffer able to hold at least size elements; the
// backing capacity is rounded up to the next power of two.
func New[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	cap := 1
	for cap < size {
		cap <<= 1
	}
	return &Ring[T]{
		data: make([]T, cap),
		mask: uint64(cap) - 1,
	}
}

// Enqueue adds an item; returns false if full.
func (r *Ring[T]) Enqueue(val T) bool {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if (tail - head) == uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = val
	atomic.AddUint64(&r.tail, 1)
	return true
}

// Dequeue removes and returns (item, ok); ok==false if empty.
func (r *Ring[T]) Dequeue() (res T, ok bool) {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head == tail {
		return res, false
	}
	res = r.data[head&r.mask]
	atomic.AddUint64(&r.head, 1)
	return res, true
}

// Len returns the number of items currently buffered.
func (r *Ring[T]) Len() int {
	return int(atomic.LoadUint64(&r.tail) - atomic.LoadUint64(&r.head))
}

// Reset drops all buffered items without returning them.
func (r *Ring[T]) Reset() {
	atomic.StoreUint64(&r.head, 0)
	atomic.StoreUint64(&r.tail, 0)
}
