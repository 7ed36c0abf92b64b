package state

import "sync"

// RingBuffer is a fixed-size circular buffer.
// It keeps the retained closed-bar history: the owner loop writes, HTTP
// handlers and the shutdown path read.
type RingBuffer[T any] struct {
	data     []T
	capacity int
	head     int // index of the next write
	size     int
	mu       sync.RWMutex
}

// NewRingBuffer creates a ring buffer of fixed capacity (at least 1).
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts v, evicting the oldest value when full. O(1).
func (rb *RingBuffer[T]) Add(v T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.data[rb.head] = v
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// AddAll inserts values in order.
func (rb *RingBuffer[T]) AddAll(vs []T) {
	for _, v := range vs {
		rb.Add(v)
	}
}

// GetAll returns a copy of all values, oldest first. O(N).
func (rb *RingBuffer[T]) GetAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]T, 0, rb.size)
	if rb.size < rb.capacity {
		return append(out, rb.data[:rb.head]...)
	}
	// full: head is the oldest entry
	out = append(out, rb.data[rb.head:]...)
	return append(out, rb.data[:rb.head]...)
}

// Last returns the newest value.
func (rb *RingBuffer[T]) Last() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.data[(rb.head-1+rb.capacity)%rb.capacity], true
}

func (rb *RingBuffer[T]) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

func (rb *RingBuffer[T]) Capacity() int { return rb.capacity }
