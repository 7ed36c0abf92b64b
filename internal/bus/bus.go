package bus

import (
	"sync"
	"sync/atomic"
)

// Bus handles internal pub/sub between feed goroutines and the chart owner.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers []chan T
	closed      bool
	dropped     atomic.Uint64
}

func New[T any]() *Bus[T] {
	return &Bus[T]{
		subscribers: make([]chan T, 0),
	}
}

// Subscribe returns a read-only channel of published values.
// Subscribing to a closed bus returns a closed channel.
func (b *Bus[T]) Subscribe(bufferSize int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish broadcasts v to all subscribers.
// Non-blocking publish: if a subscriber is slow/full, the value is dropped for it.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Bus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
