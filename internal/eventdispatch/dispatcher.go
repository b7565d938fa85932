// Package eventdispatch delivers node events to a buffered channel without
// blocking the producer.
package eventdispatch

import "sync"

// Dispatcher manages event emission to a buffered channel.
// Sends never block: when the channel is full the event is dropped.
type Dispatcher[E any] struct {
	events  chan E
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewDispatcher creates a new event dispatcher with the given buffer size.
func NewDispatcher[E any](bufferSize int) *Dispatcher[E] {
	return &Dispatcher[E]{
		events: make(chan E, bufferSize),
	}
}

// Emit queues event. It reports false if the event was dropped because the
// buffer is full or the dispatcher is closed.
func (d *Dispatcher[E]) Emit(event E) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		d.dropped++
		return false
	}
}

// Events returns the events channel for the application to consume.
// The channel is closed when the dispatcher is closed.
func (d *Dispatcher[E]) Events() <-chan E {
	return d.events
}

// Dropped returns the number of events dropped on a full buffer.
func (d *Dispatcher[E]) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close closes the events channel.
// It is safe to call Close multiple times.
func (d *Dispatcher[E]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

// IsClosed returns true if the dispatcher has been closed.
func (d *Dispatcher[E]) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
