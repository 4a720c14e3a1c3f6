// Package stream provides a multi-subscriber broadcast hub. Each subscriber
// owns its buffered channel; a slow subscriber loses its oldest events rather
// than blocking the publisher or its peers.
package stream

import (
	"log/slog"
	"sync"
)

// Hub broadcasts values of type T to all current subscribers.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	buffer int
	closed bool
}

// NewHub creates a hub whose subscriber channels buffer up to buffer events.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe registers a new subscriber. The cancel func detaches it and
// closes its channel; safe to call more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber. When a subscriber's buffer is full
// its oldest event is dropped to make room, keeping the publisher wait-free.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
				slog.Debug("stream: dropped oldest event for slow subscriber", "sub", id)
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Close detaches and closes all subscriber channels. Publish after Close is
// a no-op.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
