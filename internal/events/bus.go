// Package events provides the in-process pub/sub bus used to propagate
// connection transitions and signal lifecycle changes between components.
package events

import (
	"sync"
)

// Topic identifies an event stream on the bus.
type Topic string

const (
	// TopicConnection carries ConnectionEvent payloads on every bridge
	// state transition. The scheduler consumes it to gate submissions.
	TopicConnection Topic = "connection"

	// TopicSignal carries SignalEvent payloads on signal lifecycle
	// transitions.
	TopicSignal Topic = "signal"

	// TopicExecution carries ExecutionEvent payloads when records are
	// created or finalized.
	TopicExecution Topic = "execution"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan any)}
}

// Subscribe registers a listener for a topic and returns the channel and
// an unsubscribe function.
func (b *Bus) Subscribe(t Topic, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[t] = append(b.subs[t], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fan-outs the payload to subscribers without blocking.
func (b *Bus) Publish(t Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[t] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
