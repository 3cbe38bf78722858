package event

import (
	"reflect"
	"sync"
)

// Bus queues typed events during a tick and delivers them synchronously when
// the tick commits. Emit and Flush are called from the tick loop only.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	pending  []queued
	handlers map[reflect.Type][]func(any)
}

type queued struct {
	t  reflect.Type
	ev any
}

func NewBus() *Bus {
	return &Bus{
		pending:  make([]queued, 0, 8),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event; it is delivered by the next Flush.
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.pending = append(b.pending, queued{t: t, ev: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// Flush delivers queued events in emission order and clears the queue.
// Events emitted by a handler are delivered in the same Flush, after the ones
// already queued. Returns the number of events delivered.
func (b *Bus) Flush() int {
	b.mu.Lock()
	handlers := b.handlers
	b.mu.Unlock()

	// len is re-read each pass: handlers may append.
	n := 0
	for ; n < len(b.pending); n++ {
		q := b.pending[n]
		for _, h := range handlers[q.t] {
			h(q.ev)
		}
	}
	clear(b.pending)
	b.pending = b.pending[:0]
	return n
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.pending)
}
