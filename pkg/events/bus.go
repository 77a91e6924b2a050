package events

import "sync"

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; slow handlers hold up engine progression, so hosts
// that do real work should hand events off to their own queue.
type Handler func(Event)

// Bus is the ordered notification channel between the engine and its host.
//
// Publish dispatches to all subscribed handlers in subscription order, on the
// calling goroutine, so subscribers observe events exactly in the order the
// engine generated them. Subscribe and Unsubscribe are safe for concurrent
// use with Publish.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	fn Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns an unsubscribe function. A nil fn is
// ignored and the returned function is a no-op.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})

	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.handlers {
		if s.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every subscriber in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, s := range handlers {
		s.fn(e)
	}
}
