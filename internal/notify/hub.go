// Package notify fans out job state changes to in-process subscribers.
// Delivery is synchronous and best-effort: handlers run on the publishing
// goroutine and there is no queuing, batching or ordering guarantee.
package notify

import "sync"

// Kind identifies the record type carried by an event.
type Kind string

const (
	KindDownload        Kind = "download"
	KindDownloadRemoved Kind = "download_removed"
	KindConversion      Kind = "conversion"
	KindVideo           Kind = "video"
	KindSubscription    Kind = "subscription"
)

// Event carries the full updated record after it has been persisted.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler receives published events.
type Handler func(Event)

// Hub is a minimal in-process publish/subscribe channel.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]Handler
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]Handler)}
}

// Subscribe registers a handler invoked on every published event and returns
// a function that removes the subscription.
func (h *Hub) Subscribe(fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers the event to all current subscribers synchronously.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs))
	for _, fn := range h.subs {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
