package content

import (
	"log/slog"
	"sort"
	"sync"
)

// EventKind names what changed. Events carry no other payload; listeners
// re-query the store.
type EventKind string

const (
	// FoldersChanged follows a subject being added, removed or renamed.
	FoldersChanged EventKind = "foldersChanged"
	// MaterialsChanged follows any item add, remove, rename, content
	// update or appended attempt.
	MaterialsChanged EventKind = "materialsChanged"
)

// Event is delivered to every subscriber after a mutation.
type Event struct {
	Kind EventKind `json:"event"`
}

// Bus is a synchronous publish-subscribe registry owned by a Store.
type Bus struct {
	subscribers map[int]func(Event)
	nextID      int
	mu          sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int]func(Event)),
	}
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish calls every subscriber in registration order on the calling
// goroutine. A panicking subscriber is logged and does not stop delivery
// to the rest.
func (b *Bus) Publish(kind EventKind) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subscribers[id])
	}
	b.mu.RUnlock()

	ev := Event{Kind: kind}
	for _, fn := range fns {
		deliver(fn, ev)
	}
}

func deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "event", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
