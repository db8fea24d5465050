package collection

import (
	"context"
	"sync"
)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe registry keyed by event kind.
// Handlers of one kind fire in the order they subscribed.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers h for kind and returns a function that removes it.
// The returned function drops the subscription id from every kind and may
// be called any number of times.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() { b.remove(id) }
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, subs := range b.subs {
		for i, s := range subs {
			if s.id == id {
				// Copy so a Publish iterating the old slice is unaffected.
				next := make([]subscription, 0, len(subs)-1)
				next = append(next, subs[:i]...)
				b.subs[kind] = append(next, subs[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every handler subscribed to ev.Kind and returns once they
// have all returned. Handlers may subscribe or unsubscribe while running.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Kind]
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ctx, ev)
	}
}

// Len returns the number of handlers subscribed to kind.
func (b *Bus) Len(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
