// Package events implements the process-local event bus connecting the
// pipeline manager to its subscribers.
package events

import (
	"sync"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// subscriberBuffer bounds each subscriber channel. A slow subscriber
// drops events rather than blocking the publisher.
const subscriberBuffer = 64

// Bus is an in-process publish/subscribe fan-out.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.Event
}

var _ driven.EventBus = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan domain.Event)}
}

// Publish delivers the event to all current subscribers without
// blocking: events to a full subscriber channel are dropped.
func (b *Bus) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel; calling it twice is safe.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}
