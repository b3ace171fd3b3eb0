package band

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives published events.
type Handler func(Event)

// subscription represents a subscriber's subscription.
type subscription struct {
	id        string
	eventType EventType
	handler   Handler
}

// Bus fans band events out to subscribers. One bus belongs to one engine.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewBus creates a new bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make([]*subscription, 0),
	}
}

// Subscribe registers handler for eventType and returns the subscription ID.
func (b *Bus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions = append(b.subscriptions, &subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == subscriptionID {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return
		}
	}
}

// Publish delivers events in order. Each event gets the next sequence number.
func (b *Bus) Publish(events ...Event) {
	for _, e := range events {
		b.sequenceNoMu.Lock()
		b.sequenceNo++
		e.SequenceNo = b.sequenceNo
		b.sequenceNoMu.Unlock()

		// Copy handlers to avoid holding the lock during delivery
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.subscriptions))
		for _, sub := range b.subscriptions {
			if sub.eventType == e.Type {
				handlers = append(handlers, sub.handler)
			}
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			h(e)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make([]*subscription, 0)
}
