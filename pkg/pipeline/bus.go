package pipeline

import (
	"context"
	"sync"
	"time"
)

type EventType int

const (
	// EventError is published when an element fails to process a message.
	EventError EventType = iota
	// EventWarning is published for recoverable conditions.
	EventWarning
	// EventResponseStart marks the beginning of a reply generation.
	EventResponseStart
	// EventResponseEnd marks the end of a reply generation. The payload
	// carries either the final text or an error description.
	EventResponseEnd
	// EventTextDelta carries partial model output as it streams.
	EventTextDelta
	// EventSpeechStart marks the beginning of synthesized speech playback.
	EventSpeechStart
)

// Event is an out-of-band notification published by pipeline elements.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// Bus distributes events from elements to interested subscribers.
// Delivery is best-effort: a subscriber whose channel is full misses
// the event rather than blocking the publisher.
type Bus interface {
	Subscribe(eventType EventType, ch chan<- Event)
	Unsubscribe(eventType EventType, ch chan<- Event)
	Publish(evt Event) bool
	Start(ctx context.Context) error
	Stop()
}

type eventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan<- Event
}

func NewEventBus() Bus {
	return &eventBus{
		subscribers: make(map[EventType][]chan<- Event),
	}
}

func (b *eventBus) Subscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *eventBus) Unsubscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every subscriber without blocking.
// Returns false if any subscriber's channel was full and the event
// was dropped for it.
func (b *eventBus) Publish(evt Event) bool {
	b.mu.RLock()
	subs := b.subscribers[evt.Type]
	b.mu.RUnlock()

	delivered := true
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	return delivered
}

// Start and Stop are lifecycle hooks for the Bus interface; delivery is
// synchronous and needs no background work.
func (b *eventBus) Start(ctx context.Context) error {
	return nil
}

func (b *eventBus) Stop() {}
