package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler reacts to a published event. Errors are logged, never propagated
// to the publisher.
type Handler func(Event) error

// Bus dispatches events to typed handlers synchronously, in registration
// order, and fans them out to streaming subscribers without blocking.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	streams  map[int]chan Event
	nextID   int
	log      zerolog.Logger
}

// NewBus creates an event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		streams:  make(map[int]chan Event),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Stream registers a listener for every event and returns the channel and an
// unsubscribe function. Events are dropped for a listener whose buffer is full.
func (b *Bus) Stream(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.streams[id] = ch

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.streams, id)
			close(ch)
		})
	}
	return ch, unsub
}

// Publish runs the handlers for e.Type and then offers e to every stream.
// Handlers may publish further events.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(e); err != nil {
			b.log.Error().
				Err(err).
				Str("event_type", string(e.Type)).
				Str("event_id", e.ID).
				Msg("Event handler failed")
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.streams {
		select {
		case ch <- e:
		default:
			b.log.Warn().Str("event_type", string(e.Type)).Msg("Stream buffer full, dropping event")
		}
	}
}
