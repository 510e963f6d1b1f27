// Package events carries outbound traffic from session coordinators to the
// transport layer without either side importing the other.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cbatu/game-server/pkg/messages"
)

// EventType selects how an event is routed.
type EventType string

// Define event types
const (
	// EventDirect delivers to the single connection named by ConnID.
	EventDirect EventType = "DIRECT"
	// EventRoom delivers to every connection subscribed to GameID.
	EventRoom EventType = "ROOM"
	// EventRoomExcept delivers to the room minus the connection in ConnID.
	EventRoomExcept EventType = "ROOM_EXCEPT"
	// EventUser delivers to the connections of one user within the room.
	EventUser EventType = "USER"
	// EventSessionClosed tells the transport to drop the room.
	EventSessionClosed EventType = "SESSION_CLOSED"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	GameID  string
	ConnID  uuid.UUID // target for DIRECT, excluded sender for ROOM_EXCEPT
	UserID  string    // target for USER
	Message messages.OutboundMessage
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	all         []Handler
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type
func (p *Publisher) SubscribeAll(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.all = append(p.all, handler)
}

// Publish delivers an event to all subscribers. Handlers run synchronously
// on the caller's goroutine: a session emits events in the order it applied
// mutations, and that order must survive into the room broadcasts.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	allHandlers := p.all
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	for _, handler := range allHandlers {
		handler(event)
	}
}
