package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/cbatu/game-server/pkg/messages"
)

func TestPublishDeliversByType(t *testing.T) {
	p := NewPublisher()

	var direct, room []Event
	p.Subscribe(EventDirect, func(e Event) { direct = append(direct, e) })
	p.Subscribe(EventRoom, func(e Event) { room = append(room, e) })

	p.Publish(Event{Type: EventRoom, GameID: "g1"})
	p.Publish(Event{Type: EventDirect, GameID: "g1", ConnID: uuid.New()})
	p.Publish(Event{Type: EventRoom, GameID: "g1"})

	assert.Len(t, direct, 1)
	assert.Len(t, room, 2)
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	p := NewPublisher()

	var all []Event
	p.SubscribeAll(func(e Event) { all = append(all, e) })

	p.Publish(Event{Type: EventRoom})
	p.Publish(Event{Type: EventSessionClosed})
	p.Publish(Event{Type: EventUser, UserID: "u1"})

	assert.Len(t, all, 3)
}

// Handlers run on the publishing goroutine, so the order events arrive is
// the order the session emitted them.
func TestPublishPreservesOrder(t *testing.T) {
	p := NewPublisher()

	var seen []string
	p.SubscribeAll(func(e Event) { seen = append(seen, e.Message.Event) })

	for _, name := range []string{messages.EventMove, messages.EventGameOver, messages.EventChat} {
		p.Publish(Event{Type: EventRoom, Message: messages.OutboundMessage{Event: name}})
	}

	assert.Equal(t, []string{messages.EventMove, messages.EventGameOver, messages.EventChat}, seen)
}
