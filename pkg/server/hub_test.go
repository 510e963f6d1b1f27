package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/messages"
	"github.com/cbatu/game-server/pkg/repository"
	"github.com/cbatu/game-server/pkg/session"
)

func newTestHub(t *testing.T) (*Hub, *events.Publisher) {
	t.Helper()
	logger := zap.NewNop()
	records := repository.NewMemoryStore(logger)
	publisher := events.NewPublisher()
	sessions := session.NewStore(records, nil, publisher, session.Settings{}, logger)
	t.Cleanup(sessions.Shutdown)

	h := NewHub(sessions, publisher, logger)
	go h.Run()
	return h, publisher
}

// register wires a connection without a real websocket: the hub only ever
// touches the send buffer and the room bookkeeping.
func register(t *testing.T, h *Hub) *Connection {
	t.Helper()
	conn := &Connection{
		ID:     uuid.New(),
		hub:    h,
		send:   make(chan []byte, 32),
		games:  make(map[string]string),
		logger: zap.NewNop(),
	}
	h.Register(conn)

	msg := recv(t, conn)
	require.Equal(t, messages.EventConnected, msg.Event)
	return conn
}

func recv(t *testing.T, conn *Connection) messages.OutboundMessage {
	t.Helper()
	select {
	case data, ok := <-conn.send:
		require.True(t, ok, "send channel closed")
		var msg messages.OutboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return messages.OutboundMessage{}
	}
}

func expectSilence(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func send(h *Hub, conn *Connection, msgType string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	h.inbound <- InboundHubMessage{
		Conn:    conn,
		Message: messages.InboundMessage{Type: msgType, Payload: raw},
	}
}

func joinGame(t *testing.T, h *Hub, conn *Connection, gameID, userID, username string) {
	t.Helper()
	send(h, conn, messages.TypeJoinGame, messages.JoinGamePayload{
		GameID:   gameID,
		UserID:   userID,
		Username: username,
	})
}

func TestUnknownGameAnsweredToSenderOnly(t *testing.T) {
	h, _ := newTestHub(t)
	t.Cleanup(h.Shutdown)
	sender := register(t, h)
	other := register(t, h)

	send(h, sender, messages.TypeMove, messages.MovePayload{
		GameID: "missing",
		UserID: "user-w",
		Move:   messages.MoveCoords{From: "e2", To: "e4"},
	})

	msg := recv(t, sender)
	assert.Equal(t, messages.EventError, msg.Event)
	assert.Equal(t, "game not found", msg.Payload.(map[string]interface{})["message"])
	expectSilence(t, other)
}

func TestMalformedPayloadsRejectedToSender(t *testing.T) {
	h, _ := newTestHub(t)
	t.Cleanup(h.Shutdown)
	conn := register(t, h)

	cases := []struct {
		msgType string
		raw     string
	}{
		{messages.TypeMove, `{`},
		{messages.TypeJoinGame, `{}`}, // missing gameId and userId
		{messages.TypeResign, `{"gameId":"g1","playerId":"u1","color":"purple"}`},
		{messages.TypeTimeUpdate, `{"gameId":"g1","timeLeft":"soon"}`},
		{"bogus", `{}`},
	}
	for _, c := range cases {
		h.inbound <- InboundHubMessage{
			Conn:    conn,
			Message: messages.InboundMessage{Type: c.msgType, Payload: json.RawMessage(c.raw)},
		}
		msg := recv(t, conn)
		assert.Equal(t, messages.EventError, msg.Event, "type %s payload %s", c.msgType, c.raw)
	}
}

func TestJoinCreatesRoomAndRoutesBroadcasts(t *testing.T) {
	h, _ := newTestHub(t)
	t.Cleanup(h.Shutdown)
	white := register(t, h)
	black := register(t, h)

	joinGame(t, h, white, "game-1", "user-w", "alice")

	roster := recv(t, white)
	assert.Equal(t, messages.EventPlayerUpdate, roster.Event)
	state := recv(t, white)
	require.Equal(t, messages.EventGameState, state.Event)
	assert.Equal(t, "white", state.Payload.(map[string]interface{})["playerColor"])

	joinGame(t, h, black, "game-1", "user-b", "bob")

	// The roster broadcast reaches the whole room, the snapshot only the joiner.
	roster = recv(t, white)
	assert.Equal(t, messages.EventPlayerUpdate, roster.Event)
	roster = recv(t, black)
	assert.Equal(t, messages.EventPlayerUpdate, roster.Event)
	state = recv(t, black)
	require.Equal(t, messages.EventGameState, state.Event)
	assert.Equal(t, "black", state.Payload.(map[string]interface{})["playerColor"])
	expectSilence(t, white)
}

func TestMoveBroadcastSkipsSender(t *testing.T) {
	h, _ := newTestHub(t)
	t.Cleanup(h.Shutdown)
	white := register(t, h)
	black := register(t, h)

	joinGame(t, h, white, "game-1", "user-w", "alice")
	recv(t, white) // playerUpdate
	recv(t, white) // gameState
	joinGame(t, h, black, "game-1", "user-b", "bob")
	recv(t, white) // playerUpdate
	recv(t, black) // playerUpdate
	recv(t, black) // gameState

	send(h, white, messages.TypeMove, messages.MovePayload{
		GameID: "game-1",
		UserID: "user-w",
		Move:   messages.MoveCoords{From: "e2", To: "e4"},
	})

	msg := recv(t, black)
	assert.Equal(t, messages.EventMove, msg.Event)
	assert.Equal(t, "e4", msg.Payload.(map[string]interface{})["moveNotation"])
	expectSilence(t, white)
}

func TestDirectEventAfterUnregisterIsDropped(t *testing.T) {
	h, publisher := newTestHub(t)
	t.Cleanup(h.Shutdown)
	conn := register(t, h)

	h.Unregister(conn)
	// A follow-up register serializes behind the unregister in the hub loop.
	register(t, h)

	publisher.Publish(events.Event{
		Type:    events.EventDirect,
		ConnID:  conn.ID,
		Message: messages.OutboundMessage{Event: messages.EventError, Payload: messages.ErrorPayload{Message: "late"}},
	})

	_, ok := <-conn.send
	assert.False(t, ok, "send channel is closed and received nothing")
}

// Direct sends racing the target's unregister must never hit the closed send
// channel. Run with -race.
func TestDirectSendDuringUnregisterDoesNotPanic(t *testing.T) {
	h, publisher := newTestHub(t)
	t.Cleanup(h.Shutdown)

	for i := 0; i < 100; i++ {
		conn := register(t, h)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 10; j++ {
				publisher.Publish(events.Event{
					Type:    events.EventDirect,
					ConnID:  conn.ID,
					Message: messages.OutboundMessage{Event: messages.EventError, Payload: messages.ErrorPayload{Message: "x"}},
				})
			}
		}()
		h.Unregister(conn)
		<-done
	}
}

func TestShutdownClosesConnectionsAndUnblocksReads(t *testing.T) {
	h, _ := newTestHub(t)
	conn := register(t, h)

	h.Shutdown()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-conn.send:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// A read pump holding a decoded envelope gives up instead of blocking
	// forever on the drained inbound channel.
	assert.False(t, conn.forward(messages.InboundMessage{Type: messages.TypeChat}))
}
