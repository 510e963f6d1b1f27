package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cbatu/game-server/internal/color"
	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/messages"
	"github.com/cbatu/game-server/pkg/session"
)

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
}

// Hub keeps track of all active connections and their room memberships,
// decodes inbound events into typed session commands, and routes session
// broadcasts back out to rooms. Session state itself lives behind the
// session store; the hub never mutates it directly.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
	rooms       map[string]map[*Connection]bool

	register   chan *Connection
	unregister chan *Connection
	inbound    chan InboundHubMessage
	shutdown   chan struct{}

	sessions  *session.Store
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub and subscribes it to session events.
func NewHub(sessions *session.Store, publisher *events.Publisher, logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[uuid.UUID]*Connection),
		rooms:       make(map[string]map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage),
		shutdown:    make(chan struct{}),
		sessions:    sessions,
		publisher:   publisher,
		logger:      logger,
	}
	for _, et := range []events.EventType{
		events.EventDirect,
		events.EventRoom,
		events.EventRoomExcept,
		events.EventUser,
		events.EventSessionClosed,
	} {
		publisher.Subscribe(et, h.routeEvent)
	}
	return h
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)

		case <-h.shutdown:
			h.closeAll()
			return
		}
	}
}

// Register hands a new connection to the hub goroutine.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection; safe to call from the read pump.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.shutdown:
	}
}

// Shutdown stops the hub loop and closes every connection.
func (h *Hub) Shutdown() {
	close(h.shutdown)
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Info("connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("total", total))

	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventConnected,
		Payload: messages.ConnectedPayload{ConnectionID: conn.ID.String()},
	})
}

func (h *Hub) unregisterConnection(conn *Connection) {
	type departure struct {
		gameID string
		userID string
	}
	var departures []departure

	h.mu.Lock()
	if _, ok := h.connections[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)

	for gameID, userID := range conn.games {
		room := h.rooms[gameID]
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, gameID)
		}
		// Only report the user gone when no other tab of theirs remains.
		stillPresent := false
		for member := range room {
			if member.games[gameID] == userID {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			departures = append(departures, departure{gameID: gameID, userID: userID})
		}
	}
	close(conn.send)
	h.mu.Unlock()

	// Posted outside the lock: a session publishing back into routeEvent
	// must never find the hub lock held by its own caller.
	for _, d := range departures {
		if s, ok := h.sessions.Lookup(d.gameID); ok {
			s.Post(session.DisconnectCmd{ConnID: conn.ID, UserID: d.userID})
		}
	}

	h.logger.Info("connection unregistered", zap.String("connection_id", conn.ID.String()))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		close(conn.send)
		delete(h.connections, id)
	}
	h.rooms = make(map[string]map[*Connection]bool)
}

// handleInbound decodes and routes one client event. Unknown types and
// malformed payloads are answered to the sender only.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	switch msg.Message.Type {
	case messages.TypeJoinGame:
		var payload messages.JoinGamePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil || payload.GameID == "" || payload.UserID == "" {
			h.sendError(msg.Conn, "invalid joinGame payload")
			return
		}
		h.handleJoin(msg.Conn, payload)

	case messages.TypeMove:
		var payload messages.MovePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(msg.Conn, "invalid move payload")
			return
		}
		h.post(msg.Conn, payload.GameID, session.MoveCmd{
			ConnID:    msg.Conn.ID,
			UserID:    payload.UserID,
			From:      payload.Move.From,
			To:        payload.Move.To,
			Promotion: payload.Move.Promotion,
		})

	case messages.TypeTimeUpdate:
		var payload messages.TimeUpdatePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(msg.Conn, "invalid timeUpdate payload")
			return
		}
		col, ok := color.Parse(payload.Color)
		if !ok {
			h.sendError(msg.Conn, "invalid timeUpdate payload")
			return
		}
		h.post(msg.Conn, payload.GameID, session.TimeUpdateCmd{
			ConnID:   msg.Conn.ID,
			UserID:   payload.UserID,
			Color:    col,
			TimeLeft: payload.TimeLeft,
		})

	case messages.TypeResign:
		var payload messages.ResignPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(msg.Conn, "invalid resign payload")
			return
		}
		col, ok := color.Parse(payload.Color)
		if !ok {
			h.sendError(msg.Conn, "invalid resign payload")
			return
		}
		h.post(msg.Conn, payload.GameID, session.ResignCmd{
			ConnID: msg.Conn.ID,
			UserID: payload.PlayerID,
			Color:  col,
		})

	case messages.TypeOfferDraw, messages.TypeAcceptDraw, messages.TypeDeclineDraw:
		var payload messages.DrawPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(msg.Conn, "invalid draw payload")
			return
		}
		var cmd session.Command
		switch msg.Message.Type {
		case messages.TypeOfferDraw:
			cmd = session.OfferDrawCmd{ConnID: msg.Conn.ID, UserID: payload.FromPlayerID}
		case messages.TypeAcceptDraw:
			cmd = session.AcceptDrawCmd{ConnID: msg.Conn.ID, UserID: payload.FromPlayerID}
		default:
			cmd = session.DeclineDrawCmd{ConnID: msg.Conn.ID, UserID: payload.FromPlayerID}
		}
		h.post(msg.Conn, payload.GameID, cmd)

	case messages.TypeChat:
		var payload messages.ChatPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil || payload.Message.UserID == "" {
			h.sendError(msg.Conn, "invalid chat payload")
			return
		}
		h.post(msg.Conn, payload.GameID, session.ChatCmd{ConnID: msg.Conn.ID, Message: payload.Message})

	default:
		h.sendError(msg.Conn, "unknown message type")
	}
}

// handleJoin creates or hydrates the session, subscribes the connection to
// the room, and forwards the join to the session.
func (h *Hub) handleJoin(conn *Connection, payload messages.JoinGamePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := h.sessions.Get(ctx, payload.GameID)
	if err != nil {
		h.logger.Error("join failed",
			zap.String("game_id", payload.GameID),
			zap.Error(err))
		h.sendError(conn, "could not join game")
		return
	}

	h.mu.Lock()
	room := h.rooms[payload.GameID]
	if room == nil {
		room = make(map[*Connection]bool)
		h.rooms[payload.GameID] = room
	}
	room[conn] = true
	conn.games[payload.GameID] = payload.UserID
	h.mu.Unlock()

	s.Post(session.JoinCmd{
		ConnID:   conn.ID,
		UserID:   payload.UserID,
		Username: payload.Username,
	})
}

// post forwards a command to an existing session, or reports an unknown
// game id to the sender.
func (h *Hub) post(conn *Connection, gameID string, cmd session.Command) {
	if gameID == "" {
		h.sendError(conn, "missing game id")
		return
	}
	s, ok := h.sessions.Lookup(gameID)
	if !ok {
		h.sendError(conn, "game not found")
		return
	}
	s.Post(cmd)
}

// sendError reports a transport-level failure to one connection only.
func (h *Hub) sendError(conn *Connection, msg string) {
	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventError,
		Payload: messages.ErrorPayload{Message: msg},
	})
}

// routeEvent fans session output to room members. It runs on session
// goroutines, synchronously, so broadcasts keep each session's event order.
func (h *Hub) routeEvent(e events.Event) {
	switch e.Type {
	case events.EventDirect:
		// The send must happen under the lock: unregister closes conn.send
		// while holding it, and a send on a closed channel panics.
		h.mu.RLock()
		if conn := h.connections[e.ConnID]; conn != nil {
			conn.SendJSON(e.Message)
		}
		h.mu.RUnlock()

	case events.EventRoom, events.EventRoomExcept:
		h.mu.RLock()
		for conn := range h.rooms[e.GameID] {
			if e.Type == events.EventRoomExcept && conn.ID == e.ConnID {
				continue
			}
			conn.SendJSON(e.Message)
		}
		h.mu.RUnlock()

	case events.EventUser:
		h.mu.RLock()
		for conn := range h.rooms[e.GameID] {
			if conn.games[e.GameID] == e.UserID {
				conn.SendJSON(e.Message)
			}
		}
		h.mu.RUnlock()

	case events.EventSessionClosed:
		h.mu.Lock()
		for conn := range h.rooms[e.GameID] {
			delete(conn.games, e.GameID)
		}
		delete(h.rooms, e.GameID)
		h.mu.Unlock()
	}
}
