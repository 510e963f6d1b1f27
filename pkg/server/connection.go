package server

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cbatu/game-server/pkg/messages"
)

// Connection wraps one websocket client.
type Connection struct {
	ID   uuid.UUID
	ws   *websocket.Conn // The underlying Websocket connection
	hub  *Hub
	send chan []byte // Buffered channel of outbound messages.

	// games maps gameID -> userID for every room this connection joined.
	// Guarded by hub.mu.
	games map[string]string

	logger *zap.Logger
}

// NewConnection wires a freshly upgraded websocket into the hub.
func NewConnection(ws *websocket.Conn, hub *Hub, logger *zap.Logger) *Connection {
	return &Connection{
		ID:     uuid.New(),
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, 256), // buffered for outgoing messages
		games:  make(map[string]string),
		logger: logger,
	}
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		var inbound messages.InboundMessage
		if err := json.Unmarshal(msg, &inbound); err != nil {
			c.logger.Warn("failed to parse inbound JSON", zap.Error(err))
			continue
		}
		if !c.forward(inbound) {
			return
		}
	}
}

// forward hands a decoded envelope to the hub. It returns false once the hub
// has shut down and nothing drains the inbound channel anymore.
func (c *Connection) forward(msg messages.InboundMessage) bool {
	select {
	case c.hub.inbound <- InboundHubMessage{Conn: c, Message: msg}:
		return true
	case <-c.hub.shutdown:
		return false
	}
}

// WritePump handles outbound messages to the client
func (c *Connection) WritePump() {
	defer c.ws.Close()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel closed
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Warn("write error",
				zap.String("connection_id", c.ID.String()),
				zap.Error(err))
			return
		}
	}
}

// SendJSON queues a message for this connection. A client that cannot keep
// up has its messages dropped rather than stalling a session goroutine.
func (c *Connection) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("error marshaling JSON", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message",
			zap.String("connection_id", c.ID.String()))
	}
}
