package messages

import "encoding/json"

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// The closed set of client-to-server event types. Anything else is rejected
// at decode time.
const (
	TypeJoinGame    = "joinGame"
	TypeMove        = "move"
	TypeTimeUpdate  = "timeUpdate"
	TypeResign      = "resign"
	TypeOfferDraw   = "offerDraw"
	TypeAcceptDraw  = "acceptDraw"
	TypeDeclineDraw = "declineDraw"
	TypeChat        = "chat"
)

// JoinGamePayload binds a user to a game room, creating the session on the
// first join. Rejoining an already-bound color is how reconnection works.
type JoinGamePayload struct {
	GameID   string `json:"gameId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MoveCoords is a move in coordinate form, promotion piece optional.
type MoveCoords struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MovePayload submits a move. The clock and fen fields mirror the sender's
// optimistic local state; the server validates the move itself and never
// trusts them.
type MovePayload struct {
	GameID              string     `json:"gameId"`
	UserID              string     `json:"userId"`
	Move                MoveCoords `json:"move"`
	FEN                 string     `json:"fen,omitempty"`
	MoveNotation        string     `json:"moveNotation,omitempty"`
	WhiteTimeLeft       *TimeLeft  `json:"whiteTimeLeft,omitempty"`
	BlackTimeLeft       *TimeLeft  `json:"blackTimeLeft,omitempty"`
	IsWhiteTimerRunning bool       `json:"isWhiteTimerRunning,omitempty"`
	IsBlackTimerRunning bool       `json:"isBlackTimerRunning,omitempty"`
	FirstMoveMade       bool       `json:"firstMoveMade,omitempty"`
}

// TimeUpdatePayload is the periodic client clock heartbeat. Accepted only
// within the reconciliation threshold of the authoritative clock.
type TimeUpdatePayload struct {
	GameID   string   `json:"gameId"`
	UserID   string   `json:"userId"`
	Color    string   `json:"color"`
	TimeLeft TimeLeft `json:"timeLeft"`
}

// ResignPayload forfeits the game for the claimed color.
type ResignPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Color    string `json:"color"`
}

// DrawPayload covers offerDraw, acceptDraw and declineDraw.
type DrawPayload struct {
	GameID       string `json:"gameId"`
	FromPlayerID string `json:"fromPlayerId"`
}

// ChatMessage is one room chat line.
type ChatMessage struct {
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// ChatPayload appends a chat message to the room.
type ChatPayload struct {
	GameID  string      `json:"gameId"`
	Message ChatMessage `json:"message"`
}
