package messages

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Server-to-client event names.
const (
	EventConnected            = "connected"
	EventGameState            = "gameState"
	EventPlayerUpdate         = "playerUpdate"
	EventMove                 = "move"
	EventTimeUpdate           = "timeUpdate"
	EventGameOver             = "gameOver"
	EventChat                 = "chat"
	EventDrawOffer            = "drawOffer"
	EventDrawDeclined         = "drawDeclined"
	EventPlayerDisconnected   = "playerDisconnected"
	EventPlayerReconnected    = "playerReconnected"
	EventPlayerTempDisconnect = "playerTemporarilyDisconnected"
	EventError                = "error"
)

// ConnectedPayload acknowledges a fresh websocket connection.
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// PlayerProfile is the public identity of a seated player.
type PlayerProfile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MoveRecord is one applied ply as replayed to reconnecting clients.
type MoveRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Notation  string `json:"notation"`
	FEN       string `json:"fen"`
}

// GameStatePayload is the full snapshot sent to the requesting connection
// on every join, including reconnections.
type GameStatePayload struct {
	GameID             string         `json:"gameId"`
	FEN                string         `json:"fen"`
	PlayerColor        string         `json:"playerColor"` // "white", "black" or "" for spectators
	InitialTime        TimeLeft       `json:"initialTime"`
	Increment          float64        `json:"increment"`
	WhitePlayerID      string         `json:"whitePlayerId"`
	BlackPlayerID      string         `json:"blackPlayerId"`
	WhitePlayerProfile *PlayerProfile `json:"whitePlayerProfile,omitempty"`
	BlackPlayerProfile *PlayerProfile `json:"blackPlayerProfile,omitempty"`
	Started            bool           `json:"started"`
	WhiteTimeLeft      TimeLeft       `json:"whiteTimeLeft"`
	BlackTimeLeft      TimeLeft       `json:"blackTimeLeft"`
	FirstMoveMade      bool           `json:"firstMoveMade"`
	MoveHistory        []MoveRecord   `json:"moveHistory"`
}

// PlayerUpdatePayload is the lightweight roster broadcast after a join.
type PlayerUpdatePayload struct {
	WhitePlayerID      string         `json:"whitePlayerId"`
	BlackPlayerID      string         `json:"blackPlayerId"`
	WhitePlayerProfile *PlayerProfile `json:"whitePlayerProfile,omitempty"`
	BlackPlayerProfile *PlayerProfile `json:"blackPlayerProfile,omitempty"`
}

// MoveBroadcastPayload carries an accepted move with server-authoritative
// clock values to everyone in the room except the sender.
type MoveBroadcastPayload struct {
	GameID              string     `json:"gameId"`
	Move                MoveCoords `json:"move"`
	FEN                 string     `json:"fen"`
	MoveNotation        string     `json:"moveNotation"`
	WhiteTimeLeft       TimeLeft   `json:"whiteTimeLeft"`
	BlackTimeLeft       TimeLeft   `json:"blackTimeLeft"`
	IsWhiteTimerRunning bool       `json:"isWhiteTimerRunning"`
	IsBlackTimerRunning bool       `json:"isBlackTimerRunning"`
	FirstMoveMade       bool       `json:"firstMoveMade"`
}

// GameOverPayload announces the terminal state. Winner is null for draws.
type GameOverPayload struct {
	Reason string  `json:"reason"` // checkmate|resignation|timeout|draw|abandonment
	Winner *string `json:"winner"` // "white", "black" or null
}

// DrawOfferPayload notifies the room of a pending draw proposal.
type DrawOfferPayload struct {
	GameID       string `json:"gameId"`
	FromPlayerID string `json:"fromPlayerId"`
}

// PresencePayload covers the disconnect/reconnect notifications. GameActive
// lets the client distinguish "waiting for reconnection" from "game over,
// opponent left".
type PresencePayload struct {
	Message    string `json:"message"`
	GameActive bool   `json:"gameActive"`
}

// ErrorPayload is sent to the offending sender only.
type ErrorPayload struct {
	Message string `json:"message"`
}
