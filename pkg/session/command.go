package session

import (
	"github.com/google/uuid"

	"github.com/cbatu/game-server/internal/color"
	"github.com/cbatu/game-server/pkg/messages"
)

// Command is the closed set of inputs a session processes. Client events,
// timer firings and state queries all go through the same mailbox, which is
// what gives the session its total event order.
type Command interface {
	isCommand()
}

// JoinCmd binds a user to the game (or rejoins/spectates) and requests a
// full state snapshot for the issuing connection.
type JoinCmd struct {
	ConnID   uuid.UUID
	UserID   string
	Username string
}

// DisconnectCmd reports that a user's connection dropped.
type DisconnectCmd struct {
	ConnID uuid.UUID
	UserID string
}

// MoveCmd submits a move in coordinate form.
type MoveCmd struct {
	ConnID    uuid.UUID
	UserID    string
	From      string
	To        string
	Promotion string
}

// TimeUpdateCmd is the bounded client clock heartbeat.
type TimeUpdateCmd struct {
	ConnID   uuid.UUID
	UserID   string
	Color    color.Color
	TimeLeft messages.TimeLeft
}

// ResignCmd forfeits the game for the claimed color.
type ResignCmd struct {
	ConnID uuid.UUID
	UserID string
	Color  color.Color
}

// OfferDrawCmd proposes a draw.
type OfferDrawCmd struct {
	ConnID uuid.UUID
	UserID string
}

// AcceptDrawCmd accepts a pending draw offer.
type AcceptDrawCmd struct {
	ConnID uuid.UUID
	UserID string
}

// DeclineDrawCmd declines a pending draw offer.
type DeclineDrawCmd struct {
	ConnID uuid.UUID
	UserID string
}

// ChatCmd appends a chat message to the room.
type ChatCmd struct {
	ConnID  uuid.UUID
	Message messages.ChatMessage
}

// clockExpiredCmd is posted by the expiry timer, never by a client.
type clockExpiredCmd struct {
	Color color.Color
}

// abandonCmd is posted when a reconnection grace timer fires. The
// generation token invalidates timers that raced a reconnect.
type abandonCmd struct {
	UserID string
	Gen    uint64
}

// snapshotCmd reads session state through the mailbox, so a query observes
// every command posted before it.
type snapshotCmd struct {
	Reply chan Snapshot
}

func (JoinCmd) isCommand()         {}
func (DisconnectCmd) isCommand()   {}
func (MoveCmd) isCommand()         {}
func (TimeUpdateCmd) isCommand()   {}
func (ResignCmd) isCommand()       {}
func (OfferDrawCmd) isCommand()    {}
func (AcceptDrawCmd) isCommand()   {}
func (DeclineDrawCmd) isCommand()  {}
func (ChatCmd) isCommand()         {}
func (clockExpiredCmd) isCommand() {}
func (abandonCmd) isCommand()      {}
func (snapshotCmd) isCommand()     {}
