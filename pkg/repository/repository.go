// Package repository is the persistence gateway: a durable game record per
// game id, read on session hydration and upserted on every accepted
// mutation. The live session is authoritative; the record is a lagging
// projection of it.
package repository

import (
	"context"
	"time"
)

// Game record status values.
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// MoveRecord is one applied ply.
type MoveRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Notation  string `json:"notation"`
	FEN       string `json:"fen"`
}

// GameRecord mirrors the session state that survives a restart.
type GameRecord struct {
	GameID      string       `json:"game_id"`
	FEN         string       `json:"fen"`
	MoveHistory []MoveRecord `json:"move_history"`
	Status      string       `json:"status"`

	WhitePlayerID string `json:"white_player_id,omitempty"`
	WhiteName     string `json:"white_name,omitempty"`
	BlackPlayerID string `json:"black_player_id,omitempty"`
	BlackName     string `json:"black_name,omitempty"`

	// Clock bookkeeping in milliseconds. Unlimited games ignore the values.
	Unlimited     bool  `json:"unlimited"`
	InitialTimeMs int64 `json:"initial_time"`
	IncrementMs   int64 `json:"increment"`
	WhiteTimeMs   int64 `json:"white_time"`
	BlackTimeMs   int64 `json:"black_time"`

	WinnerID string `json:"winner_id,omitempty"`
	Result   string `json:"result,omitempty"` // terminal reason
	PGN      string `json:"pgn,omitempty"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// GameStore is the durable key-value record store. Load returns (nil, nil)
// when no record exists for the id.
type GameStore interface {
	Load(ctx context.Context, gameID string) (*GameRecord, error)
	Save(ctx context.Context, record *GameRecord) error
}

// ResultArchive receives finished games exactly once, off the live path.
type ResultArchive interface {
	SaveResult(ctx context.Context, record *GameRecord) error
}
