package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Archive writes finished games to Postgres for the web app's history
// pages. It is never consulted by a live session.
type Archive struct {
	db *sql.DB
}

// NewArchive opens and pings the database.
func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Close releases the pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveResult upserts a terminal game record.
func (a *Archive) SaveResult(ctx context.Context, rec *GameRecord) error {
	if rec == nil || rec.Status != StatusFinished {
		return nil
	}

	moves := make([]string, 0, len(rec.MoveHistory))
	for _, mv := range rec.MoveHistory {
		moves = append(moves, mv.Notation)
	}
	movesRaw, _ := json.Marshal(moves)

	var endedAt time.Time
	if rec.EndTime != nil {
		endedAt = *rec.EndTime
	} else {
		endedAt = time.Now()
	}

	q := `INSERT INTO games (
	        game_id, white_id, white_name, black_id, black_name,
	        initial_time_ms, increment_ms, result, winner_id,
	        moves_san, pgn, started_at, ended_at
	      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	      ON CONFLICT (game_id) DO UPDATE SET
	        result=EXCLUDED.result,
	        winner_id=EXCLUDED.winner_id,
	        moves_san=EXCLUDED.moves_san,
	        pgn=EXCLUDED.pgn,
	        ended_at=EXCLUDED.ended_at`

	_, err := a.db.ExecContext(ctx, q,
		rec.GameID, rec.WhitePlayerID, rec.WhiteName, rec.BlackPlayerID, rec.BlackName,
		rec.InitialTimeMs, rec.IncrementMs, rec.Result, rec.WinnerID,
		string(movesRaw), rec.PGN, rec.StartTime, endedAt,
	)
	return err
}
