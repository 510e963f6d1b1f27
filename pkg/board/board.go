// Package board wraps the chess rules library behind the small surface the
// session coordinator needs. The library is the sole authority on legality;
// nothing client-supplied is trusted past this point.
package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"github.com/cbatu/game-server/internal/color"
)

// ErrIllegalMove is returned for any move that is not in the legal-move set
// for the side to move, including malformed coordinates.
var ErrIllegalMove = errors.New("illegal move")

// Result describes an accepted move.
type Result struct {
	Notation    string // SAN, e.g. "Nf3" or "exd5+"
	UCI         string // e.g. "g1f3"
	FEN         string // position after the move
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool // any drawn outcome: stalemate, repetition, fifty-move, material
}

// Engine holds one live chess position.
type Engine struct {
	game *chess.Game
}

// New builds an engine from a starting position and a list of UCI moves to
// replay. An empty or "startpos" fen means the standard initial position.
// The position is always reconstructed by replaying the stored moves so the
// library keeps full repetition history.
func New(fen string, moves []string) (*Engine, error) {
	var game *chess.Game

	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chess.NewGame()
	} else {
		option, err := chess.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chess.NewGame(option)
	}

	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %q: %w", mv, err)
		}
	}

	return &Engine{game: game}, nil
}

// ApplyMove validates and applies a move given as from/to squares plus an
// optional promotion piece letter ("q", "r", "b", "n"). It returns
// ErrIllegalMove without mutating the position when the move is not legal.
func (e *Engine) ApplyMove(from, to, promotion string) (Result, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	if len(uci) < 4 {
		return Result{}, ErrIllegalMove
	}

	pos := e.game.Position()
	move, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Result{}, ErrIllegalMove
	}
	if err := e.game.Move(move, nil); err != nil {
		return Result{}, ErrIllegalMove
	}

	san := chess.AlgebraicNotation{}.Encode(pos, move)
	method := e.game.Method()

	return Result{
		Notation:    san,
		UCI:         uci,
		FEN:         e.game.FEN(),
		IsCheck:     strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#"),
		IsCheckmate: method == chess.Checkmate,
		IsStalemate: method == chess.Stalemate,
		IsDraw:      e.game.Outcome() == chess.Draw,
	}, nil
}

// Turn returns the color whose move is currently legal.
func (e *Engine) Turn() color.Color {
	if e.game.Position().Turn() == chess.White {
		return color.White
	}
	return color.Black
}

// FEN returns the current position.
func (e *Engine) FEN() string {
	return e.game.FEN()
}

// MoveCount returns the number of plies applied so far.
func (e *Engine) MoveCount() int {
	return len(e.game.Moves())
}

// PGN renders the applied moves as PGN text for archival.
func (e *Engine) PGN() string {
	return e.game.String()
}

// GameOver reports whether the position itself is terminal, independent of
// clocks or resignation.
func (e *Engine) GameOver() bool {
	return e.game.Outcome() != chess.NoOutcome
}

// LegalDestinations lists the squares reachable from the given square for
// the side to move. Used for optional premove hints only; the coordinator
// never consults it for correctness.
func (e *Engine) LegalDestinations(square string) []string {
	square = strings.ToLower(strings.TrimSpace(square))
	var out []string
	for _, mv := range e.game.ValidMoves() {
		if mv.S1().String() == square {
			out = append(out, mv.S2().String())
		}
	}
	return out
}
