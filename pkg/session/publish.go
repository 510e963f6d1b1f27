package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cbatu/game-server/internal/color"
	"github.com/cbatu/game-server/pkg/board"
	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/messages"
	"github.com/cbatu/game-server/pkg/repository"
)

func (s *Session) publishDirect(connID uuid.UUID, event string, payload interface{}) {
	s.publisher.Publish(events.Event{
		Type:    events.EventDirect,
		GameID:  s.ID,
		ConnID:  connID,
		Message: messages.OutboundMessage{Event: event, Payload: payload},
	})
}

func (s *Session) publishRoom(event string, payload interface{}) {
	s.publisher.Publish(events.Event{
		Type:    events.EventRoom,
		GameID:  s.ID,
		Message: messages.OutboundMessage{Event: event, Payload: payload},
	})
}

func (s *Session) publishRoomExcept(connID uuid.UUID, event string, payload interface{}) {
	s.publisher.Publish(events.Event{
		Type:    events.EventRoomExcept,
		GameID:  s.ID,
		ConnID:  connID,
		Message: messages.OutboundMessage{Event: event, Payload: payload},
	})
}

func (s *Session) publishUser(userID, event string, payload interface{}) {
	s.publisher.Publish(events.Event{
		Type:    events.EventUser,
		GameID:  s.ID,
		UserID:  userID,
		Message: messages.OutboundMessage{Event: event, Payload: payload},
	})
}

// reject tells the offending sender its event did nothing. The message is
// deliberately generic so a spectator cannot probe game state through
// differentiated errors.
func (s *Session) reject(connID uuid.UUID) {
	s.publishDirect(connID, messages.EventError, messages.ErrorPayload{Message: rejectMessage})
}

func (s *Session) timeLeft(c color.Color) messages.TimeLeft {
	ck := s.clocks[c]
	if ck.Unlimited() {
		return messages.UnlimitedTime()
	}
	return messages.FromDuration(ck.Remaining())
}

func (s *Session) initialTimeLeft() messages.TimeLeft {
	if s.unlimited {
		return messages.UnlimitedTime()
	}
	return messages.FromDuration(s.initialTime)
}

func (s *Session) playerUpdatePayload() messages.PlayerUpdatePayload {
	p := messages.PlayerUpdatePayload{}
	if w := s.roster[color.White]; w != nil {
		p.WhitePlayerID = w.UserID
		prof := *w
		p.WhitePlayerProfile = &prof
	}
	if b := s.roster[color.Black]; b != nil {
		p.BlackPlayerID = b.UserID
		prof := *b
		p.BlackPlayerProfile = &prof
	}
	return p
}

func (s *Session) gameStatePayload(playerColor string) messages.GameStatePayload {
	roster := s.playerUpdatePayload()
	history := make([]messages.MoveRecord, 0, len(s.moveLog))
	for _, mv := range s.moveLog {
		history = append(history, messages.MoveRecord{
			From:      mv.From,
			To:        mv.To,
			Promotion: mv.Promotion,
			Notation:  mv.Notation,
			FEN:       mv.FEN,
		})
	}
	return messages.GameStatePayload{
		GameID:             s.ID,
		FEN:                s.board.FEN(),
		PlayerColor:        playerColor,
		InitialTime:        s.initialTimeLeft(),
		Increment:          s.increment.Seconds(),
		WhitePlayerID:      roster.WhitePlayerID,
		BlackPlayerID:      roster.BlackPlayerID,
		WhitePlayerProfile: roster.WhitePlayerProfile,
		BlackPlayerProfile: roster.BlackPlayerProfile,
		Started:            s.phase != PhaseWaiting,
		WhiteTimeLeft:      s.timeLeft(color.White),
		BlackTimeLeft:      s.timeLeft(color.Black),
		FirstMoveMade:      s.firstMoveMade,
		MoveHistory:        history,
	}
}

func (s *Session) moveBroadcastPayload(c MoveCmd, res board.Result) messages.MoveBroadcastPayload {
	return messages.MoveBroadcastPayload{
		GameID:              s.ID,
		Move:                messages.MoveCoords{From: c.From, To: c.To, Promotion: c.Promotion},
		FEN:                 res.FEN,
		MoveNotation:        res.Notation,
		WhiteTimeLeft:       s.timeLeft(color.White),
		BlackTimeLeft:       s.timeLeft(color.Black),
		IsWhiteTimerRunning: s.clocks[color.White].Running(),
		IsBlackTimerRunning: s.clocks[color.Black].Running(),
		FirstMoveMade:       s.firstMoveMade,
	}
}

// snapshotRecord projects session state into the durable record shape.
// Built synchronously on the session goroutine so the async writer never
// touches live state.
func (s *Session) snapshotRecord() *repository.GameRecord {
	rec := &repository.GameRecord{
		GameID:        s.ID,
		FEN:           s.board.FEN(),
		MoveHistory:   append([]repository.MoveRecord(nil), s.moveLog...),
		Unlimited:     s.unlimited,
		InitialTimeMs: s.initialTime.Milliseconds(),
		IncrementMs:   s.increment.Milliseconds(),
		WhiteTimeMs:   s.clocks[color.White].Remaining().Milliseconds(),
		BlackTimeMs:   s.clocks[color.Black].Remaining().Milliseconds(),
		StartTime:     s.startTime,
	}
	if w := s.roster[color.White]; w != nil {
		rec.WhitePlayerID = w.UserID
		rec.WhiteName = w.Username
	}
	if b := s.roster[color.Black]; b != nil {
		rec.BlackPlayerID = b.UserID
		rec.BlackName = b.Username
	}
	switch s.phase {
	case PhaseWaiting:
		rec.Status = repository.StatusWaiting
	case PhasePlaying:
		rec.Status = repository.StatusActive
	case PhaseEnded:
		rec.Status = repository.StatusFinished
		rec.Result = s.endReason
		rec.PGN = s.board.PGN()
		if s.winner != nil {
			if p := s.roster[*s.winner]; p != nil {
				rec.WinnerID = p.UserID
			}
		}
		if s.endTime != nil {
			end := *s.endTime
			rec.EndTime = &end
		}
	}
	return rec
}

// persistAsync writes the record through without blocking the mailbox.
// Failures are retried a few times and then logged; the in-memory session
// stays authoritative either way.
func (s *Session) persistAsync() {
	rec := s.snapshotRecord()
	logger := s.logger
	store := s.store
	go func() {
		var err error
		for attempt := 0; attempt < 3; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = store.Save(ctx, rec)
			cancel()
			if err == nil {
				return
			}
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
		}
		logger.Error("persist game record failed", zap.Error(err))
	}()
}

func (s *Session) archiveAsync() {
	if s.archive == nil {
		return
	}
	rec := s.snapshotRecord()
	logger := s.logger
	archive := s.archive
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.SaveResult(ctx, rec); err != nil {
			logger.Error("archive game result failed", zap.Error(err))
		}
	}()
}
