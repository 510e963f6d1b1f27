// Package session implements the authoritative coordinator for one live
// game and the store that owns all coordinator lifecycles.
package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cbatu/game-server/internal/color"
	"github.com/cbatu/game-server/pkg/board"
	"github.com/cbatu/game-server/pkg/clock"
	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/messages"
	"github.com/cbatu/game-server/pkg/repository"
)

// Phase is the coarse lifecycle stage of a session.
type Phase string

// A session moves Waiting -> Playing exactly once and never leaves Ended.
const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// Terminal reasons as they appear on the wire and in the durable record.
const (
	ReasonCheckmate   = "checkmate"
	ReasonResignation = "resignation"
	ReasonTimeout     = "timeout"
	ReasonDraw        = "draw"
	ReasonAbandonment = "abandonment"
)

const rejectMessage = "move rejected"

// Settings carries the per-session tunables the store hands down.
type Settings struct {
	DefaultInitialTime time.Duration
	DefaultIncrement   time.Duration

	ReconnectGrace     time.Duration
	ReconcileThreshold time.Duration
	RetentionWindow    time.Duration

	MailboxSize int
}

func (s Settings) withDefaults() Settings {
	if s.MailboxSize <= 0 {
		s.MailboxSize = 64
	}
	if s.ReconnectGrace <= 0 {
		s.ReconnectGrace = 30 * time.Second
	}
	if s.ReconcileThreshold <= 0 {
		s.ReconcileThreshold = 5 * time.Second
	}
	if s.RetentionWindow <= 0 {
		s.RetentionWindow = time.Minute
	}
	if s.DefaultInitialTime <= 0 {
		s.DefaultInitialTime = 10 * time.Minute
	}
	return s
}

// presence is the connection bookkeeping for one seated player.
type presence struct {
	connected      bool
	disconnectedAt *time.Time
	graceGen       uint64
	graceTimer     *time.Timer
}

// Session is the single writer of one game's authoritative state. All
// fields below the mailbox are touched only by the run goroutine.
type Session struct {
	ID string

	mailbox   chan Command
	done      chan struct{}
	closeOnce sync.Once

	settings  Settings
	store     repository.GameStore
	archive   repository.ResultArchive
	publisher *events.Publisher
	logger    *zap.Logger

	// onTerminal tells the store to schedule teardown after retention.
	onTerminal func(gameID string)

	board     *board.Engine
	clocks    map[color.Color]*clock.Clock
	moveLog   []repository.MoveRecord
	roster    map[color.Color]*messages.PlayerProfile
	presences map[string]*presence

	phase     Phase
	endReason string
	winner    *color.Color
	drawOffer *color.Color

	firstMoveMade bool

	unlimited   bool
	initialTime time.Duration
	increment   time.Duration
	startTime   time.Time
	endTime     *time.Time

	chatSeen map[string]struct{}
	chatLog  []messages.ChatMessage

	expiryTimer *time.Timer

	now func() time.Time
}

// newSession builds a coordinator from a durable record, or from a fresh
// starting position when the record is nil.
func newSession(
	gameID string,
	rec *repository.GameRecord,
	store repository.GameStore,
	archive repository.ResultArchive,
	publisher *events.Publisher,
	settings Settings,
	onTerminal func(string),
	logger *zap.Logger,
) (*Session, error) {
	settings = settings.withDefaults()

	s := &Session{
		ID:         gameID,
		mailbox:    make(chan Command, settings.MailboxSize),
		done:       make(chan struct{}),
		settings:   settings,
		store:      store,
		archive:    archive,
		publisher:  publisher,
		logger:     logger.With(zap.String("game_id", gameID)),
		onTerminal: onTerminal,
		roster:     make(map[color.Color]*messages.PlayerProfile),
		presences:  make(map[string]*presence),
		chatSeen:   make(map[string]struct{}),
		phase:      PhaseWaiting,
		now:        time.Now,
	}

	if rec == nil {
		eng, err := board.New("", nil)
		if err != nil {
			return nil, err
		}
		s.board = eng
		s.initialTime = settings.DefaultInitialTime
		s.increment = settings.DefaultIncrement
		s.startTime = s.now()
		s.clocks = map[color.Color]*clock.Clock{
			color.White: clock.New(s.initialTime, s.increment),
			color.Black: clock.New(s.initialTime, s.increment),
		}
		return s, nil
	}

	uci := make([]string, 0, len(rec.MoveHistory))
	for _, mv := range rec.MoveHistory {
		uci = append(uci, mv.From+mv.To+mv.Promotion)
	}
	eng, err := board.New("", uci)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s: %w", gameID, err)
	}
	s.board = eng
	s.moveLog = append(s.moveLog, rec.MoveHistory...)
	s.firstMoveMade = len(rec.MoveHistory) > 0

	s.unlimited = rec.Unlimited
	s.initialTime = time.Duration(rec.InitialTimeMs) * time.Millisecond
	s.increment = time.Duration(rec.IncrementMs) * time.Millisecond
	if s.initialTime <= 0 && !s.unlimited {
		s.initialTime = settings.DefaultInitialTime
		s.increment = settings.DefaultIncrement
	}
	s.startTime = rec.StartTime
	if s.startTime.IsZero() {
		s.startTime = s.now()
	}

	if s.unlimited {
		s.clocks = map[color.Color]*clock.Clock{
			color.White: clock.NewUnlimited(),
			color.Black: clock.NewUnlimited(),
		}
	} else {
		white := clock.New(s.initialTime, s.increment)
		black := clock.New(s.initialTime, s.increment)
		if rec.WhiteTimeMs > 0 || len(rec.MoveHistory) > 0 {
			white.SetRemaining(time.Duration(rec.WhiteTimeMs) * time.Millisecond)
			black.SetRemaining(time.Duration(rec.BlackTimeMs) * time.Millisecond)
		}
		s.clocks = map[color.Color]*clock.Clock{color.White: white, color.Black: black}
	}

	if rec.WhitePlayerID != "" {
		s.roster[color.White] = &messages.PlayerProfile{UserID: rec.WhitePlayerID, Username: rec.WhiteName}
		s.presences[rec.WhitePlayerID] = &presence{}
	}
	if rec.BlackPlayerID != "" {
		s.roster[color.Black] = &messages.PlayerProfile{UserID: rec.BlackPlayerID, Username: rec.BlackName}
		s.presences[rec.BlackPlayerID] = &presence{}
	}

	switch rec.Status {
	case repository.StatusFinished:
		s.phase = PhaseEnded
		s.endReason = rec.Result
		if rec.WinnerID != "" {
			if c, ok := s.participantColor(rec.WinnerID); ok {
				s.winner = &c
			}
		}
		if rec.EndTime != nil {
			end := *rec.EndTime
			s.endTime = &end
		}
	default:
		if s.roster[color.White] != nil && s.roster[color.Black] != nil {
			s.phase = PhasePlaying
		}
		// A rehydrated live game resumes with the side to move on the clock.
		if s.firstMoveMade {
			s.phase = PhasePlaying
			s.clocks[s.board.Turn()].Start()
		}
	}

	return s, nil
}

// run is the session's single-writer loop.
func (s *Session) run() {
	if s.phase == PhasePlaying && s.firstMoveMade {
		s.scheduleExpiry(s.board.Turn())
	}
	for {
		select {
		case cmd := <-s.mailbox:
			s.handle(cmd)
		case <-s.done:
			s.stopTimers()
			return
		}
	}
}

// Post enqueues a command, returning false once the session is closed.
func (s *Session) Post(cmd Command) bool {
	select {
	case s.mailbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// Close stops the run loop. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Snapshot reads consistent state through the mailbox: it observes every
// command posted before it. Once the session is closed only the terminal
// phase is reported; session fields must not be read off the run goroutine.
func (s *Session) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !s.Post(snapshotCmd{Reply: reply}) {
		return Snapshot{Phase: PhaseEnded}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return Snapshot{Phase: PhaseEnded}
	}
}

// Snapshot is a read-only copy of coordinator state.
type Snapshot struct {
	Phase          Phase
	FEN            string
	Turn           color.Color
	Moves          []repository.MoveRecord
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	WhiteRunning   bool
	BlackRunning   bool
	Unlimited      bool
	FirstMoveMade  bool
	WhiteID        string
	BlackID        string
	DrawOfferBy    *color.Color
	EndReason      string
	Winner         *color.Color
}

func (s *Session) handle(cmd Command) {
	switch c := cmd.(type) {
	case JoinCmd:
		s.handleJoin(c)
	case DisconnectCmd:
		s.handleDisconnect(c)
	case MoveCmd:
		s.handleMove(c)
	case TimeUpdateCmd:
		s.handleTimeUpdate(c)
	case ResignCmd:
		s.handleResign(c)
	case OfferDrawCmd:
		s.handleOfferDraw(c)
	case AcceptDrawCmd:
		s.handleAcceptDraw(c)
	case DeclineDrawCmd:
		s.handleDeclineDraw(c)
	case ChatCmd:
		s.handleChat(c)
	case clockExpiredCmd:
		s.handleClockExpired(c)
	case abandonCmd:
		s.handleAbandon(c)
	case snapshotCmd:
		c.Reply <- s.snapshotLocked()
	}
}

func (s *Session) handleJoin(c JoinCmd) {
	bound, isPlayer := s.participantColor(c.UserID)

	if !isPlayer {
		switch {
		case s.roster[color.White] == nil:
			bound, isPlayer = color.White, true
		case s.roster[color.Black] == nil:
			bound, isPlayer = color.Black, true
		}
		if isPlayer {
			s.roster[bound] = &messages.PlayerProfile{UserID: c.UserID, Username: c.Username}
			s.presences[c.UserID] = &presence{}
			if s.phase == PhaseWaiting && s.roster[color.White] != nil && s.roster[color.Black] != nil {
				s.phase = PhasePlaying
			}
			s.logger.Info("player joined",
				zap.String("user_id", c.UserID),
				zap.String("color", string(bound)))
			s.persistAsync()
			s.publishRoom(messages.EventPlayerUpdate, s.playerUpdatePayload())
		}
	}

	if isPlayer {
		p := s.presences[c.UserID]
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		p.graceGen++
		wasGone := !p.connected && p.disconnectedAt != nil
		p.connected = true
		p.disconnectedAt = nil
		if wasGone {
			s.logger.Info("player reconnected", zap.String("user_id", c.UserID))
			s.publishRoomExcept(c.ConnID, messages.EventPlayerReconnected, messages.PresencePayload{
				Message:    c.Username + " reconnected",
				GameActive: s.phase == PhasePlaying,
			})
		}
	}

	playerColor := ""
	if isPlayer {
		playerColor = string(bound)
	}
	s.publishDirect(c.ConnID, messages.EventGameState, s.gameStatePayload(playerColor))
}

func (s *Session) handleMove(c MoveCmd) {
	if s.phase == PhaseEnded {
		s.reject(c.ConnID)
		return
	}
	pc, ok := s.participantColor(c.UserID)
	if !ok {
		s.reject(c.ConnID)
		return
	}

	if pc != s.board.Turn() {
		// A client that never saw our ack may resend its last move; the
		// turn has already flipped, so the resend arrives off-turn.
		if n := len(s.moveLog); n > 0 {
			last := s.moveLog[n-1]
			if last.From == c.From && last.To == c.To && last.Promotion == c.Promotion {
				s.logger.Debug("duplicate move ignored",
					zap.String("user_id", c.UserID),
					zap.String("uci", c.From+c.To))
				return
			}
		}
		s.reject(c.ConnID)
		return
	}

	res, err := s.board.ApplyMove(c.From, c.To, c.Promotion)
	if err != nil {
		s.reject(c.ConnID)
		return
	}

	s.moveLog = append(s.moveLog, repository.MoveRecord{
		From:      c.From,
		To:        c.To,
		Promotion: c.Promotion,
		Notation:  res.Notation,
		FEN:       res.FEN,
	})
	s.drawOffer = nil

	if !s.firstMoveMade {
		s.firstMoveMade = true
		if s.phase == PhaseWaiting {
			s.phase = PhasePlaying
		}
	}

	mover := s.clocks[pc]
	mover.Stop()
	mover.ApplyIncrement()

	next := s.board.Turn()

	s.logger.Info("move applied",
		zap.String("user_id", c.UserID),
		zap.String("san", res.Notation),
		zap.String("new_turn", string(next)))

	switch {
	case res.IsCheckmate:
		s.publishRoomExcept(c.ConnID, messages.EventMove, s.moveBroadcastPayload(c, res))
		s.end(ReasonCheckmate, &pc)
		return
	case res.IsDraw:
		s.publishRoomExcept(c.ConnID, messages.EventMove, s.moveBroadcastPayload(c, res))
		s.end(ReasonDraw, nil)
		return
	}

	// Clocks only run once the game is live; firstMoveMade is set above, so
	// from here on the side to move is always on the clock.
	s.clocks[next].Start()
	s.scheduleExpiry(next)

	s.publishRoomExcept(c.ConnID, messages.EventMove, s.moveBroadcastPayload(c, res))
	s.persistAsync()
}

func (s *Session) handleTimeUpdate(c TimeUpdateCmd) {
	if s.phase == PhaseEnded {
		return
	}
	if _, ok := s.participantColor(c.UserID); !ok {
		return
	}
	ck := s.clocks[c.Color]
	if ck.Unlimited() || c.TimeLeft.Unlimited {
		return
	}

	reported := c.TimeLeft.Duration()
	if reported < 0 || reported > s.maxPlausible() {
		s.logger.Warn("implausible time update discarded",
			zap.String("user_id", c.UserID),
			zap.Duration("reported", reported))
		return
	}

	server := ck.Remaining()
	diff := server - reported
	if diff < 0 {
		diff = -diff
	}
	if diff >= s.settings.ReconcileThreshold {
		s.logger.Warn("time update outside reconciliation threshold",
			zap.String("user_id", c.UserID),
			zap.Duration("server", server),
			zap.Duration("reported", reported))
		return
	}

	ck.SetRemaining(reported)
	if ck.Running() {
		s.scheduleExpiry(c.Color)
	}
	s.publishRoomExcept(c.ConnID, messages.EventTimeUpdate, messages.TimeUpdatePayload{
		GameID:   s.ID,
		Color:    string(c.Color),
		TimeLeft: messages.FromDuration(reported),
	})
	s.persistAsync()
}

func (s *Session) handleClockExpired(c clockExpiredCmd) {
	if s.phase != PhasePlaying {
		return
	}
	ck := s.clocks[c.Color]
	if !ck.Expired() {
		// Reconciliation may have pushed the deadline out after this timer
		// was armed.
		if ck.Running() {
			s.scheduleExpiry(c.Color)
		}
		return
	}
	winner := c.Color.Opp()
	s.logger.Info("clock expired", zap.String("color", string(c.Color)))
	s.end(ReasonTimeout, &winner)
}

func (s *Session) handleResign(c ResignCmd) {
	pc, ok := s.participantColor(c.UserID)
	if !ok || pc != c.Color || s.phase == PhaseEnded {
		s.reject(c.ConnID)
		return
	}
	winner := pc.Opp()
	s.logger.Info("player resigned", zap.String("user_id", c.UserID))
	s.end(ReasonResignation, &winner)
}

func (s *Session) handleOfferDraw(c OfferDrawCmd) {
	pc, ok := s.participantColor(c.UserID)
	if !ok || s.phase != PhasePlaying {
		s.reject(c.ConnID)
		return
	}
	if s.drawOffer != nil && *s.drawOffer == pc {
		return // repeated offer, nothing new to announce
	}
	offer := pc
	s.drawOffer = &offer
	s.publishRoomExcept(c.ConnID, messages.EventDrawOffer, messages.DrawOfferPayload{
		GameID:       s.ID,
		FromPlayerID: c.UserID,
	})
}

func (s *Session) handleAcceptDraw(c AcceptDrawCmd) {
	pc, ok := s.participantColor(c.UserID)
	if !ok || s.phase != PhasePlaying || s.drawOffer == nil || *s.drawOffer == pc {
		s.reject(c.ConnID)
		return
	}
	s.end(ReasonDraw, nil)
}

func (s *Session) handleDeclineDraw(c DeclineDrawCmd) {
	pc, ok := s.participantColor(c.UserID)
	if !ok || s.phase != PhasePlaying || s.drawOffer == nil || *s.drawOffer == pc {
		s.reject(c.ConnID)
		return
	}
	offerer := s.roster[*s.drawOffer]
	s.drawOffer = nil
	if offerer != nil {
		s.publishUser(offerer.UserID, messages.EventDrawDeclined, messages.DrawOfferPayload{
			GameID:       s.ID,
			FromPlayerID: c.UserID,
		})
	}
}

func (s *Session) handleChat(c ChatCmd) {
	key := fmt.Sprintf("%s|%s|%d", c.Message.UserID, c.Message.Text, c.Message.Timestamp)
	if _, seen := s.chatSeen[key]; seen {
		return
	}
	s.chatSeen[key] = struct{}{}
	s.chatLog = append(s.chatLog, c.Message)
	s.publishRoom(messages.EventChat, messages.ChatPayload{GameID: s.ID, Message: c.Message})
}

func (s *Session) handleDisconnect(c DisconnectCmd) {
	p := s.presences[c.UserID]
	if p == nil {
		return // spectators carry no connection bookkeeping
	}
	if !p.connected {
		return
	}
	p.connected = false
	at := s.now()
	p.disconnectedAt = &at

	name := c.UserID
	if pc, ok := s.participantColor(c.UserID); ok {
		if prof := s.roster[pc]; prof != nil && prof.Username != "" {
			name = prof.Username
		}
	}

	if s.phase == PhasePlaying {
		p.graceGen++
		gen := p.graceGen
		if p.graceTimer != nil {
			p.graceTimer.Stop()
		}
		userID := c.UserID
		p.graceTimer = time.AfterFunc(s.settings.ReconnectGrace, func() {
			s.Post(abandonCmd{UserID: userID, Gen: gen})
		})
		s.logger.Info("player disconnected, grace window started",
			zap.String("user_id", c.UserID),
			zap.Duration("grace", s.settings.ReconnectGrace))
		s.publishRoom(messages.EventPlayerTempDisconnect, messages.PresencePayload{
			Message:    name + " disconnected, waiting for reconnection",
			GameActive: true,
		})
		return
	}

	s.publishRoom(messages.EventPlayerDisconnected, messages.PresencePayload{
		Message:    name + " left",
		GameActive: s.phase != PhaseEnded,
	})
}

func (s *Session) handleAbandon(c abandonCmd) {
	p := s.presences[c.UserID]
	if p == nil || p.connected || c.Gen != p.graceGen || s.phase != PhasePlaying {
		return
	}
	pc, ok := s.participantColor(c.UserID)
	if !ok {
		return
	}
	winner := pc.Opp()
	s.logger.Info("reconnection grace elapsed, game abandoned",
		zap.String("user_id", c.UserID))
	s.end(ReasonAbandonment, &winner)
}

// end performs the one-way transition into the terminal phase.
func (s *Session) end(reason string, winner *color.Color) {
	s.phase = PhaseEnded
	s.endReason = reason
	s.winner = winner
	s.drawOffer = nil
	now := s.now()
	s.endTime = &now

	s.clocks[color.White].Stop()
	s.clocks[color.Black].Stop()
	s.stopTimers()

	var winnerName *string
	if winner != nil {
		w := string(*winner)
		winnerName = &w
	}
	s.publishRoom(messages.EventGameOver, messages.GameOverPayload{
		Reason: reason,
		Winner: winnerName,
	})
	s.logger.Info("game over", zap.String("reason", reason))

	s.persistAsync()
	s.archiveAsync()

	if s.onTerminal != nil {
		s.onTerminal(s.ID)
	}
}

func (s *Session) participantColor(userID string) (color.Color, bool) {
	if p := s.roster[color.White]; p != nil && p.UserID == userID {
		return color.White, true
	}
	if p := s.roster[color.Black]; p != nil && p.UserID == userID {
		return color.Black, true
	}
	return "", false
}

// maxPlausible bounds client-reported clock values: nobody can legitimately
// hold more than the initial allotment plus every increment earned so far.
func (s *Session) maxPlausible() time.Duration {
	return s.initialTime + s.increment*time.Duration(len(s.moveLog)) + s.settings.ReconcileThreshold
}

func (s *Session) scheduleExpiry(c color.Color) {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	ck := s.clocks[c]
	if ck.Unlimited() || !ck.Running() {
		return
	}
	expired := c
	s.expiryTimer = time.AfterFunc(ck.Remaining(), func() {
		s.Post(clockExpiredCmd{Color: expired})
	})
}

func (s *Session) stopTimers() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	for _, p := range s.presences {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:          s.phase,
		FEN:            s.board.FEN(),
		Turn:           s.board.Turn(),
		Moves:          append([]repository.MoveRecord(nil), s.moveLog...),
		WhiteRemaining: s.clocks[color.White].Remaining(),
		BlackRemaining: s.clocks[color.Black].Remaining(),
		WhiteRunning:   s.clocks[color.White].Running(),
		BlackRunning:   s.clocks[color.Black].Running(),
		Unlimited:      s.unlimited,
		FirstMoveMade:  s.firstMoveMade,
		EndReason:      s.endReason,
	}
	if p := s.roster[color.White]; p != nil {
		snap.WhiteID = p.UserID
	}
	if p := s.roster[color.Black]; p != nil {
		snap.BlackID = p.UserID
	}
	if s.drawOffer != nil {
		offer := *s.drawOffer
		snap.DrawOfferBy = &offer
	}
	if s.winner != nil {
		w := *s.winner
		snap.Winner = &w
	}
	return snap
}
