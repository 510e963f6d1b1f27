package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/messages"
	"github.com/cbatu/game-server/pkg/repository"
)

// Store owns every live session: lazily created on first join, hydrated
// from the persistence gateway, reaped a retention window after the game
// ends. Distinct games are fully independent of each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	reapers  map[string]*time.Timer
	closed   bool

	records   repository.GameStore
	archive   repository.ResultArchive
	publisher *events.Publisher
	settings  Settings
	logger    *zap.Logger
}

// NewStore creates an empty session store. archive may be nil.
func NewStore(
	records repository.GameStore,
	archive repository.ResultArchive,
	publisher *events.Publisher,
	settings Settings,
	logger *zap.Logger,
) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		reapers:   make(map[string]*time.Timer),
		records:   records,
		archive:   archive,
		publisher: publisher,
		settings:  settings.withDefaults(),
		logger:    logger,
	}
}

// Get returns the live session for gameID, creating and hydrating it if
// needed. Creation is idempotent under concurrent first-join: the lock is
// held across the existence check and the insert, so exactly one session
// per id ever runs.
func (st *Store) Get(ctx context.Context, gameID string) (*Session, error) {
	st.mu.RLock()
	if s, ok := st.sessions[gameID]; ok {
		st.mu.RUnlock()
		return s, nil
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, fmt.Errorf("session store is shut down")
	}
	if s, ok := st.sessions[gameID]; ok {
		return s, nil
	}

	rec, err := st.records.Load(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}

	s, err := newSession(gameID, rec, st.records, st.archive, st.publisher, st.settings, st.scheduleReap, st.logger)
	if err != nil {
		return nil, err
	}
	st.sessions[gameID] = s
	go s.run()

	st.logger.Info("session created",
		zap.String("game_id", gameID),
		zap.Bool("hydrated", rec != nil))

	// A game that was already over when rehydrated only serves late reads;
	// start its retention countdown immediately.
	if s.phase == PhaseEnded {
		st.scheduleReapLocked(gameID)
	}
	return s, nil
}

// Lookup returns the live session without creating one. Non-join events
// for an unknown game id fail rather than spawn sessions.
func (st *Store) Lookup(gameID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[gameID]
	return s, ok
}

// Count reports the number of resident sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// scheduleReap is handed to each session as its onTerminal callback.
func (st *Store) scheduleReap(gameID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.scheduleReapLocked(gameID)
}

func (st *Store) scheduleReapLocked(gameID string) {
	if t, ok := st.reapers[gameID]; ok {
		t.Stop()
	}
	st.reapers[gameID] = time.AfterFunc(st.settings.RetentionWindow, func() {
		st.remove(gameID)
	})
}

func (st *Store) remove(gameID string) {
	st.mu.Lock()
	s, ok := st.sessions[gameID]
	delete(st.sessions, gameID)
	delete(st.reapers, gameID)
	st.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	st.publisher.Publish(events.Event{
		Type:    events.EventSessionClosed,
		GameID:  gameID,
		Message: messages.OutboundMessage{},
	})
	st.logger.Info("session removed", zap.String("game_id", gameID))
}

// Shutdown stops every session and reap timer.
func (st *Store) Shutdown() {
	st.mu.Lock()
	st.closed = true
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	for id, t := range st.reapers {
		t.Stop()
		delete(st.reapers, id)
	}
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
