package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is an in-memory GameStore for tests and for running without
// redis. Records are copied on the way in and out so callers never share
// state with the store.
type MemoryStore struct {
	games  map[string]*GameRecord
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		games:  make(map[string]*GameRecord),
		logger: logger,
	}
}

// Load retrieves a record copy, returning (nil, nil) when absent.
func (s *MemoryStore) Load(_ context.Context, gameID string) (*GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.games[gameID]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// Save upserts a record.
func (s *MemoryStore) Save(_ context.Context, record *GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games[record.GameID] = copyRecord(record)
	return nil
}

// Seed installs a record directly, standing in for the web app having
// created the game row before any socket connects.
func (s *MemoryStore) Seed(record *GameRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[record.GameID] = copyRecord(record)
}

func copyRecord(rec *GameRecord) *GameRecord {
	out := *rec
	out.MoveHistory = append([]MoveRecord(nil), rec.MoveHistory...)
	if rec.EndTime != nil {
		end := *rec.EndTime
		out.EndTime = &end
	}
	return &out
}
