package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cbatu/game-server/internal/color"
	"github.com/cbatu/game-server/pkg/events"
	"github.com/cbatu/game-server/pkg/repository"
)

func TestGetIsIdempotentUnderConcurrentJoins(t *testing.T) {
	f := newFixture(t, Settings{}, nil)

	const n = 16
	results := make([]*Session, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.store.Get(context.Background(), "game-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, f.store.Count())
}

func TestDistinctGamesAreIndependent(t *testing.T) {
	f := newFixture(t, Settings{}, nil)

	a := f.startGame(t, "game-a")

	b, err := f.store.Get(context.Background(), "game-b")
	require.NoError(t, err)
	b.Post(JoinCmd{ConnID: uuid.New(), UserID: "other-w", Username: "wendy"})
	b.Post(JoinCmd{ConnID: uuid.New(), UserID: "other-b", Username: "bill"})

	a.Post(ResignCmd{ConnID: f.whiteConn, UserID: "user-w", Color: color.White})

	assert.Equal(t, PhaseEnded, a.Snapshot().Phase)
	assert.Equal(t, PhasePlaying, b.Snapshot().Phase)
	assert.Equal(t, 2, f.store.Count())
}

func TestLookupDoesNotCreate(t *testing.T) {
	f := newFixture(t, Settings{}, nil)

	_, ok := f.store.Lookup("nope")
	assert.False(t, ok)
	assert.Zero(t, f.store.Count())

	s, err := f.store.Get(context.Background(), "game-1")
	require.NoError(t, err)

	got, ok := f.store.Lookup("game-1")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestFinishedSessionReapedAfterRetention(t *testing.T) {
	f := newFixture(t, Settings{RetentionWindow: 150 * time.Millisecond}, nil)
	s := f.startGame(t, "game-1")

	s.Post(ResignCmd{ConnID: f.whiteConn, UserID: "user-w", Color: color.White})
	require.Equal(t, PhaseEnded, s.Snapshot().Phase)

	// The session serves late reads during retention, then disappears.
	assert.Equal(t, 1, f.store.Count())
	assert.Eventually(t, func() bool {
		return f.store.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	var closed int
	f.rec.mu.Lock()
	for _, e := range f.rec.events {
		if e.Type == events.EventSessionClosed && e.GameID == "game-1" {
			closed++
		}
	}
	f.rec.mu.Unlock()
	assert.Equal(t, 1, closed)

	// A reaped session refuses new commands.
	assert.False(t, s.Post(JoinCmd{ConnID: uuid.New(), UserID: "user-w"}))
}

func TestRehydratedFinishedGameReapedWithoutNewActivity(t *testing.T) {
	end := time.Now().Add(-time.Hour)
	f := newFixture(t, Settings{RetentionWindow: 50 * time.Millisecond}, &repository.GameRecord{
		GameID:        "game-1",
		Status:        repository.StatusFinished,
		WhitePlayerID: "user-w",
		BlackPlayerID: "user-b",
		WinnerID:      "user-w",
		Result:        ReasonResignation,
		EndTime:       &end,
	})

	s, err := f.store.Get(context.Background(), "game-1")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, PhaseEnded, snap.Phase)
	assert.Equal(t, ReasonResignation, snap.EndReason)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, color.White, *snap.Winner)

	assert.Eventually(t, func() bool {
		return f.store.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesSessionsAndRefusesGets(t *testing.T) {
	f := newFixture(t, Settings{}, nil)
	s := f.startGame(t, "game-1")

	f.store.Shutdown()

	assert.False(t, s.Post(JoinCmd{ConnID: uuid.New(), UserID: "user-w"}))
	_, err := f.store.Get(context.Background(), "game-2")
	assert.Error(t, err)
	assert.Zero(t, f.store.Count())
}

func TestLoadErrorPropagates(t *testing.T) {
	logger := zap.NewNop()
	pub := events.NewPublisher()
	st := NewStore(failingStore{}, nil, pub, Settings{}, logger)
	t.Cleanup(st.Shutdown)

	_, err := st.Get(context.Background(), "game-1")
	assert.Error(t, err)
	assert.Zero(t, st.Count())
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (*repository.GameRecord, error) {
	return nil, assert.AnError
}

func (failingStore) Save(context.Context, *repository.GameRecord) error {
	return assert.AnError
}
