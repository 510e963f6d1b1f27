package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow returns a controllable time source pinned to a start instant.
func fakeNow() (func() time.Time, func(time.Duration)) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func TestRemainingCountsDownOnlyWhileRunning(t *testing.T) {
	c := New(60*time.Second, 0)
	now, advance := fakeNow()
	c.now = now

	advance(10 * time.Second)
	assert.Equal(t, 60*time.Second, c.Remaining(), "stopped clock must not drain")

	c.Start()
	advance(15 * time.Second)
	assert.Equal(t, 45*time.Second, c.Remaining())

	c.Stop()
	advance(30 * time.Second)
	assert.Equal(t, 45*time.Second, c.Remaining())
}

func TestStopFoldsElapsedOnce(t *testing.T) {
	c := New(10*time.Second, 0)
	now, advance := fakeNow()
	c.now = now

	c.Start()
	advance(4 * time.Second)
	c.Stop()
	c.Stop() // second stop is a no-op
	require.Equal(t, 6*time.Second, c.Remaining())
}

func TestIncrementRewardsOwnClock(t *testing.T) {
	c := New(60*time.Second, 5*time.Second)
	now, advance := fakeNow()
	c.now = now

	c.Start()
	advance(2 * time.Second)
	c.Stop()
	c.ApplyIncrement()

	assert.Equal(t, 63*time.Second, c.Remaining())
}

func TestExpiry(t *testing.T) {
	c := New(time.Second, 0)
	now, advance := fakeNow()
	c.now = now

	assert.False(t, c.Expired(), "stopped clock never expires")

	c.Start()
	assert.False(t, c.Expired())

	advance(1500 * time.Millisecond)
	assert.True(t, c.Expired())
	assert.Equal(t, time.Duration(0), c.Remaining(), "remaining clamps at zero")
}

func TestSetRemainingKeepsCountdownRunning(t *testing.T) {
	c := New(60*time.Second, 0)
	now, advance := fakeNow()
	c.now = now

	c.Start()
	advance(10 * time.Second)
	c.SetRemaining(48 * time.Second)

	advance(8 * time.Second)
	assert.Equal(t, 40*time.Second, c.Remaining())
}

func TestUnlimitedNeverExpires(t *testing.T) {
	c := NewUnlimited()
	now, advance := fakeNow()
	c.now = now

	c.Start()
	advance(1000 * time.Hour)

	assert.True(t, c.Running())
	assert.False(t, c.Expired())
	assert.Equal(t, time.Duration(0), c.Remaining())

	c.ApplyIncrement()
	c.SetRemaining(5 * time.Second)
	assert.False(t, c.Expired(), "reconciliation must not arm an unlimited clock")
}
