package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}

	start := time.Now()
	require.NoError(t, clock.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	require.NoError(t, clock.Sleep(context.Background(), 0))
}

func TestRealClock_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	require.NoError(t, clock.Sleep(context.Background(), 3*time.Second))
	require.NoError(t, clock.Sleep(context.Background(), 30*time.Second))
	clock.Advance(time.Minute)

	assert.Equal(t, start.Add(93*time.Second), clock.Now())
	assert.Equal(t, []time.Duration{3 * time.Second, 30 * time.Second}, clock.Sleeps())
	assert.Equal(t, 33*time.Second, clock.Slept())
}

func TestManualClock_OnSleepCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := NewManualClock(time.Unix(0, 0))
	clock.OnSleep = func(time.Duration) { cancel() }

	err := clock.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	// already-cancelled contexts are not recorded
	err = clock.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, clock.Sleeps(), 1)
}
