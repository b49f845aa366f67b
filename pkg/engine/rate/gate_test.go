package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateZeroIntervalNeverBlocks(t *testing.T) {
	g := NewGate(0, nil)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestGateFirstCallPassesImmediately(t *testing.T) {
	g := NewGate(time.Second, nil)
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestGateEnforcesSpacing(t *testing.T) {
	g := NewGate(40*time.Millisecond, nil)
	require.NoError(t, g.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestGateNoWaitAfterIntervalElapsed(t *testing.T) {
	clock := time.Now()
	clk := func() time.Time { return clock }
	g := NewGate(50*time.Millisecond, clk)

	require.NoError(t, g.Wait(context.Background()))
	clock = clock.Add(60 * time.Millisecond)

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestGateCancellation(t *testing.T) {
	g := NewGate(2*time.Second, nil)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := g.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "cancellation must interrupt the wait promptly")
}

func TestGateCancelledContextShortCircuits(t *testing.T) {
	g := NewGate(time.Hour, nil)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, g.Wait(ctx), context.Canceled)
}
