package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redraft/internal/clock"
)

func fakeClock() *clock.Fake {
	return clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestTryAcquire_WindowQuota(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 3, Window: time.Minute}, clk)

	for i := 0; i < 3; i++ {
		wait, ok := b.TryAcquire(0)
		assert.True(t, ok, "grant %d should succeed", i)
		assert.Zero(t, wait)
	}

	wait, ok := b.TryAcquire(0)
	assert.False(t, ok, "fourth request must be denied inside the window")
	assert.Equal(t, time.Minute, wait, "wait should be until the oldest grant expires")
}

func TestTryAcquire_RollingWindow(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 2, Window: time.Minute}, clk)

	_, ok := b.TryAcquire(0)
	require.True(t, ok)

	clk.Advance(30 * time.Second)
	_, ok = b.TryAcquire(0)
	require.True(t, ok)

	wait, ok := b.TryAcquire(0)
	require.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	// The oldest grant falls out of the window; capacity frees up.
	clk.Advance(31 * time.Second)
	_, ok = b.TryAcquire(0)
	assert.True(t, ok)
	assert.Equal(t, 2, b.InFlight())
}

func TestTryAcquire_TokenQuota(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 10, Window: time.Minute, TokensPerWindow: 100}, clk)

	_, ok := b.TryAcquire(80)
	require.True(t, ok)

	wait, ok := b.TryAcquire(30)
	assert.False(t, ok, "token volume over quota must be denied")
	assert.Equal(t, time.Minute, wait)

	b.Release(40) // actual cost lower than estimated
	_, ok = b.TryAcquire(30)
	assert.True(t, ok)
}

func TestAcquire_BlocksUntilWindowFrees(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 1, Window: time.Minute}, clk)

	require.NoError(t, b.Acquire(context.Background(), 0))

	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(context.Background(), 0)
	}()

	clk.BlockUntilWaiters(1)
	select {
	case <-done:
		t.Fatal("Acquire returned before the window freed")
	default:
	}

	clk.Advance(time.Minute)
	require.NoError(t, <-done)
}

func TestAcquire_WaitTooLong(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 1, Window: time.Hour, MaxWait: time.Minute}, clk)

	require.NoError(t, b.Acquire(context.Background(), 0))

	err := b.Acquire(context.Background(), 0)
	assert.ErrorIs(t, err, ErrWaitTooLong)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 1, Window: time.Minute}, clk)
	require.NoError(t, b.Acquire(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(ctx, 0)
	}()

	clk.BlockUntilWaiters(1)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAcquire_MinSpacing(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 100, Window: time.Minute, MinSpacing: 10 * time.Second}, clk)

	// First grant passes the spacing gate without waiting.
	require.NoError(t, b.Acquire(context.Background(), 0))

	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(context.Background(), 0)
	}()

	clk.BlockUntilWaiters(1)
	select {
	case <-done:
		t.Fatal("second grant ignored the spacing interval")
	default:
	}

	// The spacing wait suspends on the injected clock, so advancing it is
	// enough to release the second grant.
	clk.Advance(10 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, 2, b.InFlight())
}

func TestAcquire_MinSpacingCancellable(t *testing.T) {
	clk := fakeClock()
	b := New(Options{RequestsPerWindow: 100, Window: time.Minute, MinSpacing: 10 * time.Second}, clk)

	require.NoError(t, b.Acquire(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(ctx, 0)
	}()

	clk.BlockUntilWaiters(1)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRegistry_SharedPerProvider(t *testing.T) {
	r := NewRegistry(Options{RequestsPerWindow: 5, Window: time.Minute}, fakeClock())

	a := r.For("gemini")
	b := r.For("gemini")
	c := r.For("openai")

	assert.Same(t, a, b, "same provider id must share one budget")
	assert.NotSame(t, a, c)
}
