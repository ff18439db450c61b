package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConduit_OrderAndSeal(t *testing.T) {
	c := NewConduit[string](4)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "Knock"))
	require.NoError(t, c.Send(ctx, " knock"))
	require.NoError(t, c.Seal(ctx, "sentinel"))

	var got []string
	for {
		v, ok, err := Pull(ctx, c.Chan(), time.Second)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"Knock", " knock", "sentinel"}, got)
}

func TestConduit_SealExactlyOnce(t *testing.T) {
	c := NewConduit[int](2)
	ctx := context.Background()

	require.NoError(t, c.Seal(ctx, 1))
	assert.ErrorIs(t, c.Seal(ctx, 2), ErrSealed)
	assert.ErrorIs(t, c.Send(ctx, 3), ErrSealed)

	v, ok, err := Pull(ctx, c.Chan(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = Pull(ctx, c.Chan(), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConduit_PullTimeout(t *testing.T) {
	c := NewConduit[int](0)

	start := time.Now()
	_, ok, err := Pull(context.Background(), c.Chan(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPullTimeout)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConduit_PullCanceled(t *testing.T) {
	c := NewConduit[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Pull(ctx, c.Chan(), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConduit_SendUnblocksOnCancel(t *testing.T) {
	c := NewConduit[int](0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(ctx, 1) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Send did not observe cancellation")
	}
}

func TestConduit_SealClosesEvenWhenFinalUndelivered(t *testing.T) {
	c := NewConduit[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Seal(ctx, 42), context.Canceled)

	_, ok := <-c.Chan()
	assert.False(t, ok, "conduit must be closed")
}

func TestPull_ReadyValueBeatsExpiredTimer(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7

	v, ok, err := Pull(context.Background(), ch, time.Nanosecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestConduit_ConcurrentProducerConsumer(t *testing.T) {
	c := NewConduit[int](1)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := c.Send(ctx, i); err != nil {
				t.Errorf("send %d: %v", i, err)
				return
			}
		}
		_ = c.Seal(ctx)
	}()

	next := 0
	for {
		v, ok, err := Pull(ctx, c.Chan(), time.Second)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, next, v)
		next++
	}
	wg.Wait()
	assert.Equal(t, n, next)
}
