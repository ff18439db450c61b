// Package channel provides the single-producer/single-consumer conduit that
// carries raw values from a push-style producer to a pulling consumer.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSealed is returned by Send and Seal once the conduit has been sealed.
	ErrSealed = errors.New("channel: conduit sealed")
	// ErrPullTimeout is returned by Pull when no value arrives in time.
	ErrPullTimeout = errors.New("channel: pull timed out")
)

// Conduit is an ordered buffered channel with an exactly-once sentinel.
// One goroutine sends, one goroutine pulls. After Seal no value is accepted
// and the consumer observes the channel closing after the final values.
type Conduit[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	sealed bool
}

// NewConduit creates a conduit with the given buffer size (0 = unbuffered).
func NewConduit[T any](size int) *Conduit[T] {
	if size < 0 {
		size = 0
	}
	return &Conduit[T]{ch: make(chan T, size)}
}

// Send enqueues v, blocking while the buffer is full.
func (c *Conduit[T]) Send(ctx context.Context, v T) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sealed {
		return ErrSealed
	}

	select {
	case c.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seal enqueues the final values and closes the conduit. Only the first call
// has any effect; later calls return ErrSealed. The conduit is closed even if
// ctx ends before the final values were delivered.
func (c *Conduit[T]) Seal(ctx context.Context, final ...T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	c.sealed = true
	defer close(c.ch)

	for _, v := range final {
		select {
		case c.ch <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Chan returns the receive side for Pull and select statements.
func (c *Conduit[T]) Chan() <-chan T {
	return c.ch
}

// Pull receives from ch, bounded by timeout (0 waits forever) and ctx.
// A value that is already available when the timer fires is still returned:
// the timeout only wins when it strictly precedes the next value.
func Pull[T any](ctx context.Context, ch <-chan T, timeout time.Duration) (v T, ok bool, err error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case v, ok = <-ch:
		return v, ok, nil
	case <-expired:
		select {
		case v, ok = <-ch:
			return v, ok, nil
		default:
		}
		var zero T
		return zero, false, ErrPullTimeout
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}
