package source

import (
	"context"
	"fmt"

	"github.com/BaSui01/tokenflow/internal/channel"
	"github.com/BaSui01/tokenflow/types"
)

// Emit delivers one token fragment from a push-style producer. It blocks while
// the bridge buffer is full and fails once the session is canceled.
type Emit func(ctx context.Context, text string) error

// InvokeFunc runs a push-style producer to completion, calling emit for every
// fragment. A non-nil return value is delivered to the consumer as an error
// marker.
type InvokeFunc func(ctx context.Context, emit Emit) error

// Bridge turns a push-style producer into a pull-style Chunk channel.
//
// Two tasks are started on tasks: "invoke" runs the producer, "sentinel"
// waits for it and seals the conduit. Exactly one closing signal reaches the
// consumer: an error marker followed by close when invoke failed, a plain
// close otherwise. Failures from invoke are never lost, including panics and
// failures that happen before the first fragment.
func Bridge(tasks Spawner, invoke InvokeFunc, bufferSize int) (<-chan Chunk, error) {
	conduit := channel.NewConduit[Chunk](bufferSize)
	done := make(chan error, 1)

	emit := func(ctx context.Context, text string) error {
		return conduit.Send(ctx, Chunk{Text: text})
	}

	if err := tasks.Go("invoke", func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = types.NewError(types.ErrInternalError, fmt.Sprintf("producer panic: %v", r))
			}
			done <- err
		}()
		return invoke(ctx, emit)
	}); err != nil {
		_ = conduit.Seal(context.Background())
		return nil, err
	}

	if err := tasks.Go("sentinel", func(ctx context.Context) error {
		select {
		case err := <-done:
			if err != nil {
				return conduit.Seal(ctx, Chunk{Err: classifyUpstream(err, "bridge")})
			}
			return conduit.Seal(ctx)
		case <-ctx.Done():
			_ = conduit.Seal(ctx)
			return nil
		}
	}); err != nil {
		// invoke 已经在跑，由会话取消负责收尾
		_ = conduit.Seal(context.Background())
		return nil, err
	}

	return conduit.Chan(), nil
}
