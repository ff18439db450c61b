package source

import (
	"context"
	"fmt"

	"github.com/BaSui01/tokenflow/types"
)

// TokenHandler receives one fragment from a push client.
type TokenHandler func(text string) error

// PushClient 是回调式上游客户端：它在 Invoke 期间对每个新片段调用 onToken，
// 返回时即调用结束。
type PushClient interface {
	Invoke(ctx context.Context, prompt string, onToken TokenHandler) error
}

// CallbackSource adapts a PushClient through the queue bridge.
type CallbackSource struct {
	client     PushClient
	bufferSize int
}

// NewCallbackSource creates a bridged source. bufferSize bounds how far the
// producer may run ahead of the consumer.
func NewCallbackSource(client PushClient, bufferSize int) *CallbackSource {
	return &CallbackSource{client: client, bufferSize: bufferSize}
}

// Name implements Source.
func (s *CallbackSource) Name() string { return "bridged" }

// Stream implements Source.
func (s *CallbackSource) Stream(ctx context.Context, req Request, tasks Spawner) (<-chan Chunk, error) {
	if s.client == nil {
		return nil, types.NewUpstreamError("callback client not configured")
	}
	if tasks == nil {
		return nil, fmt.Errorf("callback source requires a task spawner")
	}

	invoke := func(taskCtx context.Context, emit Emit) error {
		return s.client.Invoke(taskCtx, req.Prompt, func(text string) error {
			return emit(taskCtx, text)
		})
	}
	return Bridge(tasks, invoke, s.bufferSize)
}
