package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/supervisor"
	"github.com/BaSui01/tokenflow/testutil"
	"github.com/BaSui01/tokenflow/testutil/fixtures"
	"github.com/BaSui01/tokenflow/testutil/mocks"
	"github.com/BaSui01/tokenflow/types"
)

func newSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	s := supervisor.New(context.Background(), supervisor.Config{GracePeriod: time.Second, MaxTasks: 4}, zap.NewNop())
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestBridge_DeliversFragmentsInOrder(t *testing.T) {
	sup := newSupervisor(t)
	client := mocks.NewMockPushClient().WithTokens(fixtures.JokeChunks()...)

	ch, err := source.NewCallbackSource(client, 2).Stream(sup.Context(), source.Request{Prompt: "p"}, sup)
	require.NoError(t, err)

	chunks := testutil.CollectChunks(t, ch, 2*time.Second)
	require.Len(t, chunks, 4)
	for i, want := range fixtures.JokeChunks() {
		assert.Equal(t, want, chunks[i].Text)
		assert.NoError(t, chunks[i].Err)
	}
	assert.Equal(t, []string{"p"}, client.Prompts())

	report := sup.Shutdown()
	assert.Empty(t, report.Abandoned)
}

func TestBridge_ImmediateFailureIsDelivered(t *testing.T) {
	sup := newSupervisor(t)
	invoke := func(ctx context.Context, emit source.Emit) error {
		return types.NewUpstreamError("invalid api key")
	}

	start := time.Now()
	ch, err := source.Bridge(sup, invoke, 4)
	require.NoError(t, err)

	chunks := testutil.CollectChunks(t, ch, time.Second)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, chunks, 1)
	assert.True(t, types.IsErrorCode(chunks[0].Err, types.ErrUpstreamError))
	assert.Equal(t, "invalid api key", types.Describe(chunks[0].Err))
}

func TestBridge_FailureAfterFragments(t *testing.T) {
	sup := newSupervisor(t)
	client := mocks.NewMockPushClient().
		WithTokens(fixtures.KnockChunks()...).
		WithError(fixtures.ResetError())

	ch, err := source.NewCallbackSource(client, 8).Stream(sup.Context(), source.Request{}, sup)
	require.NoError(t, err)

	chunks := testutil.CollectChunks(t, ch, 2*time.Second)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Knock", chunks[0].Text)
	assert.Equal(t, " knock", chunks[1].Text)
	assert.Equal(t, "Connection error: reset", types.Describe(chunks[2].Err))
}

func TestBridge_PlainErrorBecomesUpstreamError(t *testing.T) {
	sup := newSupervisor(t)
	ch, err := source.Bridge(sup, func(ctx context.Context, emit source.Emit) error {
		return errors.New("boom")
	}, 1)
	require.NoError(t, err)

	chunks := testutil.CollectChunks(t, ch, time.Second)
	require.Len(t, chunks, 1)
	assert.True(t, types.IsErrorCode(chunks[0].Err, types.ErrUpstreamError))
	assert.Equal(t, "boom", types.Describe(chunks[0].Err))
}

func TestBridge_PanicInProducerIsDelivered(t *testing.T) {
	sup := newSupervisor(t)
	ch, err := source.Bridge(sup, func(ctx context.Context, emit source.Emit) error {
		_ = emit(ctx, "partial")
		panic("kaboom")
	}, 4)
	require.NoError(t, err)

	chunks := testutil.CollectChunks(t, ch, time.Second)
	require.Len(t, chunks, 2)
	assert.Equal(t, "partial", chunks[0].Text)
	assert.True(t, types.IsErrorCode(chunks[1].Err, types.ErrInternalError))
	assert.Contains(t, types.Describe(chunks[1].Err), "kaboom")
}

func TestBridge_CancelStopsBothTasks(t *testing.T) {
	sup := newSupervisor(t)
	client := mocks.NewMockPushClient().WithTokens("a", "b").WithHang()

	ch, err := source.NewCallbackSource(client, 1).Stream(sup.Context(), source.Request{}, sup)
	require.NoError(t, err)

	first, ok := testutil.WaitForChannel(ch, time.Second)
	require.True(t, ok)
	assert.Equal(t, "a", first.Text)

	report := sup.Shutdown()
	assert.Empty(t, report.Abandoned)
	assert.Zero(t, client.Active())

	// 已封口：剩余值读完后通道关闭
	for range ch {
	}
}

func TestBridge_BackpressureBoundsBuffer(t *testing.T) {
	sup := newSupervisor(t)
	emitted := make(chan int, 16)
	ch, err := source.Bridge(sup, func(ctx context.Context, emit source.Emit) error {
		for i := 0; i < 10; i++ {
			if err := emit(ctx, "x"); err != nil {
				return err
			}
			emitted <- i
		}
		return nil
	}, 2)
	require.NoError(t, err)

	// 消费方未拉取时，生产者最多领先缓冲区大小
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(emitted), 2)

	chunks := testutil.CollectChunks(t, ch, time.Second)
	assert.Len(t, chunks, 10)
}

func TestBridge_SpawnFailure(t *testing.T) {
	sup := supervisor.New(context.Background(), supervisor.Config{GracePeriod: time.Second, MaxTasks: 1}, zap.NewNop())
	defer sup.Shutdown()

	block := make(chan struct{})
	defer close(block)
	_, err := source.Bridge(sup, func(ctx context.Context, emit source.Emit) error {
		<-block
		return nil
	}, 1)
	assert.ErrorIs(t, err, supervisor.ErrTooManyTasks)
}
