// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
//	tokens := testutil.DrainSession(t, session, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// ⏱️ 异步断言
// =============================================================================

// AssertEventuallyTrue 轮询直到条件满足，超时则失败
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// WaitFor 以 5ms 间隔轮询条件，超时前满足返回 true
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🎭 流式辅助
// =============================================================================

// CollectChunks 收集通道中的全部片段，超时则失败
func CollectChunks(t *testing.T, ch <-chan source.Chunk, timeout time.Duration) []source.Chunk {
	t.Helper()
	var chunks []source.Chunk
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-timer.C:
			t.Fatalf("channel not closed within %s (got %d chunks)", timeout, len(chunks))
			return chunks
		}
	}
}

// SendChunksToChannel 发送片段到已关闭的缓冲通道
func SendChunksToChannel(chunks ...source.Chunk) <-chan source.Chunk {
	ch := make(chan source.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// TokenStream 是可逐个拉取 Token 的流，pipeline.Session 满足该接口
type TokenStream interface {
	Next() (types.Token, bool)
}

// DrainSession 拉取全部 Token 直到终止，超时则失败
func DrainSession(t *testing.T, s TokenStream, timeout time.Duration) []types.Token {
	t.Helper()
	done := make(chan []types.Token, 1)
	go func() {
		var tokens []types.Token
		for {
			tok, ok := s.Next()
			if !ok {
				break
			}
			tokens = append(tokens, tok)
		}
		done <- tokens
	}()

	tokens, ok := WaitForChannel(done, timeout)
	if !ok {
		t.Fatalf("stream did not terminate within %s", timeout)
	}
	return tokens
}

// ContentOf 拼接所有 Content Token 的文本
func ContentOf(tokens []types.Token) string {
	var text string
	for _, tok := range tokens {
		if tok.Kind() == types.KindContent {
			text += tok.Text()
		}
	}
	return text
}
