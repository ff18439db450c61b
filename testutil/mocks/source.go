// MockSource 与 MockPushClient 的测试模拟实现。
//
// 支持固定片段、延迟、中途错误、挂起与 panic 注入场景。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/tokenflow/source"
)

// --- MockSource 结构 ---

// MockSource 是 source.Source 的模拟实现
type MockSource struct {
	mu sync.RWMutex

	name      string
	chunks    []source.Chunk
	tailErr   error
	openErr   error
	panicVal  any
	delay     time.Duration
	hang      bool
	noSpawner bool

	calls  []source.Request
	active atomic.Int32
	sent   atomic.Int32
}

// NewMockSource 创建新的 MockSource
func NewMockSource() *MockSource {
	return &MockSource{name: "mock"}
}

// WithName 设置名称
func (m *MockSource) WithName(name string) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithChunks 设置文本片段
func (m *MockSource) WithChunks(texts ...string) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.chunks = append(m.chunks, source.Chunk{Text: t})
	}
	return m
}

// WithRawChunks 追加原始片段，可同时携带文本与错误标记
func (m *MockSource) WithRawChunks(chunks ...source.Chunk) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return m
}

// WithError 在全部片段之后投递错误标记
func (m *MockSource) WithError(err error) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tailErr = err
	return m
}

// WithOpenError 让 Stream 直接失败
func (m *MockSource) WithOpenError(err error) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
	return m
}

// WithPanic 让 Stream 在打开时 panic
func (m *MockSource) WithPanic(v any) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicVal = v
	return m
}

// WithDelay 设置每个片段之前的延迟
func (m *MockSource) WithDelay(d time.Duration) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithHang 在片段发送完后挂起直到取消
func (m *MockSource) WithHang() *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang = true
	return m
}

// WithoutSpawner 用裸 goroutine 代替会话任务，用于验证管道对不受管生产者的处理
func (m *MockSource) WithoutSpawner() *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noSpawner = true
	return m
}

// --- source.Source 实现 ---

// Name implements source.Source.
func (m *MockSource) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Stream implements source.Source.
func (m *MockSource) Stream(ctx context.Context, req source.Request, tasks source.Spawner) (<-chan source.Chunk, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	chunks := append([]source.Chunk(nil), m.chunks...)
	tailErr, openErr, panicVal := m.tailErr, m.openErr, m.panicVal
	delay, hang, noSpawner := m.delay, m.hang, m.noSpawner
	m.mu.Unlock()

	if panicVal != nil {
		panic(panicVal)
	}
	if openErr != nil {
		return nil, openErr
	}

	out := make(chan source.Chunk)
	produce := func(taskCtx context.Context) error {
		m.active.Add(1)
		defer m.active.Add(-1)
		defer close(out)

		send := func(c source.Chunk) bool {
			select {
			case out <- c:
				m.sent.Add(1)
				return true
			case <-taskCtx.Done():
				return false
			}
		}

		for _, c := range chunks {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-taskCtx.Done():
					timer.Stop()
					return nil
				}
			}
			if !send(c) {
				return nil
			}
		}
		if tailErr != nil {
			send(source.Chunk{Err: tailErr})
			return nil
		}
		if hang {
			<-taskCtx.Done()
		}
		return nil
	}

	if noSpawner || tasks == nil {
		go func() { _ = produce(ctx) }()
		return out, nil
	}
	if err := tasks.Go("mock", produce); err != nil {
		return nil, err
	}
	return out, nil
}

// --- 调用记录 ---

// Calls 返回所有调用记录
func (m *MockSource) Calls() []source.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]source.Request(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockSource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// Active 返回仍在运行的生产任务数
func (m *MockSource) Active() int { return int(m.active.Load()) }

// Sent 返回已被消费方接收的片段数
func (m *MockSource) Sent() int { return int(m.sent.Load()) }

// =============================================================================
// MockPushClient
// =============================================================================

// MockPushClient 是 source.PushClient 的模拟实现
type MockPushClient struct {
	mu sync.RWMutex

	tokens []string
	err    error
	delay  time.Duration
	hang   bool

	prompts []string
	active  atomic.Int32
}

// NewMockPushClient 创建新的 MockPushClient
func NewMockPushClient() *MockPushClient {
	return &MockPushClient{}
}

// WithTokens 设置回调片段
func (m *MockPushClient) WithTokens(tokens ...string) *MockPushClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, tokens...)
	return m
}

// WithError 设置调用结束时返回的错误
func (m *MockPushClient) WithError(err error) *MockPushClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置每次回调之前的延迟
func (m *MockPushClient) WithDelay(d time.Duration) *MockPushClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithHang 在回调结束后挂起直到取消
func (m *MockPushClient) WithHang() *MockPushClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang = true
	return m
}

// Invoke implements source.PushClient.
func (m *MockPushClient) Invoke(ctx context.Context, prompt string, onToken source.TokenHandler) error {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	tokens := append([]string(nil), m.tokens...)
	err, delay, hang := m.err, m.delay, m.hang
	m.mu.Unlock()

	m.active.Add(1)
	defer m.active.Add(-1)

	for _, tok := range tokens {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if cbErr := onToken(tok); cbErr != nil {
			return cbErr
		}
	}
	if err != nil {
		return err
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Prompts 返回收到的提示词
func (m *MockPushClient) Prompts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.prompts...)
}

// Active 返回仍在进行的调用数
func (m *MockPushClient) Active() int { return int(m.active.Load()) }
