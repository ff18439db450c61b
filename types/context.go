package types

import "context"

// ctxKey 是带类型的 context 键，零值视为未设置
type ctxKey[T comparable] struct{ name string }

func (k ctxKey[T]) String() string { return "types." + k.name }

func (k ctxKey[T]) with(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func (k ctxKey[T]) from(ctx context.Context) (T, bool) {
	var zero T
	v, ok := ctx.Value(k).(T)
	return v, ok && v != zero
}

var (
	sessionIDKey = ctxKey[string]{"session_id"}
	runIDKey     = ctxKey[string]{"run_id"}
	llmModelKey  = ctxKey[string]{"llm_model"}
)

// WithSessionID 设置流式会话关联 ID，管道据此命名会话
func WithSessionID(ctx context.Context, id string) context.Context { return sessionIDKey.with(ctx, id) }

// SessionID 读取会话关联 ID
func SessionID(ctx context.Context) (string, bool) { return sessionIDKey.from(ctx) }

// WithRunID 设置图执行 ID
func WithRunID(ctx context.Context, id string) context.Context { return runIDKey.with(ctx, id) }

// RunID 读取图执行 ID
func RunID(ctx context.Context) (string, bool) { return runIDKey.from(ctx) }

// WithLLMModel 为单次请求覆盖上游模型
func WithLLMModel(ctx context.Context, model string) context.Context {
	return llmModelKey.with(ctx, model)
}

// LLMModel 读取上游模型覆盖值
func LLMModel(ctx context.Context) (string, bool) { return llmModelKey.from(ctx) }
