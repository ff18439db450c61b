package source

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/BaSui01/tokenflow/supervisor"
	"github.com/BaSui01/tokenflow/types"
)

// Chunk 是生产者给出的原始部分结果：纯文本片段，或显式错误标记。
// Text 与 Err 同时存在时以 Err 为准。
type Chunk struct {
	Text string
	Err  error
}

// Spawner starts named background tasks owned by the current stream session.
// *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go(name string, task supervisor.Task) error
}

// Source 是所有 Token 生产者的统一能力：给定请求，返回一个惰性、有限的原始值序列。
//
// 返回的 channel 在序列耗尽时关闭。打开失败返回 UpstreamError；中途失败以
// Err 非空的 Chunk 投递，随后关闭 channel。ctx 取消后生产者必须在一个
// 在途片段的延迟内停止并释放底层连接。
type Source interface {
	Name() string
	Stream(ctx context.Context, req Request, tasks Spawner) (<-chan Chunk, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context, req Request, tasks Spawner) (<-chan Chunk, error)

// Name implements Source.
func (f Func) Name() string { return "func" }

// Stream implements Source.
func (f Func) Stream(ctx context.Context, req Request, tasks Spawner) (<-chan Chunk, error) {
	return f(ctx, req, tasks)
}

// =============================================================================
// 请求构造
// =============================================================================

// DefaultPromptTemplate is used when PromptBuilder.Template is empty.
const DefaultPromptTemplate = "Tell me a joke about %s"

// DefaultTopic is used by the surfaces when no topic is given.
const DefaultTopic = "dogs"

// Request 一次生成请求的参数
type Request struct {
	Topic  string
	Prompt string
}

// PromptBuilder 校验话题并生成提示词
type PromptBuilder struct {
	Template       string
	MaxTopicLength int
}

// Build validates topic and renders the prompt. Failures are InvocationErrors
// and happen before any network call.
func (b PromptBuilder) Build(topic string) (Request, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Request{}, types.NewInvocationError("topic is required")
	}
	if b.MaxTopicLength > 0 && len([]rune(topic)) > b.MaxTopicLength {
		return Request{}, types.NewInvocationError(
			fmt.Sprintf("topic exceeds %d characters", b.MaxTopicLength))
	}
	if strings.IndexFunc(topic, unicode.IsControl) >= 0 {
		return Request{}, types.NewInvocationError("topic contains control characters")
	}

	tmpl := b.Template
	if tmpl == "" {
		tmpl = DefaultPromptTemplate
	}
	return Request{Topic: topic, Prompt: fmt.Sprintf(tmpl, topic)}, nil
}
