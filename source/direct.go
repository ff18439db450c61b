package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/types"
)

// DirectConfig 直连上游配置
type DirectConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// DirectSource 通过官方 SDK 直接消费上游的流式补全。
// 一次 Stream 对应一次上游请求，不重试。
type DirectSource struct {
	cfg    DirectConfig
	client openai.Client
	logger *zap.Logger
}

// NewDirectSource creates a direct source. httpClient is shared across
// sessions so that connections are pooled.
func NewDirectSource(cfg DirectConfig, httpClient *http.Client, logger *zap.Logger) *DirectSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &DirectSource{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger.With(zap.String("component", "direct_source")),
	}
}

// Name implements Source.
func (s *DirectSource) Name() string { return "direct" }

// Stream implements Source. The reader runs as the "direct" task of tasks so
// that the session owns it.
func (s *DirectSource) Stream(ctx context.Context, req Request, tasks Spawner) (<-chan Chunk, error) {
	if s.cfg.APIKey == "" {
		return nil, types.NewUpstreamError("upstream api key not configured").WithProvider("direct")
	}

	model := s.cfg.Model
	if m, ok := types.LLMModel(ctx); ok {
		model = m
	}

	stream := s.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Model: openai.ChatModel(model),
	})
	// SDK 在首次 Next 前就会暴露建连失败
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, s.mapError(ctx, err)
	}

	out := make(chan Chunk)
	err := tasks.Go("direct", func(taskCtx context.Context) error {
		defer close(out)
		defer stream.Close()

		send := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-taskCtx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if !send(Chunk{Text: chunk.Choices[0].Delta.Content}) {
				return nil
			}
		}
		if err := stream.Err(); err != nil {
			if taskCtx.Err() != nil {
				return nil
			}
			send(Chunk{Err: s.mapError(taskCtx, err)})
		}
		return nil
	})
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return out, nil
}

func (s *DirectSource) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		s.logger.Debug("upstream returned error status", zap.Int("status", apiErr.StatusCode))
		return mapStatusError(apiErr.StatusCode, apiErr.Message, "direct")
	}
	return classifyUpstream(err, "direct")
}
