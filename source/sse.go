package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/types"
)

// SSEClientConfig 回调客户端配置
type SSEClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// SSEClient 是基于 chat/completions 流式接口的回调客户端。
// 它自己读取 SSE 帧，并对每个非空 delta 同步调用 onToken。
type SSEClient struct {
	cfg    SSEClientConfig
	client *http.Client
	logger *zap.Logger
}

// NewSSEClient creates a push client. httpClient must not carry a whole-request
// timeout; streaming responses outlive it.
func NewSSEClient(cfg SSEClientConfig, httpClient *http.Client, logger *zap.Logger) *SSEClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SSEClient{cfg: cfg, client: httpClient, logger: logger.With(zap.String("component", "sse_client"))}
}

// Invoke implements PushClient.
func (c *SSEClient) Invoke(ctx context.Context, prompt string, onToken TokenHandler) error {
	model := c.cfg.Model
	if m, ok := types.LLMModel(ctx); ok {
		model = m
	}

	body, err := buildChatBody(model, prompt)
	if err != nil {
		return types.NewInvocationError("build request body").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return types.NewInvocationError("build upstream request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if runID, ok := types.RunID(ctx); ok {
		req.Header.Set("X-Run-ID", runID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewConnectionError(err).WithProvider("sse")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError(resp.StatusCode, readErrorMessage(resp.Body), "sse")
	}

	return c.readEvents(ctx, resp.Body, onToken)
}

// errStreamTruncated 上游在 [DONE] 之前关闭了连接
var errStreamTruncated = errors.New("stream closed before [DONE]")

func (c *SSEClient) readEvents(ctx context.Context, body io.Reader, onToken TokenHandler) error {
	reader := bufio.NewReader(body)
	for {
		line, readErr := reader.ReadString('\n')
		// 最后一帧可能没有换行，先处理已读到的内容
		if line != "" {
			done, err := handleEvent(line, onToken)
			if err != nil || done {
				return err
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if readErr == io.EOF {
			readErr = errStreamTruncated
		}
		return types.NewConnectionError(readErr).WithProvider("sse")
	}
}

// handleEvent 处理一行 SSE，done 表示收到了 [DONE]
func handleEvent(line string, onToken TokenHandler) (done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return true, nil
	}

	if !gjson.Valid(data) {
		return false, types.NewUpstreamError("malformed stream payload").WithProvider("sse")
	}
	if msg := gjson.Get(data, "error.message"); msg.Exists() {
		return false, types.NewUpstreamError(msg.String()).WithProvider("sse")
	}

	text := gjson.Get(data, "choices.0.delta.content").String()
	if text == "" {
		return false, nil
	}
	return false, onToken(text)
}

func buildChatBody(model, prompt string) ([]byte, error) {
	body := []byte(`{"stream":true}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "messages.0.role", "user"); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "messages.0.content", prompt)
}

// readErrorMessage extracts the upstream error message, falling back to the raw body.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() && msg.String() != "" {
		if typ := gjson.GetBytes(data, "error.type").String(); typ != "" {
			return fmt.Sprintf("%s (type: %s)", msg.String(), typ)
		}
		return msg.String()
	}
	return string(data)
}
