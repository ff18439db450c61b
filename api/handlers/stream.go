package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/api"
	"github.com/BaSui01/tokenflow/internal/ctxkeys"
	"github.com/BaSui01/tokenflow/pipeline"
	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/types"
)

// =============================================================================
// 🌊 流式输出 Handler
// =============================================================================

// StreamHandler 把同一条管道输出写到 HTTP 分块响应或 WebSocket 连接。
// 无论来源是 direct、bridged 还是 graph，这里都只消费归一化后的 Token。
type StreamHandler struct {
	pipe           *pipeline.Pipeline
	prompts        source.PromptBuilder
	logger         *zap.Logger
	originPatterns []string
	frameTimeout   time.Duration
}

// StreamOption configures a StreamHandler.
type StreamOption func(*StreamHandler)

// WithOriginPatterns 设置 WebSocket 允许的跨域来源
func WithOriginPatterns(patterns []string) StreamOption {
	return func(h *StreamHandler) { h.originPatterns = patterns }
}

// WithFrameTimeout 设置单个 WebSocket 帧的写超时
func WithFrameTimeout(d time.Duration) StreamOption {
	return func(h *StreamHandler) { h.frameTimeout = d }
}

// NewStreamHandler 创建流式输出处理器
func NewStreamHandler(pipe *pipeline.Pipeline, prompts source.PromptBuilder, logger *zap.Logger, opts ...StreamOption) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StreamHandler{
		pipe:         pipe,
		prompts:      prompts,
		logger:       logger.With(zap.String("component", "stream_handler")),
		frameTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream 处理 GET /stream?topic=
//
// 响应头在第一个 Token 之前发出，内容原样写入并逐段 flush，
// 最后恰好写一行终止行："End of stream" 或 "Error: <message>"。
// 参数非法时流不会打开，返回 400 JSON。
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := h.open(r.Context(), r, req)
	defer h.closeSession(sess)

	wrote := false
	for {
		tok, ok := sess.Next()
		if !ok {
			return
		}

		if tok.Kind() == types.KindContent {
			if _, err := io.WriteString(w, tok.Text()); err != nil {
				h.logger.Debug("client went away",
					zap.String("session_id", sess.ID()),
					zap.Error(err),
				)
				return
			}
			wrote = true
			flusher.Flush()
			continue
		}

		line := types.TerminalLine(tok)
		if wrote {
			line = "\n\n" + line
		}
		_, _ = io.WriteString(w, line+"\n")
		flusher.Flush()
	}
}

// =============================================================================
// 🔌 WebSocket
// =============================================================================

func frameOf(tok types.Token) api.StreamFrame {
	return api.StreamFrame{
		Type: tok.Kind().String(),
		Text: tok.Text(),
		Code: string(tok.Code()),
	}
}

// HandleWebSocket 处理 GET /ws/stream?topic=
//
// 每个 Token 写一个 JSON 文本帧，终止帧之后以关闭码结束连接：
// EndOfStream 为 1000，Error 为 1011。对端关闭会取消会话。
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept 已经写出了错误响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// CloseRead 在对端关闭或发来消息时取消 ctx
	ctx := conn.CloseRead(r.Context())

	sess := h.open(ctx, r, req)
	defer h.closeSession(sess)

	for {
		tok, ok := sess.Next()
		if !ok {
			return
		}

		if err := h.writeFrame(ctx, conn, frameOf(tok)); err != nil {
			h.logger.Debug("websocket write failed",
				zap.String("session_id", sess.ID()),
				zap.Error(err),
			)
			return
		}

		switch tok.Kind() {
		case types.KindEndOfStream:
			_ = conn.Close(websocket.StatusNormalClosure, types.EndOfStreamMarker)
		case types.KindError:
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *StreamHandler) writeFrame(ctx context.Context, conn *websocket.Conn, frame api.StreamFrame) error {
	ctx, cancel := context.WithTimeout(ctx, h.frameTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

// =============================================================================
// 🔧 内部辅助
// =============================================================================

// buildRequest 解析 topic 并生成请求，失败时写出 400 响应
func (h *StreamHandler) buildRequest(w http.ResponseWriter, r *http.Request) (source.Request, bool) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = source.DefaultTopic
	}

	req, err := h.prompts.Build(topic)
	if err != nil {
		var apiErr *types.Error
		if !errors.As(err, &apiErr) {
			apiErr = types.NewInvocationError(err.Error())
		}
		WriteError(w, apiErr, h.logger)
		return source.Request{}, false
	}
	return req, true
}

// open 打开会话，请求 ID 同时作为会话关联 ID
func (h *StreamHandler) open(ctx context.Context, r *http.Request, req source.Request) *pipeline.Session {
	if id, ok := ctxkeys.RequestID(r.Context()); ok {
		ctx = types.WithSessionID(ctx, id)
	}

	sess := h.pipe.Open(ctx, req)

	fields := []zap.Field{
		zap.String("session_id", sess.ID()),
		zap.String("topic", req.Topic),
		zap.String("source", h.pipe.Label()),
		zap.String("path", r.URL.Path),
	}
	h.logger.Info("stream started", append(fields, ctxkeys.Fields(r.Context())...)...)
	return sess
}

func (h *StreamHandler) closeSession(sess *pipeline.Session) {
	if err := sess.Close(); err != nil {
		h.logger.Warn("stream session closed with leftover tasks",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
}
