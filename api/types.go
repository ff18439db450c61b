package api

// =============================================================================
// WebSocket 帧类型
// =============================================================================

// Frame types carried in StreamFrame.Type.
const (
	FrameContent     = "content"
	FrameError       = "error"
	FrameEndOfStream = "end_of_stream"
)

// StreamFrame 是 /ws/stream 上的一帧，每个 Token 对应一帧。
// @Description WebSocket 流式帧
type StreamFrame struct {
	// 帧类型：content、error 或 end_of_stream
	Type string `json:"type" example:"content"`
	// 内容文本或错误消息
	Text string `json:"text,omitempty" example:"Why do dogs bark?"`
	// 错误码（仅 error 帧）
	Code string `json:"code,omitempty" example:"UPSTREAM_ERROR"`
}
