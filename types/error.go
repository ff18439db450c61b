package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a unified error code across tokenflow.
type ErrorCode string

// Stream error codes
const (
	// ErrInvalidRequest 调用参数非法，流尚未打开
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrUpstreamError 上游连接、鉴权、模型或响应格式错误
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
	// ErrTimeout 单次拉取或整体会话超时
	ErrTimeout ErrorCode = "TIMEOUT"
	// ErrEmptyStream 流正常结束但没有任何内容
	ErrEmptyStream ErrorCode = "EMPTY_STREAM"
	// ErrCanceled 消费方断开或进程收到终止信号
	ErrCanceled ErrorCode = "CANCELED"
	// ErrInternalError 生产者或管道内部 panic
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// HTTP surface error codes
const (
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrRateLimited  ErrorCode = "RATE_LIMITED"
)

// EmptyStreamMessage is the fixed message of an EmptyStreamError.
const EmptyStreamMessage = "no content received"

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// =============================================================================
// 常用错误构造
// =============================================================================

// NewUpstreamError 上游返回了错误（状态码、畸形负载等）
func NewUpstreamError(message string) *Error {
	return NewError(ErrUpstreamError, message).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)
}

// NewConnectionError 与上游的连接失败或中途被重置
func NewConnectionError(cause error) *Error {
	return NewUpstreamError("Connection error").WithCause(cause)
}

// NewTimeoutError 在 d 时间内没有收到下一个 token
func NewTimeoutError(d time.Duration) *Error {
	return NewError(ErrTimeout, fmt.Sprintf("no token received within %s", d)).
		WithHTTPStatus(http.StatusGatewayTimeout)
}

// NewSessionTimeoutError 整体会话超过最长时间
func NewSessionTimeoutError(d time.Duration) *Error {
	return NewError(ErrTimeout, fmt.Sprintf("stream exceeded %s", d)).
		WithHTTPStatus(http.StatusGatewayTimeout)
}

// NewEmptyStreamError 流结束时没有任何内容
func NewEmptyStreamError() *Error {
	return NewError(ErrEmptyStream, EmptyStreamMessage)
}

// NewInvocationError 调用参数非法
func NewInvocationError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewCanceledError 消费方取消
func NewCanceledError() *Error {
	return NewError(ErrCanceled, "stream canceled")
}

// =============================================================================
// 错误工具链
// =============================================================================

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// Describe renders err as the user-visible message carried by an Error token.
// The code prefix of Error() is left out: "Connection error: reset".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	e, ok := AsError(err)
	if !ok {
		return err.Error()
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}
