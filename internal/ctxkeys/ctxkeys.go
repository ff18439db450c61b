// Package ctxkeys 定义 HTTP 层在 context 中传递的请求级元数据。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// key 是带类型的 context 键，零值视为未设置
type key[T comparable] struct{ name string }

func (k key[T]) String() string { return "ctxkeys." + k.name }

func (k key[T]) with(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func (k key[T]) get(ctx context.Context) (T, bool) {
	var zero T
	v, ok := ctx.Value(k).(T)
	return v, ok && v != zero
}

var (
	requestIDKey = key[string]{"request_id"}
	subjectKey   = key[string]{"subject"}
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return requestIDKey.with(ctx, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) { return requestIDKey.get(ctx) }

// WithSubject 设置认证主体（JWT sub 或脱敏后的 API Key）
func WithSubject(ctx context.Context, subject string) context.Context {
	return subjectKey.with(ctx, subject)
}

// Subject 获取认证主体
func Subject(ctx context.Context) (string, bool) { return subjectKey.get(ctx) }

// Fields 把已设置的请求元数据转成日志字段
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String(requestIDKey.name, id))
	}
	if sub, ok := Subject(ctx); ok {
		fields = append(fields, zap.String(subjectKey.name, sub))
	}
	return fields
}
