package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[UPSTREAM_ERROR] upstream failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_HelpersSeeThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("stage: %w", NewTimeoutError(30*time.Second))

	if !IsErrorCode(wrapped, ErrTimeout) {
		t.Fatalf("expected TIMEOUT through fmt wrapping")
	}
	if e, ok := AsError(wrapped); !ok || e.HTTPStatus != http.StatusGatewayTimeout {
		t.Fatalf("AsError mismatch: %v %v", e, ok)
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "boom"},
		{"connection", NewConnectionError(errors.New("reset")), "Connection error: reset"},
		{"empty", NewEmptyStreamError(), "no content received"},
		{"timeout", NewTimeoutError(time.Second), "no token received within 1s"},
		{"wrapped", fmt.Errorf("x: %w", NewInvocationError("topic is required")), "topic is required"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("%s: Describe = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestConstructors_Codes(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]*Error{
		ErrUpstreamError:  NewUpstreamError("bad status"),
		ErrTimeout:        NewSessionTimeoutError(time.Minute),
		ErrEmptyStream:    NewEmptyStreamError(),
		ErrInvalidRequest: NewInvocationError("bad"),
		ErrCanceled:       NewCanceledError(),
	}
	for code, err := range cases {
		if err.Code != code {
			t.Errorf("expected %s, got %s", code, err.Code)
		}
	}
	if NewInvocationError("bad").HTTPStatus != http.StatusBadRequest {
		t.Fatalf("invocation errors map to 400")
	}
}
