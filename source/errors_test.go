package source

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/tokenflow/types"
)

func TestClassifyUpstream(t *testing.T) {
	assert.NoError(t, classifyUpstream(nil, "x"))

	coded := types.NewEmptyStreamError()
	assert.Same(t, coded, classifyUpstream(coded, "x"))

	assert.ErrorIs(t, classifyUpstream(context.Canceled, "x"), context.Canceled)

	opErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
	got := classifyUpstream(opErr, "x")
	assert.True(t, types.IsErrorCode(got, types.ErrUpstreamError))
	assert.Contains(t, types.Describe(got), "Connection error")

	got = classifyUpstream(io.ErrUnexpectedEOF, "x")
	assert.Contains(t, types.Describe(got), "Connection error")

	got = classifyUpstream(errors.New("bad frame"), "x")
	assert.Equal(t, "bad frame", types.Describe(got))
}

func TestMapStatusError(t *testing.T) {
	err := mapStatusError(http.StatusTooManyRequests, " slow down ", "direct")
	assert.True(t, err.Retryable)
	assert.Equal(t, "upstream rate limited (status 429): slow down", err.Message)

	err = mapStatusError(http.StatusNotFound, "", "direct")
	assert.False(t, err.Retryable)
	assert.Equal(t, "upstream model or endpoint not found (status 404)", err.Message)

	err = mapStatusError(http.StatusServiceUnavailable, "", "direct")
	assert.True(t, err.Retryable)
	assert.Equal(t, "direct", err.Provider)
}
