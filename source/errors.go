package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/BaSui01/tokenflow/types"
)

// classifyUpstream maps a producer failure onto the error taxonomy.
// Errors that already carry a code pass through unchanged.
func classifyUpstream(err error, provider string) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return types.NewConnectionError(err).WithProvider(provider)
	}
	return types.NewUpstreamError(err.Error()).WithProvider(provider)
}

// mapStatusError converts a non-2xx upstream response into an UpstreamError.
func mapStatusError(status int, msg, provider string) *types.Error {
	msg = strings.TrimSpace(msg)
	var desc string
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		desc = "upstream rejected credentials"
	case http.StatusNotFound:
		desc = "upstream model or endpoint not found"
	case http.StatusTooManyRequests:
		desc = "upstream rate limited"
	default:
		if status >= 500 {
			desc = "upstream unavailable"
		} else {
			desc = "upstream refused request"
		}
	}
	desc = fmt.Sprintf("%s (status %d)", desc, status)
	if msg != "" {
		desc += ": " + msg
	}
	return types.NewUpstreamError(desc).
		WithProvider(provider).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}
