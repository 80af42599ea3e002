package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aicx/aicx/internal/protocol"
)

// kindFromStatus maps an HTTP status code to a provider error kind.
func kindFromStatus(status int) protocol.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return protocol.ErrAuth
	case status == http.StatusRequestTimeout:
		return protocol.ErrTimeout
	case status == http.StatusTooManyRequests:
		return protocol.ErrRateLimit
	case status >= 500:
		return protocol.ErrServiceUnavailable
	default:
		return protocol.ErrAPI
	}
}

// transportError converts a transport-level failure into a tagged
// ProviderError: deadline and net timeouts are retryable timeouts,
// everything else is a network failure.
func transportError(providerName string, err error) *protocol.ProviderError {
	kind := protocol.ErrNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = protocol.ErrTimeout
	}
	return &protocol.ProviderError{
		Message:  err.Error(),
		Provider: providerName,
		Kind:     kind,
		Err:      err,
	}
}
