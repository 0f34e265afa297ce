package tasks

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// failureClass is how the controller treats a processing error.
type failureClass int

const (
	classTerminal failureClass = iota
	classRetryable
	classCanceled
)

var transientMessages = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

func classify(ctx context.Context, err error) failureClass {
	if ctx.Err() != nil {
		return classCanceled
	}

	if IsRetryable(err) {
		return classRetryable
	}

	return classTerminal
}

// IsRetryable reports whether err is a network-class or quota failure that a
// later attempt may get past. Content and validation failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, apperrors.ErrContentRejected) || errors.Is(err, apperrors.ErrInvalidInput) {
		return false
	}

	if errors.Is(err, apperrors.ErrQuotaExhausted) {
		return true
	}

	return IsNetworkError(err)
}

// IsNetworkError reports whether err comes from the transport: connection
// errors, protocol errors, timeouts and 5xx answers.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, errTooManyRedirects) {
		return false
	}

	if errors.Is(err, errServerStatus) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}
