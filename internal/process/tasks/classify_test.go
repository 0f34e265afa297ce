package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"content rejected", fmt.Errorf("%w: too short", apperrors.ErrContentRejected), false},
		{"invalid input", apperrors.ErrInvalidInput, false},
		{"quota", apperrors.Join(apperrors.ErrAllModelsFailed, apperrors.ErrQuotaExhausted), true},
		{"validation only", apperrors.Join(apperrors.ErrAllModelsFailed, apperrors.ErrValidation), false},
		{"connection refused", errDial, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unexpected eof", fmt.Errorf("body: %w", io.ErrUnexpectedEOF), true},
		{"deadline", context.DeadlineExceeded, true},
		{"server status", fmt.Errorf("%w: HTTP 503", errServerStatus), true},
		{"page status", fmt.Errorf("%w: HTTP 404", errPageStatus), false},
		{"url error", &url.Error{Op: "Get", URL: "https://x", Err: errors.New("dns")}, true},
		{"redirects", &url.Error{Op: "Get", URL: "https://x", Err: errTooManyRedirects}, false},
		{"transient message", errors.New("http2: server closed idle connection"), true},
		{"plain error", errors.New("bad json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, classCanceled, classify(ctx, errors.New("bad json")))
	assert.Equal(t, classRetryable, classify(context.Background(), errDial))
	assert.Equal(t, classTerminal, classify(context.Background(), errors.New("bad json")))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "content: content rejected: short", failureReason(fmt.Errorf("%w: short", apperrors.ErrContentRejected)))
	assert.Equal(t, "retries exhausted: network", failureReason(fmt.Errorf("%w: %w", errRetriesExhausted, errDial)))
	assert.Equal(t, "analysis: all models failed", failureReason(apperrors.ErrAllModelsFailed))
}
