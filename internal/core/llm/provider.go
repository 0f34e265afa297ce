// Package llm routes generation requests across a static, tiered set of models.
// It holds the model catalogue, the liveness-probing selector, the per-tier
// sliding window throttle and the generator backends.
package llm

import (
	"context"
	"strings"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// Request is a single generation call.
type Request struct {
	Model           string
	Prompt          string
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// Response is the reply of a generation backend. A backend either answers with
// direct text or with a list of structured parts; Text resolves both into one string.
type Response struct {
	direct    string
	hasDirect bool
	parts     []string
}

// TextResponse builds a reply that carries direct text.
func TextResponse(text string) Response {
	return Response{direct: text, hasDirect: true}
}

// PartsResponse builds a reply made of structured text parts.
func PartsResponse(parts ...string) Response {
	return Response{parts: parts}
}

// Text returns the reply as a single string.
func (r Response) Text() string {
	if r.hasDirect && r.direct != "" {
		return r.direct
	}

	return strings.Join(r.parts, "")
}

// Empty reports whether the reply carries no text at all.
func (r Response) Empty() bool {
	return strings.TrimSpace(r.Text()) == ""
}

// Generator is a generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// FailureReason maps a generation error to the reason recorded against the model.
func FailureReason(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrQuotaExhausted):
		return ReasonQuota
	case apperrors.Is(err, apperrors.ErrModelNotFound):
		return ReasonNotFound
	case apperrors.Is(err, apperrors.ErrEmptyResponse):
		return ReasonEmpty
	case apperrors.Is(err, apperrors.ErrValidation):
		return ReasonValidation
	default:
		return ReasonUnexpected
	}
}
