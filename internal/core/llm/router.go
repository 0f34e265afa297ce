package llm

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// Router dispatches requests to the backend that serves the model family.
// gpt-* models go to OpenAI, everything else to Gemini.
type Router struct {
	google Generator
	openai Generator
}

// NewRouter creates a router. Either backend may be nil.
func NewRouter(google, openai Generator) *Router {
	return &Router{google: google, openai: openai}
}

// Generate implements Generator.
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	target := r.google
	if strings.HasPrefix(strings.ToLower(req.Model), modelPrefixGPT) {
		target = r.openai
	}

	if target == nil {
		return Response{}, fmt.Errorf("%w: no backend configured for %s", apperrors.ErrModelNotFound, req.Model)
	}

	return target.Generate(ctx, req)
}

var _ Generator = (*Router)(nil)
