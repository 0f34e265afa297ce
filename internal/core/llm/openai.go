package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// OpenAIGenerator generates with OpenAI chat models.
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator creates an OpenAI generator. An empty baseURL uses the public API.
func NewOpenAIGenerator(apiKey, baseURL string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg)}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   int(req.MaxOutputTokens),
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion %s: %w", req.Model, classifyOpenAIError(err))
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("openai %s: %w", req.Model, apperrors.ErrEmptyResponse)
	}

	return TextResponse(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) error {
	code := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	switch code {
	case http.StatusTooManyRequests:
		return errors.Join(apperrors.ErrQuotaExhausted, err)
	case http.StatusNotFound:
		return errors.Join(apperrors.ErrModelNotFound, err)
	}

	return err
}

var _ Generator = (*OpenAIGenerator)(nil)
