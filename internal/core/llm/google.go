package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// sanitizeUTF8 removes or replaces invalid UTF-8 sequences from a string.
// Google's protobuf API requires valid UTF-8, and downloaded pages may contain invalid bytes.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var builder strings.Builder
	builder.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			builder.WriteRune(utf8.RuneError)

			i++
		} else {
			builder.WriteRune(r)

			i += size
		}
	}

	return builder.String()
}

// GoogleGenerator generates with Gemini models.
type GoogleGenerator struct {
	client *genai.Client
	logger *zerolog.Logger
}

// NewGoogleGenerator creates a Gemini generator.
func NewGoogleGenerator(ctx context.Context, apiKey string, logger *zerolog.Logger) (*GoogleGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &GoogleGenerator{client: client, logger: logger}, nil
}

// Close closes the Google client.
func (g *GoogleGenerator) Close() error {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			return fmt.Errorf("closing google genai client: %w", err)
		}
	}

	return nil
}

// Generate implements Generator.
func (g *GoogleGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	model := g.client.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)

	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}

	if req.TopK > 0 {
		model.SetTopK(req.TopK)
	}

	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(sanitizeUTF8(req.Prompt)))
	if err != nil {
		return Response{}, fmt.Errorf("google genai completion %s: %w", req.Model, classifyGoogleError(err))
	}

	out := googleResponse(resp)
	if out.Empty() {
		return Response{}, fmt.Errorf("google genai %s: %w", req.Model, apperrors.ErrEmptyResponse)
	}

	return out, nil
}

// googleResponse collects the text parts of every candidate.
func googleResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{}
	}

	var parts []string

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
	}

	return PartsResponse(parts...)
}

// classifyGoogleError wraps quota and not-found failures with the matching sentinel.
func classifyGoogleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return errors.Join(apperrors.ErrQuotaExhausted, err)
		case http.StatusNotFound:
			return errors.Join(apperrors.ErrModelNotFound, err)
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return errors.Join(apperrors.ErrQuotaExhausted, err)
		case codes.NotFound:
			return errors.Join(apperrors.ErrModelNotFound, err)
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return errors.Join(apperrors.ErrQuotaExhausted, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return errors.Join(apperrors.ErrModelNotFound, err)
	}

	return err
}

var _ Generator = (*GoogleGenerator)(nil)
