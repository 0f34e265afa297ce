// Package analysis turns a document into a validated quiz and tag payload. It
// selects a model, walks a short fallback chain and validates every reply.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/core/llm"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
)

const (
	tokensPerQuestion = 160
	tokensOverhead    = 256
	defaultMaxTokens  = 4096
	defaultTemp       = 0.5
)

// Log key strings
const (
	logKeyModel     = "model"
	logKeyLanguage  = "language"
	logKeyQuestions = "questions"
	logKeyAttempt   = "attempt"
)

// DefaultAlternates are the known-good models appended to every fallback chain.
var DefaultAlternates = []string{llm.ModelGeminiFlash, llm.ModelGeminiFlashLite}

// ModelSelector picks the primary model and keeps failure counters.
type ModelSelector interface {
	Select(ctx context.Context, t llm.Traits) llm.ModelConfig
	RecordFailure(ctx context.Context, model, reason string)
	RecordSuccess(ctx context.Context, model string)
}

// Throttler reserves a request slot for a model.
type Throttler interface {
	Throttle(ctx context.Context, model string) error
}

// TrendingRecorder stores the tags of analysed documents.
type TrendingRecorder interface {
	RecordTrendingTags(ctx context.Context, language string, tags []string) error
}

// Config tunes generation requests.
type Config struct {
	Alternates     []string
	RequestTimeout time.Duration
	TopP           float32
	TopK           int32
}

// Input is a document to analyse.
type Input struct {
	Text     string
	Language string
	// Source is the publisher host; some publishers prefer the premium tier.
	Source   string
	Entities []string
}

// Pipeline analyses documents.
type Pipeline struct {
	selector  ModelSelector
	throttle  Throttler
	generator llm.Generator
	catalogue *llm.Catalogue
	trending  TrendingRecorder
	cfg       Config
	logger    *zerolog.Logger
}

// New creates a pipeline. trending may be nil.
func New(selector ModelSelector, throttle Throttler, generator llm.Generator, catalogue *llm.Catalogue, trending TrendingRecorder, cfg Config, logger *zerolog.Logger) *Pipeline {
	if cfg.Alternates == nil {
		cfg.Alternates = DefaultAlternates
	}

	return &Pipeline{
		selector:  selector,
		throttle:  throttle,
		generator: generator,
		catalogue: catalogue,
		trending:  trending,
		cfg:       cfg,
		logger:    logger,
	}
}

// FallbackChain returns the primary model followed by the alternates, without duplicates.
func FallbackChain(primary string, alternates []string) []string {
	chain := make([]string, 0, len(alternates)+1)
	seen := make(map[string]bool, len(alternates)+1)

	for _, m := range append([]string{primary}, alternates...) {
		if m == "" || seen[m] {
			continue
		}

		seen[m] = true
		chain = append(chain, m)
	}

	return chain
}

// Analyze produces the quiz payload for a document. Each model of the fallback
// chain is tried at most once; when all fail the error joins ErrAllModelsFailed
// with every per-model failure.
func (p *Pipeline) Analyze(ctx context.Context, in Input) (domain.AnalysisResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, errBlankDocument)
	}

	stats := ComputeStats(in.Text)
	count := QuestionCount(stats)

	entities := in.Entities
	if len(entities) == 0 {
		entities = EntityCandidates(in.Text)
	}

	prompt, err := BuildPrompt(in.Language, count, entities, in.Text)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	primary := p.selector.Select(ctx, llm.Traits{
		ReadingLevel: stats.ReadingEase(),
		WordCount:    stats.Words,
		Language:     in.Language,
		Source:       in.Source,
	})

	chain := FallbackChain(primary.Name, p.cfg.Alternates)
	failures := make([]error, 0, len(chain))

	for i, model := range chain {
		if err := ctx.Err(); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("analysis interrupted: %w", err)
		}

		result, err := p.attempt(ctx, model, prompt, count)
		if err == nil {
			p.selector.RecordSuccess(ctx, model)
			observability.LLMRequests.WithLabelValues(model, observability.OutcomeSuccess).Inc()
			p.recordTrending(ctx, in.Language, result.Tags)

			result.Model = model

			return result, nil
		}

		if ctx.Err() != nil {
			return domain.AnalysisResult{}, fmt.Errorf("analysis interrupted: %w", ctx.Err())
		}

		reason := llm.FailureReason(err)
		p.selector.RecordFailure(ctx, model, reason)
		observability.LLMRequests.WithLabelValues(model, outcomeLabel(reason)).Inc()

		if i < len(chain)-1 {
			observability.LLMFallbacks.WithLabelValues(model).Inc()
		}

		p.logger.Warn().
			Err(err).
			Str(logKeyModel, model).
			Str(logKeyLanguage, in.Language).
			Int(logKeyQuestions, count).
			Int(logKeyAttempt, i+1).
			Msg("model attempt failed")

		failures = append(failures, fmt.Errorf("%s: %w", model, err))
	}

	return domain.AnalysisResult{}, apperrors.Join(append([]error{apperrors.ErrAllModelsFailed}, failures...)...)
}

func (p *Pipeline) attempt(ctx context.Context, model, prompt string, count int) (domain.AnalysisResult, error) {
	if err := p.throttle.Throttle(ctx, model); err != nil {
		return domain.AnalysisResult{}, err
	}

	req := p.request(model, prompt, count)

	reqCtx := ctx

	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc

		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.generator.Generate(reqCtx, req)

	observability.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if resp.Empty() {
		return domain.AnalysisResult{}, apperrors.ErrEmptyResponse
	}

	return ParseReply(resp.Text())
}

func (p *Pipeline) request(model, prompt string, count int) llm.Request {
	maxTokens := int32(defaultMaxTokens)
	temperature := float32(defaultTemp)

	if p.catalogue != nil {
		if cfg, ok := p.catalogue.Lookup(model); ok {
			maxTokens = cfg.MaxOutputTokens
			temperature = cfg.Temperature
		}
	}

	needed := int32(count*tokensPerQuestion + tokensOverhead)
	if needed < maxTokens {
		maxTokens = needed
	}

	return llm.Request{
		Model:           model,
		Prompt:          prompt,
		Temperature:     temperature,
		TopP:            p.cfg.TopP,
		TopK:            p.cfg.TopK,
		MaxOutputTokens: maxTokens,
	}
}

func (p *Pipeline) recordTrending(ctx context.Context, language string, tags []string) {
	if p.trending == nil {
		return
	}

	if err := p.trending.RecordTrendingTags(ctx, language, tags); err != nil {
		p.logger.Warn().Err(err).Str(logKeyLanguage, language).Msg("failed to record trending tags")
	}
}

func outcomeLabel(reason string) string {
	switch reason {
	case llm.ReasonQuota:
		return observability.OutcomeQuota
	case llm.ReasonValidation:
		return observability.OutcomeValidation
	default:
		return observability.OutcomeFailure
	}
}
