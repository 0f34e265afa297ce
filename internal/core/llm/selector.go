package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
)

// errRateWait marks a liveness check that ran out of time waiting for a rate
// window slot. It says nothing about the model and is not counted as a failure.
var errRateWait = errors.New("rate window wait exceeded liveness timeout")

// Traits are the document characteristics that drive model selection.
type Traits struct {
	ReadingLevel float64
	WordCount    int
	Language     string
	Source       string
}

// SelectorConfig tunes model selection.
type SelectorConfig struct {
	FailureThreshold  int
	ProbeTimeout      time.Duration
	HighEffortSources []string
}

// Selector picks a live model for a document, degrading by tier and then by
// liveness. Each model is probed at most once per call.
type Selector struct {
	catalogue *Catalogue
	generator Generator
	throttle  *Throttle
	failures  FailureStore
	cfg       SelectorConfig
	logger    *zerolog.Logger
}

// NewSelector creates a selector. throttle may be nil, in which case probes are
// not accounted in the rate windows.
func NewSelector(catalogue *Catalogue, generator Generator, throttle *Throttle, failures FailureStore, cfg SelectorConfig, logger *zerolog.Logger) *Selector {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureLimit
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeDeadline
	}

	return &Selector{
		catalogue: catalogue,
		generator: generator,
		throttle:  throttle,
		failures:  failures,
		cfg:       cfg,
		logger:    logger,
	}
}

// Catalogue returns the model registry the selector walks.
func (s *Selector) Catalogue() *Catalogue {
	return s.catalogue
}

// TierPreference returns the tier order for a document.
func (s *Selector) TierPreference(t Traits) []Tier {
	if t.WordCount > longDocumentWords ||
		(t.WordCount > 0 && t.ReadingLevel < veryLowReadingLevel) ||
		s.isHighEffort(t.Source) {
		return []Tier{TierPremium, TierStandard, TierFallback}
	}

	return []Tier{TierStandard, TierPremium, TierFallback}
}

func (s *Selector) isHighEffort(source string) bool {
	source = strings.ToLower(source)
	if source == "" {
		return false
	}

	for _, hs := range s.cfg.HighEffortSources {
		if hs != "" && strings.Contains(source, strings.ToLower(hs)) {
			return true
		}
	}

	return false
}

// candidate is one step of the selection walk.
type candidate struct {
	tier    Tier
	model   ModelConfig
	relaxed bool
}

// candidates returns the ordered walk for a document without probing. The
// preferred pass covers the leading two tiers of the preference; the relaxed
// pass covers every remaining tier. A model appears at most once.
func (s *Selector) candidates(t Traits) []candidate {
	prefs := s.TierPreference(t)
	preferred := prefs[:len(prefs)-1]

	models := s.catalogue.Models()
	walk := make([]candidate, 0, len(models))
	seen := make(map[string]bool, len(models))

	add := func(tier Tier, relaxed bool) {
		for _, m := range models {
			if m.Tier != tier || seen[m.Name] || !m.SupportsLanguage(t.Language) {
				continue
			}

			seen[m.Name] = true
			walk = append(walk, candidate{tier: tier, model: m, relaxed: relaxed})
		}
	}

	for _, tier := range preferred {
		add(tier, false)
	}

	for _, tier := range prefs[len(preferred):] {
		add(tier, true)
	}

	// Tiers missing from the preference list still get a relaxed chance.
	for _, m := range models {
		if !slices.Contains(prefs, m.Tier) {
			add(m.Tier, true)
		}
	}

	return walk
}

// Select returns the first live candidate, or the last resort model when none
// is live. It never fails and never loops.
func (s *Selector) Select(ctx context.Context, t Traits) ModelConfig {
	for _, c := range s.candidates(t) {
		if ctx.Err() != nil {
			break
		}

		failures, err := s.failures.Failures(ctx, c.model.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str(logKeyModel, c.model.Name).Msg("failed to read model failure count")
		}

		if failures >= s.cfg.FailureThreshold {
			s.logger.Debug().
				Str(logKeyModel, c.model.Name).
				Int(logKeyCount, failures).
				Msg("skipping model over failure threshold")

			continue
		}

		if err := s.probe(ctx, c.model); err != nil {
			if ctx.Err() != nil {
				break
			}

			if errors.Is(err, errRateWait) {
				s.logger.Debug().Err(err).Str(logKeyModel, c.model.Name).Msg("model rate window busy, trying next candidate")
				continue
			}

			observability.LLMProbeFailures.WithLabelValues(c.model.Name).Inc()
			s.RecordFailure(ctx, c.model.Name, FailureReason(err))

			s.logger.Warn().
				Err(err).
				Str(logKeyModel, c.model.Name).
				Str(logKeyTier, string(c.tier)).
				Bool("relaxed", c.relaxed).
				Msg("model probe failed")

			continue
		}

		return c.model
	}

	observability.LLMLastResort.Inc()

	s.logger.Warn().Str(logKeyModel, s.catalogue.LastResort().Name).Msg("no live candidate, using last resort model")

	return s.catalogue.LastResort()
}

func (s *Selector) probe(ctx context.Context, m ModelConfig) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if s.throttle != nil {
		if err := s.throttle.Throttle(probeCtx, m.Name); err != nil {
			if probeCtx.Err() != nil {
				return fmt.Errorf("%w: %w", errRateWait, err)
			}

			return err
		}
	}

	resp, err := s.generator.Generate(probeCtx, Request{
		Model:           m.Name,
		Prompt:          probePrompt,
		Temperature:     0,
		MaxOutputTokens: probeMaxTokens,
	})
	if err != nil {
		return err
	}

	if resp.Empty() {
		return apperrors.ErrEmptyResponse
	}

	return nil
}

// RecordFailure increments the failure counter of a model.
func (s *Selector) RecordFailure(ctx context.Context, model, reason string) {
	n, err := s.failures.RecordFailure(ctx, model, reason)
	if err != nil {
		s.logger.Warn().Err(err).Str(logKeyModel, model).Msg("failed to record model failure")
		return
	}

	s.logger.Debug().
		Str(logKeyModel, model).
		Str(logKeyReason, reason).
		Int(logKeyCount, n).
		Msg("recorded model failure")
}

// RecordSuccess resets the failure counter of a model.
func (s *Selector) RecordSuccess(ctx context.Context, model string) {
	if err := s.failures.Reset(ctx, model); err != nil {
		s.logger.Warn().Err(err).Str(logKeyModel, model).Msg("failed to reset model failures")
	}
}
