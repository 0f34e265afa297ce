// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Acquire mode: bounded acquisition cycles over feeds and the news API
//   - Worker mode: queue consumer running the per-document controller
//   - All mode: both of the above in one process
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/news-quiz/internal/cache"
	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/core/llm"
	"github.com/lueurxax/news-quiz/internal/platform/config"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
	"github.com/lueurxax/news-quiz/internal/platform/worker"
	"github.com/lueurxax/news-quiz/internal/process/acquisition"
	"github.com/lueurxax/news-quiz/internal/process/analysis"
	"github.com/lueurxax/news-quiz/internal/process/tasks"
	db "github.com/lueurxax/news-quiz/internal/storage"
)

const (
	logFieldBackend   = "backend"
	logFieldGenerator = "generator"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	backend  cache.Backend
	cache    *cache.Cache
	sources  config.Sources
	logger   *zerolog.Logger
	closers  []func() error
}

// New creates a new App. It connects the cache backend and loads the source
// lists; the database is owned by the caller.
func New(ctx context.Context, cfg *config.Config, database *db.DB, logger *zerolog.Logger) (*App, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	a := &App{
		cfg:      cfg,
		database: database,
		sources:  sources,
		logger:   logger,
	}

	if cfg.Cache.RedisURL != "" {
		r, err := cache.ConnectRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		a.backend = r
		a.closers = append(a.closers, r.Close)

		logger.Info().Str(logFieldBackend, "redis").Msg("cache backend ready")
	} else {
		a.backend = cache.NewMemory()

		logger.Warn().Str(logFieldBackend, "memory").Msg("REDIS_URL not set, cache state is process-local")
	}

	a.cache = cache.New(a.backend, cache.Config{
		UsageTTL:        cfg.Cache.UsageTTL,
		TopicTTL:        cfg.Cache.TopicTTL,
		SourceStatusTTL: cfg.Cache.SourceStatusTTL,
		DuplicateTTL:    cfg.Cache.DuplicateTTL,
		DuplicateCap:    cfg.Cache.DuplicateCap,
		TrendingTTL:     cfg.Cache.TrendingTTL,
	})

	return a, nil
}

// Close releases the resources opened by New.
func (a *App) Close() error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(map[string]observability.Pinger{
		"database": a.database,
		"cache":    a.cache,
	}, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

func (a *App) queue() *cache.Queue {
	return cache.NewQueue(a.backend, a.cfg.Cache.AnalysisQueueName)
}

// RunAcquire runs acquisition cycles on the configured interval. With once set
// it runs a single cycle and returns.
func (a *App) RunAcquire(ctx context.Context, once bool) error {
	orch := a.newOrchestrator()

	if once {
		_, err := a.runCycle(ctx, orch)
		if errors.Is(err, apperrors.ErrLockNotAcquired) {
			return nil
		}

		return err
	}

	return worker.SingleTickerLoop(ctx, worker.SingleTickerConfig{
		Name:       "acquisition",
		Interval:   a.cfg.Acquisition.CycleInterval,
		RunOnStart: true,
		OnTick: func(ctx context.Context) {
			if _, err := a.runCycle(ctx, orch); err != nil && !errors.Is(err, apperrors.ErrLockNotAcquired) {
				a.logger.Error().Err(err).Msg("acquisition cycle failed")
			}
		},
		Logger: a.logger,
	})
}

func (a *App) runCycle(ctx context.Context, orch *acquisition.Orchestrator) (domain.AcquisitionLog, error) {
	entry, err := orch.RunCycle(ctx)
	if errors.Is(err, apperrors.ErrLockNotAcquired) {
		a.logger.Info().Msg("acquisition cycle already running elsewhere, skipping")
	}

	return entry, err
}

func (a *App) newOrchestrator() *acquisition.Orchestrator {
	acq := a.cfg.Acquisition

	var news acquisition.NewsSearcher

	if acq.NewsAPIKey != "" {
		news = acquisition.NewNewsClient(acquisition.NewsClientConfig{
			APIKey:         acq.NewsAPIKey,
			BaseURL:        acq.NewsAPIBaseURL,
			RequestsPerMin: acq.NewsAPIRPM,
			Timeout:        acq.NewsAPITimeout,
		})
	} else {
		a.logger.Warn().Msg("NEWS_API_KEY not set, only feeds are acquired")
	}

	seed := uint64(time.Now().UnixNano())
	rng := rand.New(rand.NewPCG(seed, seed>>1)) //nolint:gosec // source selection is not security sensitive

	return acquisition.New(
		acquisition.NewFeedReader(acq.FeedTimeout, acq.UserAgent),
		news,
		a.database,
		a.cache,
		a.queue(),
		a.sources,
		acquisition.ConfigFrom(acq, a.cfg.Cache.LockTTL),
		rng,
		a.logger,
	)
}

// RunWorker consumes the analysis queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	controller, err := a.newController(ctx)
	if err != nil {
		return err
	}

	return controller.Run(ctx)
}

// RunAll runs acquisition and the worker in one process.
func (a *App) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.RunAcquire(gctx, false) })
	g.Go(func() error { return a.RunWorker(gctx) })

	return g.Wait()
}

func (a *App) newController(ctx context.Context) (*tasks.Controller, error) {
	pipeline, err := a.newPipeline(ctx)
	if err != nil {
		return nil, err
	}

	t := a.cfg.Tasks

	return tasks.New(
		a.database,
		pipeline,
		tasks.NewFetcher(t.FetchRPS, t.FetchTimeout, a.cfg.Acquisition.UserAgent),
		a.queue(),
		tasks.ConfigFrom(t),
		a.logger,
	), nil
}

func (a *App) newPipeline(ctx context.Context) (*analysis.Pipeline, error) {
	generator, err := a.newGenerator(ctx)
	if err != nil {
		return nil, err
	}

	var (
		windows  llm.WindowStore
		failures llm.FailureStore
	)

	if a.cfg.Cache.SharedModelState {
		windows = cache.NewWindows(a.backend)
		failures = cache.NewFailures(a.backend, a.cfg.Cache.FailureTTL)
	} else {
		windows = llm.NewLocalWindows()
		failures = llm.NewLocalFailures()
	}

	catalogue := llm.DefaultCatalogue(a.cfg.LLM.OpenAIModel)
	throttle := llm.NewThrottle(windows, a.cfg.RateLimits.TierLimits, a.logger)

	selector := llm.NewSelector(catalogue, generator, throttle, failures, llm.SelectorConfig{
		FailureThreshold:  a.cfg.LLM.FailureThreshold,
		ProbeTimeout:      a.cfg.LLM.ProbeTimeout,
		HighEffortSources: a.cfg.LLM.HighEffortSources,
	}, a.logger)

	return analysis.New(selector, throttle, generator, catalogue, a.cache, analysis.Config{
		RequestTimeout: a.cfg.LLM.RequestTimeout,
		TopP:           a.cfg.LLM.TopP,
		TopK:           a.cfg.LLM.TopK,
	}, a.logger), nil
}

func (a *App) newGenerator(ctx context.Context) (llm.Generator, error) {
	if a.cfg.LLM.GoogleAPIKey == "" && a.cfg.LLM.OpenAIAPIKey == "" {
		a.logger.Warn().Str(logFieldGenerator, "mock").Msg("no LLM API keys configured, using mock generator")
		return llm.NewMockGenerator(), nil
	}

	var google, openai llm.Generator

	if a.cfg.LLM.GoogleAPIKey != "" {
		g, err := llm.NewGoogleGenerator(ctx, a.cfg.LLM.GoogleAPIKey, a.logger)
		if err != nil {
			return nil, fmt.Errorf("google generator: %w", err)
		}

		a.closers = append(a.closers, g.Close)
		google = g
	}

	if a.cfg.LLM.OpenAIAPIKey != "" {
		openai = llm.NewOpenAIGenerator(a.cfg.LLM.OpenAIAPIKey, "")
	}

	return llm.NewRouter(google, openai), nil
}
