// Package tasks drives the per-document state machine: download, quality gate
// and analysis, with bounded retries for transient failures. The terminal
// status of a document is written exactly once per invocation.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/platform/config"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
	"github.com/lueurxax/news-quiz/internal/platform/worker"
	"github.com/lueurxax/news-quiz/internal/process/analysis"
)

// Log key strings
const (
	logKeyArticleID = "article_id"
	logKeyAttempt   = "attempt"
	logKeyStatus    = "status"
	logKeySource    = "source"
)

var errRetriesExhausted = errors.New("retries exhausted")

// Store is the article persistence used by the controller.
type Store interface {
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	UpdateText(ctx context.Context, id int64, title, text string) error
	MarkComplete(ctx context.Context, id int64, result domain.AnalysisResult, quality float64) error
	MarkFailed(ctx context.Context, id int64, reason string, quality float64) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit uint64) ([]int64, error)
}

// Analyzer produces the quiz payload for a document.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error)
}

// Downloader fetches the readable content of a page.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (Page, error)
}

// Queue carries article IDs to the workers.
type Queue interface {
	Enqueue(ctx context.Context, ids ...int64) error
	Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error)
}

// Config tunes the controller.
type Config struct {
	MaxAttempts      int
	RetryCooldown    time.Duration
	MinContentChars  int
	PaywallKeywords  []string
	MaxContentChars  int
	Concurrency      int
	QueuePollTimeout time.Duration
	SweepInterval    time.Duration
	StaleAfter       time.Duration
	SweepLimit       uint64
}

// ConfigFrom maps the environment configuration onto a controller Config.
func ConfigFrom(cfg config.TaskConfig) Config {
	return Config{
		MaxAttempts:      cfg.MaxAttempts,
		RetryCooldown:    cfg.RetryCooldown,
		MinContentChars:  cfg.MinContentChars,
		PaywallKeywords:  cfg.PaywallKeywords,
		MaxContentChars:  cfg.MaxContentChars,
		Concurrency:      cfg.Concurrency,
		QueuePollTimeout: cfg.QueuePollTimeout,
		SweepInterval:    cfg.SweepInterval,
		StaleAfter:       cfg.StaleAfter,
		SweepLimit:       cfg.SweepLimit,
	}
}

// Controller processes documents.
type Controller struct {
	store    Store
	analyzer Analyzer
	fetcher  Downloader
	queue    Queue
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *zerolog.Logger
}

// New creates a controller. fetcher may be nil, which disables downloads.
func New(store Store, analyzer Analyzer, fetcher Downloader, queue Queue, cfg Config, logger *zerolog.Logger) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Controller{
		store:    store,
		analyzer: analyzer,
		fetcher:  fetcher,
		queue:    queue,
		cfg:      cfg,
		sleep:    worker.Wait,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the time source and the cooldown sleeper.
func (c *Controller) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	c.now = now
	c.sleep = sleep
}

// outcome is what the deferred status write persists.
type outcome struct {
	status  domain.ProcessingStatus
	result  domain.AnalysisResult
	quality float64
	reason  string
	err     error
}

// Process runs one document to a terminal status. Documents that are not
// pending are left untouched. When ctx is canceled mid-flight the document
// stays pending so the sweep redelivers it.
func (c *Controller) Process(ctx context.Context, id int64) (status domain.ProcessingStatus, err error) {
	article, err := c.store.GetArticle(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load article: %w", err)
	}

	if article.Status != domain.StatusPending {
		c.logger.Debug().Int64(logKeyArticleID, id).Str(logKeyStatus, string(article.Status)).Msg("article already processed")
		return article.Status, nil
	}

	out := &outcome{status: domain.StatusPending}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Int64(logKeyArticleID, id).Msg("article processing panicked")
			out.status = domain.StatusFailed
			out.reason = "unexpected: panic"
			out.err = fmt.Errorf("article %d: panic: %v", id, r)
		}

		c.finish(ctx, id, out)

		status, err = out.status, out.err
	}()

	c.drive(ctx, &article, out)

	return out.status, out.err
}

func (c *Controller) drive(ctx context.Context, article *domain.Article, out *outcome) {
	for attempt := 1; ; attempt++ {
		result, err := c.run(ctx, article, out)
		if err == nil {
			out.status = domain.StatusComplete
			out.result = result

			return
		}

		switch classify(ctx, err) {
		case classCanceled:
			out.err = fmt.Errorf("article %d interrupted: %w: %w", article.ID, ctx.Err(), err)
			return
		case classRetryable:
			if attempt >= c.cfg.MaxAttempts {
				c.fail(article, out, fmt.Errorf("%w after %d attempts: %w", errRetriesExhausted, attempt, err))
				return
			}

			observability.DocumentRetries.Inc()
			c.logger.Warn().Err(err).Int64(logKeyArticleID, article.ID).Int(logKeyAttempt, attempt).
				Dur("cooldown", c.cfg.RetryCooldown).Msg("transient failure, retrying")

			if err := c.sleep(ctx, c.cfg.RetryCooldown); err != nil {
				out.err = fmt.Errorf("article %d interrupted: %w", article.ID, err)
				return
			}
		default:
			c.fail(article, out, err)
			return
		}
	}
}

func (c *Controller) fail(article *domain.Article, out *outcome, err error) {
	out.status = domain.StatusFailed
	out.reason = failureReason(err)
	out.err = err

	ev := c.logger.Warn()
	if !errors.Is(err, apperrors.ErrContentRejected) && !errors.Is(err, apperrors.ErrAllModelsFailed) {
		ev = c.logger.Error()
	}

	ev.Err(err).Int64(logKeyArticleID, article.ID).Str(logKeySource, article.URL).Msg("article failed")
}

// run is one attempt: download when the body is short, gate, analyse.
func (c *Controller) run(ctx context.Context, article *domain.Article, out *outcome) (domain.AnalysisResult, error) {
	if c.needsDownload(article) {
		page, err := c.fetcher.Download(ctx, article.URL)

		switch {
		case err != nil && IsRetryable(err):
			return domain.AnalysisResult{}, fmt.Errorf("download: %w", err)
		case err != nil:
			c.logger.Warn().Err(err).Int64(logKeyArticleID, article.ID).Msg("download failed, gating stored text")
		case utf8.RuneCountInString(page.Text) > utf8.RuneCountInString(article.Text):
			article.Text = page.Text
			if article.Title == "" {
				article.Title = page.Title
			}

			if err := c.store.UpdateText(ctx, article.ID, page.Title, page.Text); err != nil {
				c.logger.Warn().Err(err).Int64(logKeyArticleID, article.ID).Msg("failed to store downloaded text")
			}
		}
	}

	out.quality = QualityScore(article.Text)

	if err := CheckQuality(article.Text, c.cfg.MinContentChars, c.cfg.PaywallKeywords); err != nil {
		return domain.AnalysisResult{}, err
	}

	return c.analyzer.Analyze(ctx, analysis.Input{
		Text:     truncateRunes(article.Text, c.cfg.MaxContentChars),
		Language: article.Language,
		Source:   hostOf(article.URL),
	})
}

func (c *Controller) needsDownload(article *domain.Article) bool {
	if c.fetcher == nil || utf8.RuneCountInString(article.Text) >= c.cfg.MinContentChars {
		return false
	}

	u, err := url.Parse(article.URL)

	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// finish persists the terminal status. It runs deferred so every branch ends
// in exactly one write; pending outcomes (canceled) write nothing.
func (c *Controller) finish(ctx context.Context, id int64, out *outcome) {
	if out.status == domain.StatusPending {
		return
	}

	writeCtx := context.WithoutCancel(ctx)

	var err error

	switch out.status {
	case domain.StatusComplete:
		err = c.store.MarkComplete(writeCtx, id, out.result, out.quality)
	default:
		err = c.store.MarkFailed(writeCtx, id, out.reason, out.quality)
	}

	if errors.Is(err, apperrors.ErrStatusConflict) {
		c.logger.Info().Int64(logKeyArticleID, id).Msg("article finished by another worker")
		return
	}

	if err != nil {
		c.logger.Error().Err(err).Int64(logKeyArticleID, id).Str(logKeyStatus, string(out.status)).Msg("failed to write article status")
		out.err = errors.Join(out.err, err)

		return
	}

	observability.DocumentsFinished.WithLabelValues(string(out.status)).Inc()

	c.logger.Info().Int64(logKeyArticleID, id).Str(logKeyStatus, string(out.status)).
		Str("model", out.result.Model).Float64("quality", out.quality).Msg("article finished")
}

// Run consumes the analysis queue with the configured concurrency and sweeps
// stale pending documents back into the queue. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range c.cfg.Concurrency {
		name := fmt.Sprintf("analysis-%d", i)

		g.Go(func() error {
			return worker.Loop(gctx, worker.Config{
				Name:    name,
				Process: c.consumeOne,
				Logger:  c.logger,
			})
		})
	}

	if c.cfg.SweepInterval > 0 {
		g.Go(func() error {
			return worker.SingleTickerLoop(gctx, worker.SingleTickerConfig{
				Name:       "pending-sweep",
				Interval:   c.cfg.SweepInterval,
				RunOnStart: true,
				OnTick: func(ctx context.Context) {
					if _, err := c.Sweep(ctx); err != nil {
						c.logger.Warn().Err(err).Msg("pending sweep failed")
					}
				},
				Logger: c.logger,
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Controller) consumeOne(ctx context.Context) error {
	id, ok, err := c.queue.Dequeue(ctx, c.cfg.QueuePollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("dequeue: %w", err)
	}

	if !ok {
		return nil
	}

	defer worker.RecoverPanic(c.logger, "process article")

	if _, err := c.Process(ctx, id); err != nil && errors.Is(err, apperrors.ErrNotFound) {
		c.logger.Warn().Int64(logKeyArticleID, id).Msg("queued article does not exist")
	}

	return nil
}

// Sweep re-enqueues pending documents older than StaleAfter so units dropped
// by killed workers are redelivered. It returns how many were enqueued.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	ids, err := c.store.ListStalePending(ctx, c.now().Add(-c.cfg.StaleAfter), c.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	if err := c.queue.Enqueue(ctx, ids...); err != nil {
		return 0, fmt.Errorf("re-enqueue stale articles: %w", err)
	}

	observability.QueueRedelivered.Add(float64(len(ids)))
	c.logger.Info().Int("count", len(ids)).Msg("re-enqueued stale pending articles")

	return len(ids), nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrContentRejected):
		return "content: " + err.Error()
	case errors.Is(err, errRetriesExhausted) && errors.Is(err, apperrors.ErrQuotaExhausted):
		return "retries exhausted: quota"
	case errors.Is(err, errRetriesExhausted):
		return "retries exhausted: network"
	case errors.Is(err, apperrors.ErrAllModelsFailed):
		return "analysis: all models failed"
	default:
		return "unexpected: " + err.Error()
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	return string([]rune(s)[:limit])
}
