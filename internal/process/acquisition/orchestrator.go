// Package acquisition runs bounded acquisition cycles over three source layers:
// subscribed feeds, curated publisher headlines and opportunistic search.
package acquisition

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/news-quiz/internal/cache"
	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/platform/config"
	"github.com/lueurxax/news-quiz/internal/platform/observability"
)

// CycleLockName is the cache lock guarding a whole acquisition cycle.
const CycleLockName = "acquisition_cycle"

// Layer names used in logs, metrics and acquisition records.
const (
	LayerFeeds         = "feeds"
	LayerCurated       = "curated"
	LayerOpportunistic = "opportunistic"
	LayerCycle         = "cycle"
)

// Rejection reasons.
const (
	rejectMissingFields = "missing_fields"
	rejectSeen          = "seen_in_cycle"
	rejectExists        = "url_exists"
	rejectNoText        = "no_text"
	rejectDuplicate     = "duplicate_content"
)

const (
	defaultLanguage    = "en"
	trendingTermJoiner = " OR "
)

// Log key strings
const (
	logKeyLayer    = "layer"
	logKeySource   = "source"
	logKeyLanguage = "language"
	logKeyCount    = "count"
)

// Entry is a candidate document returned by a source.
type Entry struct {
	URL         string
	Title       string
	Body        string
	ImageURL    string
	Language    string
	Category    string
	PublishedAt time.Time
}

// FeedFetcher reads a subscribed feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL, language string) ([]Entry, error)
}

// NewsSearcher queries the headline/search API.
type NewsSearcher interface {
	Headlines(ctx context.Context, q NewsQuery) ([]Entry, error)
	Search(ctx context.Context, q NewsQuery) ([]Entry, error)
}

// Store persists acquired documents and cycle logs.
type Store interface {
	URLExists(ctx context.Context, url string) (bool, error)
	CreateArticles(ctx context.Context, articles []domain.Article) ([]int64, error)
	SaveAcquisitionLogs(ctx context.Context, logs []domain.AcquisitionLog) error
}

// CycleCache is the subset of the quota/lock cache used by a cycle.
type CycleCache interface {
	AcquireLock(ctx context.Context, name string, timeout time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
	Usage(ctx context.Context, api string) (int64, error)
	IncrementUsage(ctx context.Context, api string) (int64, error)
	IncrementTopic(ctx context.Context, language string, day time.Time) (int64, error)
	SetSourceStatus(ctx context.Context, source string, status cache.SourceStatus) error
	IsDuplicate(ctx context.Context, content string) (bool, error)
	ForgetDuplicates(ctx context.Context, hashes ...string) error
	TrendingTags(ctx context.Context, language string, n int) ([]string, error)
}

// Enqueuer hands committed document IDs to the analysis workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, ids ...int64) error
}

// Config tunes a cycle.
type Config struct {
	MaxArticles          int
	CuratedPerCall       int
	OpportunisticPerCall int
	TrendingProbability  float64
	TrendingTerms        int
	MinBodyChars         int
	NewsAPIDailyLimit    int
	LockTTL              time.Duration
}

// ConfigFrom maps the environment configuration onto a cycle Config.
func ConfigFrom(cfg config.AcquisitionConfig, lockTTL time.Duration) Config {
	return Config{
		MaxArticles:          cfg.MaxArticlesPerCycle,
		CuratedPerCall:       cfg.CuratedPerCall,
		OpportunisticPerCall: cfg.OpportunisticPerCall,
		TrendingProbability:  cfg.TrendingProbability,
		TrendingTerms:        cfg.TrendingTerms,
		MinBodyChars:         cfg.MinBodyChars,
		NewsAPIDailyLimit:    cfg.NewsAPIDailyLimit,
		LockTTL:              lockTTL,
	}
}

// Orchestrator runs acquisition cycles.
type Orchestrator struct {
	feeds   FeedFetcher
	news    NewsSearcher
	store   Store
	cache   CycleCache
	queue   Enqueuer
	sources config.Sources
	cfg     Config
	rng     *rand.Rand
	now     func() time.Time
	logger  *zerolog.Logger
}

// New creates an orchestrator. news may be nil, which disables layers 2 and 3.
// rng may be nil, in which case a randomly seeded source is used.
func New(feeds FeedFetcher, news NewsSearcher, store Store, c CycleCache, queue Enqueuer, sources config.Sources, cfg Config, rng *rand.Rand, logger *zerolog.Logger) *Orchestrator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // source selection only
	}

	return &Orchestrator{
		feeds:   feeds,
		news:    news,
		store:   store,
		cache:   c,
		queue:   queue,
		sources: sources,
		cfg:     cfg,
		rng:     rng,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// layerStats accumulates the counters of one layer.
type layerStats struct {
	layer     string
	acquired  int
	rejected  int
	apiCalls  int
	languages map[string]int
	topics    map[string]int
	started   time.Time
	elapsed   time.Duration
}

func newLayerStats(layer string, started time.Time) *layerStats {
	return &layerStats{
		layer:     layer,
		languages: make(map[string]int),
		topics:    make(map[string]int),
		started:   started,
	}
}

// cycle is the per-run state shared by the layers.
type cycle struct {
	budget  int
	seen    map[string]bool
	pending []domain.Article
	layers  []*layerStats
}

func (c *cycle) full() bool {
	return len(c.pending) >= c.budget
}

// RunCycle runs one acquisition cycle under the global cycle lock. When another
// cycle holds the lock it returns ErrLockNotAcquired without running any layer.
func (o *Orchestrator) RunCycle(ctx context.Context) (domain.AcquisitionLog, error) {
	ok, err := o.cache.AcquireLock(ctx, CycleLockName, o.cfg.LockTTL)
	if err != nil {
		return domain.AcquisitionLog{}, fmt.Errorf("acquire cycle lock: %w", err)
	}

	if !ok {
		observability.CyclesSkipped.Inc()
		return domain.AcquisitionLog{}, apperrors.ErrLockNotAcquired
	}

	defer func() {
		if err := o.cache.ReleaseLock(context.WithoutCancel(ctx), CycleLockName); err != nil {
			o.logger.Error().Err(err).Msg("failed to release acquisition cycle lock")
		}
	}()

	start := o.now()
	c := &cycle{budget: o.cfg.MaxArticles, seen: make(map[string]bool)}

	o.runLayer(ctx, c, LayerFeeds, o.feedLayer)
	o.runLayer(ctx, c, LayerCurated, o.curatedLayer)
	o.runLayer(ctx, c, LayerOpportunistic, o.opportunisticLayer)

	summary, err := o.commit(ctx, c, start)

	observability.CycleDuration.Observe(o.now().Sub(start).Seconds())

	return summary, err
}

func (o *Orchestrator) runLayer(ctx context.Context, c *cycle, layer string, fn func(context.Context, *cycle, *layerStats)) {
	if c.full() || ctx.Err() != nil {
		return
	}

	stats := newLayerStats(layer, o.now())
	fn(ctx, c, stats)
	stats.elapsed = o.now().Sub(stats.started)
	c.layers = append(c.layers, stats)

	o.logger.Info().
		Str(logKeyLayer, layer).
		Int(logKeyCount, stats.acquired).
		Int("rejected", stats.rejected).
		Int("api_calls", stats.apiCalls).
		Msg("acquisition layer finished")
}

// feedLayer reads every subscribed feed until the budget is met, mid-feed if necessary.
func (o *Orchestrator) feedLayer(ctx context.Context, c *cycle, stats *layerStats) {
	for _, lang := range o.sources.FeedLanguages() {
		for _, feedURL := range o.sources.Feeds[lang] {
			if c.full() || ctx.Err() != nil {
				return
			}

			entries, err := o.feeds.Fetch(ctx, feedURL, lang)
			if err != nil {
				o.sourceFailed(ctx, stats, feedURL, err)
				continue
			}

			added := o.ingest(ctx, c, stats, entries, domain.SourceRSS)
			o.sourceSucceeded(ctx, feedURL, added)
		}
	}
}

// curatedLayer queries headlines of one random curated domain.
func (o *Orchestrator) curatedLayer(ctx context.Context, c *cycle, stats *layerStats) {
	if o.news == nil || len(o.sources.CuratedDomains) == 0 {
		return
	}

	if !o.quotaLeft(ctx) {
		return
	}

	domainName := o.sources.CuratedDomains[o.rng.IntN(len(o.sources.CuratedDomains))]

	entries, err := o.news.Headlines(ctx, NewsQuery{
		Domain:   domainName,
		Language: defaultLanguage,
		Max:      o.cfg.CuratedPerCall,
	})
	o.countCall(ctx, stats, "headlines")

	if err != nil {
		o.sourceFailed(ctx, stats, domainName, err)
		return
	}

	added := o.ingest(ctx, c, stats, limit(entries, o.cfg.CuratedPerCall), domain.SourceCuratedAPI)
	o.sourceSucceeded(ctx, domainName, added)
}

// opportunisticLayer searches trending terms in a random language, or a random
// category when the draw or the missing trending signal says so.
func (o *Orchestrator) opportunisticLayer(ctx context.Context, c *cycle, stats *layerStats) {
	if o.news == nil || !o.quotaLeft(ctx) {
		return
	}

	lang := o.pickLanguage()

	var terms []string

	if o.rng.Float64() < o.cfg.TrendingProbability {
		var err error

		terms, err = o.cache.TrendingTags(ctx, lang, o.cfg.TrendingTerms)
		if err != nil {
			o.logger.Warn().Err(err).Str(logKeyLanguage, lang).Msg("failed to read trending tags")
		}
	}

	var (
		entries []Entry
		err     error
		source  string
	)

	if len(terms) > 0 {
		source = "search:" + lang
		entries, err = o.news.Search(ctx, NewsQuery{
			Term:     strings.Join(quoteTerms(terms), trendingTermJoiner),
			Language: lang,
			Max:      o.cfg.OpportunisticPerCall,
		})
		o.countCall(ctx, stats, "search")
	} else {
		if len(o.sources.Categories) == 0 {
			return
		}

		category := o.sources.Categories[o.rng.IntN(len(o.sources.Categories))]
		source = "category:" + category
		entries, err = o.news.Headlines(ctx, NewsQuery{
			Category: category,
			Language: lang,
			Max:      o.cfg.OpportunisticPerCall,
		})
		o.countCall(ctx, stats, "category")
	}

	if err != nil {
		o.sourceFailed(ctx, stats, source, err)
		return
	}

	added := o.ingest(ctx, c, stats, limit(entries, o.cfg.OpportunisticPerCall), domain.SourceOpportunisticAPI)
	o.sourceSucceeded(ctx, source, added)
}

func (o *Orchestrator) pickLanguage() string {
	if len(o.sources.Languages) == 0 {
		return defaultLanguage
	}

	return o.sources.Languages[o.rng.IntN(len(o.sources.Languages))]
}

// ingest turns entries into pending documents until the budget is met. It
// returns how many were accepted.
func (o *Orchestrator) ingest(ctx context.Context, c *cycle, stats *layerStats, entries []Entry, source domain.AcquisitionSource) int {
	added := 0

	for _, e := range entries {
		if c.full() {
			break
		}

		if reason := o.admit(ctx, c, e); reason != "" {
			stats.rejected++
			observability.ArticlesRejected.WithLabelValues(reason).Inc()

			continue
		}

		lang := e.Language
		if lang == "" {
			lang = defaultLanguage
		}

		c.pending = append(c.pending, domain.Article{
			URL:                e.URL,
			Title:              e.Title,
			Text:               e.Body,
			Language:           lang,
			ImageURL:           e.ImageURL,
			Status:             domain.StatusPending,
			AcquisitionSource:  source,
			Category:           e.Category,
			DuplicateCheckHash: cache.ContentHash(e.Body),
		})

		stats.acquired++
		stats.languages[lang]++

		if e.Category != "" {
			stats.topics[e.Category]++
		}

		observability.ArticlesAcquired.WithLabelValues(stats.layer, lang).Inc()

		added++
	}

	return added
}

// admit returns the rejection reason of an entry, or "" when it is new.
// The content hash check runs last because it records the hash.
func (o *Orchestrator) admit(ctx context.Context, c *cycle, e Entry) string {
	if e.URL == "" || e.Title == "" {
		return rejectMissingFields
	}

	if c.seen[e.URL] {
		return rejectSeen
	}

	c.seen[e.URL] = true

	exists, err := o.store.URLExists(ctx, e.URL)
	if err != nil {
		o.logger.Warn().Err(err).Str(logKeySource, e.URL).Msg("url lookup failed")
		return rejectExists
	}

	if exists {
		return rejectExists
	}

	if len([]rune(strings.TrimSpace(e.Body))) < o.cfg.MinBodyChars {
		return rejectNoText
	}

	dup, err := o.cache.IsDuplicate(ctx, e.Body)
	if err != nil {
		o.logger.Warn().Err(err).Str(logKeySource, e.URL).Msg("duplicate check failed")
	}

	if dup {
		return rejectDuplicate
	}

	return ""
}

// quotaLeft reports whether the news API daily quota allows another call.
func (o *Orchestrator) quotaLeft(ctx context.Context) bool {
	used, err := o.cache.Usage(ctx, NewsAPIName)
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to read news api usage")
		return false
	}

	if o.cfg.NewsAPIDailyLimit > 0 && used >= int64(o.cfg.NewsAPIDailyLimit) {
		o.logger.Info().Int64("used", used).Msg("news api daily quota exhausted, skipping layer")
		return false
	}

	return true
}

func (o *Orchestrator) countCall(ctx context.Context, stats *layerStats, endpoint string) {
	stats.apiCalls++
	observability.NewsAPICalls.WithLabelValues(endpoint).Inc()

	if _, err := o.cache.IncrementUsage(ctx, NewsAPIName); err != nil {
		o.logger.Warn().Err(err).Msg("failed to increment news api usage")
	}
}

func (o *Orchestrator) sourceFailed(ctx context.Context, stats *layerStats, source string, err error) {
	observability.SourceFetchErrors.WithLabelValues(stats.layer).Inc()

	o.logger.Warn().Err(err).Str(logKeyLayer, stats.layer).Str(logKeySource, source).Msg("source fetch failed")

	o.writeStatus(ctx, source, cache.SourceStatus{OK: false, Error: err.Error(), CheckedAt: o.now()})
}

func (o *Orchestrator) sourceSucceeded(ctx context.Context, source string, added int) {
	o.writeStatus(ctx, source, cache.SourceStatus{OK: true, Articles: added, CheckedAt: o.now()})
}

func (o *Orchestrator) writeStatus(ctx context.Context, source string, status cache.SourceStatus) {
	if err := o.cache.SetSourceStatus(ctx, sourceKey(source), status); err != nil {
		o.logger.Warn().Err(err).Str(logKeySource, source).Msg("failed to write source status")
	}
}

// commit stores all pending documents in one transaction, enqueues them only
// after the commit succeeded, then writes the cycle logs.
func (o *Orchestrator) commit(ctx context.Context, c *cycle, start time.Time) (domain.AcquisitionLog, error) {
	summary := domain.AcquisitionLog{
		ID:                   uuid.NewString(),
		Layer:                LayerCycle,
		LanguageDistribution: make(map[string]int),
		TopicDistribution:    make(map[string]int),
	}

	logs := make([]domain.AcquisitionLog, 0, len(c.layers)+1)

	for _, s := range c.layers {
		summary.Acquired += s.acquired
		summary.Rejected += s.rejected
		summary.APICalls += s.apiCalls
		mergeCounts(summary.LanguageDistribution, s.languages)
		mergeCounts(summary.TopicDistribution, s.topics)

		logs = append(logs, domain.AcquisitionLog{
			ID:                   uuid.NewString(),
			Layer:                s.layer,
			Acquired:             s.acquired,
			Rejected:             s.rejected,
			APICalls:             s.apiCalls,
			Elapsed:              s.elapsed,
			LanguageDistribution: s.languages,
			TopicDistribution:    s.topics,
		})
	}

	if len(c.pending) > 0 {
		ids, err := o.store.CreateArticles(ctx, c.pending)
		if err != nil {
			o.forgetPending(ctx, c.pending)
			return summary, fmt.Errorf("commit acquired articles: %w", err)
		}

		if err := o.queue.Enqueue(ctx, ids...); err != nil {
			// Committed rows stay pending; the worker sweep redelivers them.
			o.logger.Error().Err(err).Int(logKeyCount, len(ids)).Msg("failed to enqueue acquired articles")
		} else {
			summary.Processed = len(ids)
		}

		o.countTopics(ctx, c.pending)
	}

	summary.Elapsed = o.now().Sub(start)
	now := o.now()
	summary.CreatedAt = now

	for i := range logs {
		logs[i].CreatedAt = now
	}

	logs = append(logs, summary)

	if err := o.store.SaveAcquisitionLogs(ctx, logs); err != nil {
		o.logger.Error().Err(err).Msg("failed to save acquisition logs")
	}

	o.logger.Info().
		Int("acquired", summary.Acquired).
		Int("processed", summary.Processed).
		Int("rejected", summary.Rejected).
		Int("api_calls", summary.APICalls).
		Dur("elapsed", summary.Elapsed).
		Msg("acquisition cycle finished")

	return summary, nil
}

// forgetPending drops the content hashes of a rolled-back batch so the next
// cycle can acquire the same entries.
func (o *Orchestrator) forgetPending(ctx context.Context, articles []domain.Article) {
	hashes := make([]string, 0, len(articles))
	for _, a := range articles {
		hashes = append(hashes, a.DuplicateCheckHash)
	}

	if err := o.cache.ForgetDuplicates(context.WithoutCancel(ctx), hashes...); err != nil {
		o.logger.Error().Err(err).Int(logKeyCount, len(hashes)).Msg("failed to forget content hashes of uncommitted articles")
	}
}

func (o *Orchestrator) countTopics(ctx context.Context, articles []domain.Article) {
	day := o.now()

	for _, a := range articles {
		if _, err := o.cache.IncrementTopic(ctx, a.Language, day); err != nil {
			o.logger.Warn().Err(err).Str(logKeyLanguage, a.Language).Msg("failed to increment topic counter")
		}
	}
}

func mergeCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

func limit(entries []Entry, n int) []Entry {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}

	return entries
}

func quoteTerms(terms []string) []string {
	out := make([]string, 0, len(terms))

	for _, t := range terms {
		if strings.ContainsRune(t, ' ') {
			t = `"` + t + `"`
		}

		out = append(out, t)
	}

	return out
}

// sourceKey shortens feed URLs to host+path so status keys stay readable.
func sourceKey(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return source
	}

	return u.Host + u.Path
}
