package acquisition

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/news-quiz/internal/cache"
	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/platform/config"
)

var errCommit = errors.New("commit failed")

type fakeStore struct {
	mu        sync.Mutex
	existing  map[string]bool
	lookups   []string
	created   []domain.Article
	logs      []domain.AcquisitionLog
	commitErr error
	nextID    int64
}

func (s *fakeStore) URLExists(_ context.Context, u string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups = append(s.lookups, u)

	return s.existing[u], nil
}

func (s *fakeStore) CreateArticles(_ context.Context, articles []domain.Article) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return nil, s.commitErr
	}

	ids := make([]int64, len(articles))

	for i := range articles {
		s.nextID++
		ids[i] = s.nextID
	}

	s.created = append(s.created, articles...)

	return ids, nil
}

func (s *fakeStore) SaveAcquisitionLogs(_ context.Context, logs []domain.AcquisitionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, logs...)

	return nil
}

type recordingQueue struct {
	ids []int64
}

func (q *recordingQueue) Enqueue(_ context.Context, ids ...int64) error {
	q.ids = append(q.ids, ids...)
	return nil
}

type fakeNews struct {
	headlines map[string][]Entry
	search    []Entry
	err       error
	queries   []NewsQuery
	paths     []string
}

func (f *fakeNews) Headlines(_ context.Context, q NewsQuery) ([]Entry, error) {
	f.queries = append(f.queries, q)
	f.paths = append(f.paths, "headlines")

	if f.err != nil {
		return nil, f.err
	}

	key := q.Domain
	if key == "" {
		key = q.Category
	}

	return f.headlines[key], nil
}

func (f *fakeNews) Search(_ context.Context, q NewsQuery) ([]Entry, error) {
	f.queries = append(f.queries, q)
	f.paths = append(f.paths, "search")

	if f.err != nil {
		return nil, f.err
	}

	return f.search, nil
}

func body(i int) string {
	return fmt.Sprintf("Story number %d describes events in enough detail to count as usable text.", i)
}

func feedXML(n int, prefix string) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)

	for i := range n {
		fmt.Fprintf(&sb, `<item><title>%s %d</title><link>https://news.example/%s/%d</link><description>%s</description></item>`,
			prefix, i, prefix, i, body(i)+prefix)
	}

	sb.WriteString(`</channel></rss>`)

	return sb.String()
}

func feedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func testCache() *cache.Cache {
	return cache.New(cache.NewMemory(), cache.Config{
		UsageTTL:        24 * time.Hour,
		TopicTTL:        48 * time.Hour,
		SourceStatusTTL: 24 * time.Hour,
		DuplicateTTL:    72 * time.Hour,
		DuplicateCap:    1000,
		TrendingTTL:     24 * time.Hour,
	})
}

func testConfig(budget int) Config {
	return Config{
		MaxArticles:          budget,
		CuratedPerCall:       10,
		OpportunisticPerCall: 10,
		TrendingProbability:  0.8,
		TrendingTerms:        3,
		MinBodyChars:         20,
		NewsAPIDailyLimit:    100,
		LockTTL:              time.Minute,
	}
}

type harness struct {
	store *fakeStore
	queue *recordingQueue
	cache *cache.Cache
	news  *fakeNews
	orch  *Orchestrator
}

func newHarness(sources config.Sources, cfg Config, news *fakeNews) *harness {
	logger := zerolog.Nop()
	h := &harness{
		store: &fakeStore{existing: map[string]bool{}},
		queue: &recordingQueue{},
		cache: testCache(),
		news:  news,
	}

	var searcher NewsSearcher
	if news != nil {
		searcher = news
	}

	h.orch = New(NewFeedReader(5*time.Second, "test"), searcher, h.store, h.cache, h.queue, sources,
		cfg, rand.New(rand.NewPCG(1, 2)), &logger)

	return h
}

func TestRunCycle_BudgetStopsMidFeed(t *testing.T) {
	ts := feedServer(t, map[string]string{"/a": feedXML(3, "a")})

	sources := config.Sources{Feeds: map[string][]string{"en": {ts.URL + "/a"}}}
	h := newHarness(sources, testConfig(2), &fakeNews{})

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, h.store.created, 2)
	assert.Equal(t, "https://news.example/a/0", h.store.created[0].URL)
	assert.Equal(t, "https://news.example/a/1", h.store.created[1].URL)
	assert.Equal(t, []string{"https://news.example/a/0", "https://news.example/a/1"}, h.store.lookups,
		"the third entry is never examined")

	for _, a := range h.store.created {
		assert.Equal(t, domain.StatusPending, a.Status)
		assert.Equal(t, domain.SourceRSS, a.AcquisitionSource)
		assert.Equal(t, "en", a.Language)
		assert.Len(t, a.DuplicateCheckHash, 64)
	}

	assert.Equal(t, []int64{1, 2}, h.queue.ids)
	assert.Empty(t, h.news.queries, "API layers do not run once the budget is met")

	assert.Equal(t, 2, summary.Acquired)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, map[string]int{"en": 2}, summary.LanguageDistribution)
}

func TestRunCycle_LockHeld(t *testing.T) {
	h := newHarness(config.Sources{}, testConfig(5), nil)

	ok, err := h.cache.AcquireLock(context.Background(), CycleLockName, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, apperrors.ErrLockNotAcquired)
	assert.Empty(t, h.store.logs)
}

func TestRunCycle_ReleasesLock(t *testing.T) {
	h := newHarness(config.Sources{}, testConfig(5), nil)

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	ok, err := h.cache.AcquireLock(context.Background(), CycleLockName, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunCycle_SameURLAcrossLayers(t *testing.T) {
	ts := feedServer(t, map[string]string{"/a": feedXML(1, "a")})

	news := &fakeNews{
		headlines: map[string][]Entry{"reuters.com": {
			{URL: "https://news.example/a/0", Title: "Same story", Body: body(99)},
			{URL: "https://news.example/curated/1", Title: "Curated", Body: body(1) + " curated"},
		}},
		search: []Entry{{URL: "https://news.example/curated/1", Title: "Again", Body: body(2)}},
	}

	sources := config.Sources{
		Feeds:          map[string][]string{"en": {ts.URL + "/a"}},
		CuratedDomains: []string{"reuters.com"},
		Categories:     []string{"science"},
		Languages:      []string{"en"},
	}

	h := newHarness(sources, testConfig(10), news)
	require.NoError(t, h.cache.RecordTrendingTags(context.Background(), "en", []string{"world cup", "economy"}))

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	urls := make(map[string]int)
	for _, a := range h.store.created {
		urls[a.URL]++
	}

	assert.Equal(t, map[string]int{"https://news.example/a/0": 1, "https://news.example/curated/1": 1}, urls)
	assert.Equal(t, domain.SourceRSS, h.store.created[0].AcquisitionSource)
	assert.Equal(t, domain.SourceCuratedAPI, h.store.created[1].AcquisitionSource)
}

func TestRunCycle_RejectionRules(t *testing.T) {
	news := &fakeNews{headlines: map[string][]Entry{"reuters.com": {
		{URL: "", Title: "no url", Body: body(1)},
		{URL: "https://x.example/no-title", Body: body(2)},
		{URL: "https://x.example/stored", Title: "stored", Body: body(3)},
		{URL: "https://x.example/short", Title: "short", Body: "too short"},
		{URL: "https://x.example/ok", Title: "ok", Body: body(5)},
		{URL: "https://x.example/copy", Title: "copy", Body: body(5)},
	}}}

	sources := config.Sources{CuratedDomains: []string{"reuters.com"}}
	h := newHarness(sources, testConfig(10), news)
	h.store.existing["https://x.example/stored"] = true

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, h.store.created, 1)
	assert.Equal(t, "https://x.example/ok", h.store.created[0].URL)
	assert.Equal(t, 5, summary.Rejected)
}

func TestRunCycle_FetchErrorsDoNotAbort(t *testing.T) {
	ts := feedServer(t, map[string]string{"/good": feedXML(2, "g")})

	sources := config.Sources{
		Feeds:          map[string][]string{"en": {ts.URL + "/missing", ts.URL + "/good"}},
		CuratedDomains: []string{"reuters.com"},
		Categories:     []string{"science"},
	}

	h := newHarness(sources, testConfig(10), &fakeNews{err: errors.New("boom")})

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.store.created, 2)
	assert.Equal(t, 2, summary.APICalls)

	status, ok, err := h.cache.GetSourceStatus(context.Background(), sourceKey(ts.URL+"/missing"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, status.OK)

	status, ok, err = h.cache.GetSourceStatus(context.Background(), sourceKey(ts.URL+"/good"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, status.OK)
	assert.Equal(t, 2, status.Articles)
}

func TestRunCycle_QuotaExhaustedSkipsAPILayers(t *testing.T) {
	news := &fakeNews{}
	sources := config.Sources{CuratedDomains: []string{"reuters.com"}, Categories: []string{"science"}}

	h := newHarness(sources, testConfig(10), news)
	require.NoError(t, h.cache.SetUsage(context.Background(), NewsAPIName, 100))

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, news.queries)
	assert.Zero(t, summary.APICalls)
}

func TestRunCycle_CountsAPIUsage(t *testing.T) {
	news := &fakeNews{}
	sources := config.Sources{CuratedDomains: []string{"reuters.com"}, Categories: []string{"science"}}

	h := newHarness(sources, testConfig(10), news)

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	used, err := h.cache.Usage(context.Background(), NewsAPIName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)
}

func TestRunCycle_CategoryWithoutTrendingSignal(t *testing.T) {
	news := &fakeNews{headlines: map[string][]Entry{"science": {
		{URL: "https://x.example/sci", Title: "Science", Body: body(7), Category: "science", Language: "en"},
	}}}

	sources := config.Sources{Categories: []string{"science"}, Languages: []string{"en"}}
	cfg := testConfig(10)
	cfg.TrendingProbability = 1

	h := newHarness(sources, cfg, news)

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"headlines"}, news.paths)
	assert.Equal(t, "science", news.queries[0].Category)

	require.Len(t, h.store.created, 1)
	assert.Equal(t, domain.SourceOpportunisticAPI, h.store.created[0].AcquisitionSource)
	assert.Equal(t, map[string]int{"science": 1}, summary.TopicDistribution)

	count, err := h.cache.TopicCount(context.Background(), "en", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunCycle_TrendingSearch(t *testing.T) {
	news := &fakeNews{}
	sources := config.Sources{Categories: []string{"science"}, Languages: []string{"en"}}
	cfg := testConfig(10)
	cfg.TrendingProbability = 1

	h := newHarness(sources, cfg, news)
	require.NoError(t, h.cache.RecordTrendingTags(context.Background(), "en", []string{"world cup", "world cup", "economy"}))

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"search"}, news.paths)
	assert.Equal(t, `"world cup" OR economy`, news.queries[0].Term)
	assert.Equal(t, "en", news.queries[0].Language)
}

func TestRunCycle_CommitFailureEnqueuesNothing(t *testing.T) {
	ts := feedServer(t, map[string]string{"/a": feedXML(2, "a")})

	sources := config.Sources{Feeds: map[string][]string{"en": {ts.URL + "/a"}}}
	h := newHarness(sources, testConfig(5), nil)
	h.store.commitErr = errCommit

	_, err := h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, errCommit)
	assert.Empty(t, h.queue.ids)
}

func TestRunCycle_CommitFailureAllowsRetry(t *testing.T) {
	ts := feedServer(t, map[string]string{"/a": feedXML(2, "a")})

	sources := config.Sources{Feeds: map[string][]string{"en": {ts.URL + "/a"}}}
	h := newHarness(sources, testConfig(5), nil)
	h.store.commitErr = errCommit

	_, err := h.orch.RunCycle(context.Background())
	require.ErrorIs(t, err, errCommit)
	require.Empty(t, h.store.created)

	h.store.commitErr = nil

	summary, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.store.created, 2, "entries of a rolled-back batch are acquired again")
	assert.Equal(t, 2, summary.Acquired)
	assert.Equal(t, 0, summary.Rejected)
	assert.Equal(t, []int64{1, 2}, h.queue.ids)
}

func TestRunCycle_WritesLayerLogs(t *testing.T) {
	ts := feedServer(t, map[string]string{"/a": feedXML(1, "a")})

	sources := config.Sources{
		Feeds:          map[string][]string{"en": {ts.URL + "/a"}},
		CuratedDomains: []string{"reuters.com"},
	}

	h := newHarness(sources, testConfig(5), &fakeNews{})

	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	layers := make([]string, len(h.store.logs))
	for i, l := range h.store.logs {
		layers[i] = l.Layer
		assert.NotEmpty(t, l.ID)
	}

	assert.Equal(t, []string{LayerFeeds, LayerCurated, LayerOpportunistic, LayerCycle}, layers)
}
