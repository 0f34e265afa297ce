package tasks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/news-quiz/internal/cache"
	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/process/analysis"
)

var (
	errDial       = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	errUnexpected = errors.New("decoder exploded")
)

type memStore struct {
	mu       sync.Mutex
	articles map[int64]*domain.Article
	writes   map[int64]int
	updates  int
	stale    []int64
	cutoff   time.Time
}

func newMemStore(articles ...domain.Article) *memStore {
	s := &memStore{articles: make(map[int64]*domain.Article), writes: make(map[int64]int)}

	for i := range articles {
		a := articles[i]
		if a.Status == "" {
			a.Status = domain.StatusPending
		}

		s.articles[a.ID] = &a
	}

	return s
}

func (s *memStore) GetArticle(_ context.Context, id int64) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return domain.Article{}, apperrors.ErrNotFound
	}

	return *a, nil
}

func (s *memStore) UpdateText(_ context.Context, id int64, title, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates++
	s.articles[id].Text = text

	if title != "" {
		s.articles[id].Title = title
	}

	return nil
}

func (s *memStore) transition(id int64, next domain.ProcessingStatus, mutate func(a *domain.Article)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.articles[id]
	if !a.Status.CanTransition(next) {
		return apperrors.ErrStatusConflict
	}

	s.writes[id]++
	a.Status = next
	mutate(a)

	return nil
}

func (s *memStore) MarkComplete(_ context.Context, id int64, result domain.AnalysisResult, quality float64) error {
	return s.transition(id, domain.StatusComplete, func(a *domain.Article) {
		a.Quiz = result.Quiz
		a.Tags = result.Tags
		a.ContentQualityScore = quality
	})
}

func (s *memStore) MarkFailed(_ context.Context, id int64, reason string, quality float64) error {
	return s.transition(id, domain.StatusFailed, func(a *domain.Article) {
		a.FailureReason = reason
		a.ContentQualityScore = quality
	})
}

func (s *memStore) ListStalePending(_ context.Context, cutoff time.Time, _ uint64) ([]int64, error) {
	s.cutoff = cutoff
	return s.stale, nil
}

func (s *memStore) article(id int64) domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.articles[id]
}

// scriptedAnalyzer returns errs in order, then a valid result.
type scriptedAnalyzer struct {
	mu     sync.Mutex
	errs   []error
	inputs []analysis.Input
	hook   func()
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, in analysis.Input) (domain.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inputs = append(a.inputs, in)

	if a.hook != nil {
		a.hook()
	}

	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]

		return domain.AnalysisResult{}, err
	}

	return domain.AnalysisResult{
		Quiz:  []domain.QuizQuestion{{Question: "q", Options: []string{"a", "b", "c", "d"}, Answer: "a"}},
		Tags:  []string{"news"},
		Model: "gemini-2.5-flash",
	}, nil
}

func (a *scriptedAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.inputs)
}

type fakeDownloader struct {
	page  Page
	errs  []error
	calls int
}

func (d *fakeDownloader) Download(context.Context, string) (Page, error) {
	d.calls++

	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]

		return Page{}, err
	}

	return d.page, nil
}

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func longText() string {
	return strings.Repeat("The council approved the new budget after a long debate about schools. ", 12)
}

func testConfig() Config {
	return Config{
		MaxAttempts:     3,
		RetryCooldown:   30 * time.Second,
		MinContentChars: 500,
		PaywallKeywords: []string{"subscribe to continue"},
		MaxContentChars: 20000,
		Concurrency:     2,
		StaleAfter:      30 * time.Minute,
		SweepLimit:      50,
	}
}

func newTestController(store *memStore, an *scriptedAnalyzer, dl Downloader, queue Queue) (*Controller, *sleepRecorder) {
	logger := zerolog.Nop()
	c := New(store, an, dl, queue, testConfig(), &logger)

	rec := &sleepRecorder{}
	c.SetClock(time.Now, rec.sleep)

	return c, rec
}

func TestProcess_Complete(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, URL: "https://www.example.com/a", Text: longText(), Language: "en"})
	an := &scriptedAnalyzer{}

	c, _ := newTestController(store, an, nil, nil)

	status, err := c.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, status)

	got := store.article(1)
	assert.Equal(t, domain.StatusComplete, got.Status)
	assert.Equal(t, []string{"news"}, got.Tags)
	assert.Positive(t, got.ContentQualityScore)
	assert.Equal(t, 1, store.writes[1])

	require.Len(t, an.inputs, 1)
	assert.Equal(t, "example.com", an.inputs[0].Source)
	assert.Equal(t, "en", an.inputs[0].Language)
}

func TestProcess_SkipsTerminalArticles(t *testing.T) {
	for _, status := range []domain.ProcessingStatus{domain.StatusComplete, domain.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			store := newMemStore(domain.Article{ID: 1, Text: longText(), Status: status})
			an := &scriptedAnalyzer{}

			c, _ := newTestController(store, an, nil, nil)

			got, err := c.Process(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, status, got)
			assert.Zero(t, an.calls())
			assert.Zero(t, store.writes[1])
		})
	}
}

func TestProcess_QualityGateIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too short", "A short teaser."},
		{"paywall", longText() + " Subscribe to continue reading."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(domain.Article{ID: 1, URL: "manual", Text: tt.text})
			an := &scriptedAnalyzer{}

			c, rec := newTestController(store, an, nil, nil)

			status, err := c.Process(context.Background(), 1)
			require.ErrorIs(t, err, apperrors.ErrContentRejected)
			assert.Equal(t, domain.StatusFailed, status)

			assert.Zero(t, an.calls())
			assert.Empty(t, rec.delays)
			assert.Equal(t, 1, store.writes[1])
			assert.True(t, strings.HasPrefix(store.article(1).FailureReason, "content:"))
		})
	}
}

func TestProcess_NetworkErrorRetried(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, Text: longText()})
	an := &scriptedAnalyzer{errs: []error{errDial, fmt.Errorf("wrapped: %w", errDial)}}

	c, rec := newTestController(store, an, nil, nil)

	status, err := c.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, status)
	assert.Equal(t, 3, an.calls())
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, rec.delays)
	assert.Equal(t, 1, store.writes[1])
}

func TestProcess_RetriesExhausted(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"network", errDial, "retries exhausted: network"},
		{"quota", apperrors.Join(apperrors.ErrAllModelsFailed, apperrors.ErrQuotaExhausted), "retries exhausted: quota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(domain.Article{ID: 1, Text: longText()})
			an := &scriptedAnalyzer{errs: []error{tt.err, tt.err, tt.err, tt.err}}

			c, rec := newTestController(store, an, nil, nil)

			status, err := c.Process(context.Background(), 1)
			require.Error(t, err)

			assert.Equal(t, domain.StatusFailed, status)
			assert.Equal(t, 3, an.calls())
			assert.Len(t, rec.delays, 2)
			assert.Equal(t, tt.reason, store.article(1).FailureReason)
			assert.Equal(t, 1, store.writes[1])
		})
	}
}

func TestProcess_ValidationFailureIsTerminal(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, Text: longText()})
	an := &scriptedAnalyzer{errs: []error{apperrors.Join(apperrors.ErrAllModelsFailed, apperrors.ErrValidation)}}

	c, rec := newTestController(store, an, nil, nil)

	status, err := c.Process(context.Background(), 1)
	require.ErrorIs(t, err, apperrors.ErrAllModelsFailed)

	assert.Equal(t, domain.StatusFailed, status)
	assert.Equal(t, 1, an.calls())
	assert.Empty(t, rec.delays)
	assert.Equal(t, "analysis: all models failed", store.article(1).FailureReason)
}

func TestProcess_UnexpectedErrorIsTerminal(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, Text: longText()})
	an := &scriptedAnalyzer{errs: []error{errUnexpected}}

	c, _ := newTestController(store, an, nil, nil)

	status, err := c.Process(context.Background(), 1)
	require.ErrorIs(t, err, errUnexpected)

	assert.Equal(t, domain.StatusFailed, status)
	assert.Equal(t, 1, an.calls())
	assert.Equal(t, "unexpected: decoder exploded", store.article(1).FailureReason)
}

func TestProcess_PanicStillWritesStatus(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, Text: longText()})
	an := &scriptedAnalyzer{hook: func() { panic("boom") }}

	c, _ := newTestController(store, an, nil, nil)

	status, err := c.Process(context.Background(), 1)
	require.Error(t, err)

	assert.Equal(t, domain.StatusFailed, status)
	assert.Equal(t, domain.StatusFailed, store.article(1).Status)
	assert.Equal(t, 1, store.writes[1])
}

func TestProcess_CanceledLeavesPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := newMemStore(domain.Article{ID: 1, Text: longText()})
	an := &scriptedAnalyzer{errs: []error{errDial}, hook: cancel}

	c, _ := newTestController(store, an, nil, nil)

	status, err := c.Process(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, domain.StatusPending, status)
	assert.Equal(t, domain.StatusPending, store.article(1).Status)
	assert.Zero(t, store.writes[1])
}

func TestProcess_DownloadsShortBody(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, URL: "https://news.example/story", Text: "Teaser only."})
	an := &scriptedAnalyzer{}
	dl := &fakeDownloader{page: Page{Title: "Story", Text: longText()}}

	c, _ := newTestController(store, an, dl, nil)

	status, err := c.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, status)
	assert.Equal(t, 1, dl.calls)
	assert.Equal(t, 1, store.updates)

	require.Len(t, an.inputs, 1)
	assert.Equal(t, longText(), an.inputs[0].Text)
}

func TestProcess_DownloadRetriedOnServerError(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, URL: "https://news.example/story", Text: "Teaser only."})
	an := &scriptedAnalyzer{}
	dl := &fakeDownloader{
		page: Page{Text: longText()},
		errs: []error{fmt.Errorf("%w: HTTP 503", errServerStatus)},
	}

	c, rec := newTestController(store, an, dl, nil)

	status, err := c.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, status)
	assert.Equal(t, 2, dl.calls)
	assert.Len(t, rec.delays, 1)
}

func TestProcess_PermanentDownloadErrorGatesStoredText(t *testing.T) {
	store := newMemStore(domain.Article{ID: 1, URL: "https://news.example/gone", Text: "Teaser only."})
	an := &scriptedAnalyzer{}
	dl := &fakeDownloader{errs: []error{fmt.Errorf("%w: HTTP 404", errPageStatus)}}

	c, rec := newTestController(store, an, dl, nil)

	status, err := c.Process(context.Background(), 1)
	require.ErrorIs(t, err, apperrors.ErrContentRejected)

	assert.Equal(t, domain.StatusFailed, status)
	assert.Empty(t, rec.delays)
	assert.Zero(t, an.calls())
}

func TestProcess_UnknownArticle(t *testing.T) {
	c, _ := newTestController(newMemStore(), &scriptedAnalyzer{}, nil, nil)

	_, err := c.Process(context.Background(), 42)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSweep(t *testing.T) {
	store := newMemStore()
	store.stale = []int64{7, 8}

	queue := cache.NewQueue(cache.NewMemory(), "analysis_queue")
	c, _ := newTestController(store, &scriptedAnalyzer{}, nil, queue)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	n, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-30*time.Minute), store.cutoff)

	for _, want := range []int64{7, 8} {
		id, ok, err := queue.Dequeue(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
}

func TestRun_ConsumesQueue(t *testing.T) {
	store := newMemStore(
		domain.Article{ID: 1, Text: longText()},
		domain.Article{ID: 2, Text: longText()},
		domain.Article{ID: 3, Text: "short"},
	)

	queue := cache.NewQueue(cache.NewMemory(), "analysis_queue")
	require.NoError(t, queue.Enqueue(context.Background(), 1, 2, 3))

	c, _ := newTestController(store, &scriptedAnalyzer{}, nil, queue)
	c.cfg.QueuePollTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.article(1).Status.IsTerminal() &&
			store.article(2).Status.IsTerminal() &&
			store.article(3).Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, domain.StatusComplete, store.article(1).Status)
	assert.Equal(t, domain.StatusComplete, store.article(2).Status)
	assert.Equal(t, domain.StatusFailed, store.article(3).Status)
}
