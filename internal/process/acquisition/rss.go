package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	headerUserAgent    = "User-Agent"
	defaultFeedTimeout = 20 * time.Second
)

var errFeedFetchFailed = errors.New("feed fetch failed")

// FeedReader downloads and parses RSS/Atom feeds.
type FeedReader struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

// NewFeedReader creates a feed reader.
func NewFeedReader(timeout time.Duration, userAgent string) *FeedReader {
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}

	return &FeedReader{
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

// Fetch returns the entries of a feed. A malformed feed fails as a whole.
func (r *FeedReader) Fetch(ctx context.Context, feedURL, language string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	if r.userAgent != "" {
		req.Header.Set(headerUserAgent, r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errFeedFetchFailed, resp.StatusCode)
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))

	for _, item := range feed.Items {
		entries = append(entries, feedEntry(item, language))
	}

	return entries, nil
}

func feedEntry(item *gofeed.Item, language string) Entry {
	body := item.Description
	if strings.TrimSpace(body) == "" {
		body = item.Content
	}

	entry := Entry{
		URL:      strings.TrimSpace(item.Link),
		Title:    strings.TrimSpace(item.Title),
		Body:     cleanText(body),
		Language: language,
	}

	if item.Image != nil {
		entry.ImageURL = item.Image.URL
	}

	if len(item.Categories) > 0 {
		entry.Category = strings.ToLower(strings.TrimSpace(item.Categories[0]))
	}

	switch {
	case item.PublishedParsed != nil:
		entry.PublishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.PublishedAt = *item.UpdatedParsed
	}

	return entry
}

// cleanText strips markup from feed and API summaries and collapses whitespace.
func cleanText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return strings.Join(strings.Fields(raw), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}

	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}
