package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultFetchRPS     = 2
	fetchBurst          = 5
	domainRPS           = 1
	domainBurst         = 2
	maxRedirects        = 5
	maxPageBytes        = 5 * 1024 * 1024
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	// errServerStatus marks 5xx and 429 answers, which are worth retrying.
	errServerStatus = errors.New("server error status")
	// errPageStatus marks other non-200 answers, which are not.
	errPageStatus = errors.New("page unavailable")
)

// Page is the readable content extracted from a downloaded document.
type Page struct {
	Title       string
	Description string
	Text        string
	ImageURL    string
	PublishedAt time.Time
}

// Fetcher downloads pages with a global and a per-domain rate limit.
type Fetcher struct {
	client         *http.Client
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
	userAgent      string
}

// NewFetcher creates a page fetcher.
func NewFetcher(rps float64, timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	if rps <= 0 {
		rps = defaultFetchRPS
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		},
		globalLimiter:  rate.NewLimiter(rate.Limit(rps), fetchBurst),
		domainLimiters: make(map[string]*rate.Limiter),
		userAgent:      userAgent,
	}
}

// Download fetches a page and extracts its readable text.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (Page, error) {
	body, err := f.fetch(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}

	return ExtractPage(body, rawURL), nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.globalLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	if err := f.domainLimiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return nil, fmt.Errorf("domain rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create page request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: HTTP %d", errServerStatus, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: HTTP %d", errPageStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	return body, nil
}

func (f *Fetcher) domainLimiter(domain string) *rate.Limiter {
	f.mu.RLock()
	limiter, exists := f.domainLimiters[domain]
	f.mu.RUnlock()

	if exists {
		return limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if limiter, exists := f.domainLimiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(domainRPS, domainBurst)
	f.domainLimiters[domain] = limiter

	return limiter
}

// ExtractPage runs readability over raw HTML, falling back to meta tags when
// no article body can be found.
func ExtractPage(htmlBytes []byte, rawURL string) Page {
	meta := extractMetaTags(htmlBytes)

	page := Page{
		Title:       coalesce(meta.OGTitle, meta.Title),
		Description: coalesce(meta.OGDescription, meta.Description),
		ImageURL:    meta.OGImage,
		PublishedAt: parseDate(meta.PublishedTime),
	}

	u, _ := url.Parse(rawURL) //nolint:errcheck // nil URL is accepted by readability

	article, err := readability.FromReader(bytes.NewReader(htmlBytes), u)
	if err != nil {
		return page
	}

	page.Title = coalesce(article.Title, page.Title)
	page.Text = strings.TrimSpace(article.TextContent)

	return page
}

type metaTags struct {
	Title         string
	Description   string
	OGTitle       string
	OGDescription string
	OGImage       string
	PublishedTime string
}

func extractMetaTags(htmlBytes []byte) metaTags {
	var meta metaTags

	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return meta
	}

	var traverse func(*html.Node)

	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name, content := metaAttrs(n)
				switch strings.ToLower(name) {
				case "description":
					meta.Description = content
				case "og:title":
					meta.OGTitle = content
				case "og:description":
					meta.OGDescription = content
				case "og:image":
					meta.OGImage = content
				case "article:published_time":
					meta.PublishedTime = content
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)

	return meta
}

func metaAttrs(n *html.Node) (name, content string) {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "name", "property":
			name = attr.Val
		case "content":
			content = attr.Val
		}
	}

	return name, content
}

func coalesce(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}

	return ""
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}

	return t
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
