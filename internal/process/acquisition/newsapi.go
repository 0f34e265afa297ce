package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/time/rate"
)

const (
	newsAPIDefaultTimeout = 30 * time.Second
	newsAPIDefaultRPM     = 30
	newsAPIMaxBodyBytes   = 2 << 20
	secondsPerMinute      = 60.0

	newsAPIPathHeadlines = "/top-headlines"
	newsAPIPathSearch    = "/search"

	newsAPIParamKey      = "apikey"
	newsAPIParamLanguage = "lang"
	newsAPIParamMax      = "max"
	newsAPIParamCategory = "category"
	newsAPIParamDomains  = "domains"
	newsAPIParamQuery    = "q"

	// NewsAPIName is the quota key of the news API.
	NewsAPIName = "gnews"
)

var (
	errNewsAPIUnexpectedStatus = errors.New("news api unexpected status")
	errNewsAPIError            = errors.New("news api error")
	errNewsAPIRateLimited      = errors.New("news api rate limited")
	errNewsAPIDisabled         = errors.New("news api disabled")
)

// NewsQuery describes one headline or search call.
type NewsQuery struct {
	Domain   string
	Category string
	Term     string
	Language string
	Max      int
}

// NewsClient queries a GNews-compatible REST API.
type NewsClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewsClientConfig holds configuration for the news API client.
type NewsClientConfig struct {
	APIKey         string
	BaseURL        string
	RequestsPerMin int
	Timeout        time.Duration
}

// NewNewsClient creates a news API client.
func NewNewsClient(cfg NewsClientConfig) *NewsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = newsAPIDefaultTimeout
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = newsAPIDefaultRPM
	}

	return &NewsClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rpm)/secondsPerMinute), 1),
	}
}

// Headlines returns top headlines, optionally scoped to a domain or a category.
func (c *NewsClient) Headlines(ctx context.Context, q NewsQuery) ([]Entry, error) {
	params := c.baseParams(q)

	if q.Domain != "" {
		params.Set(newsAPIParamDomains, q.Domain)
	}

	if q.Category != "" {
		params.Set(newsAPIParamCategory, q.Category)
	}

	return c.get(ctx, newsAPIPathHeadlines, params, q)
}

// Search returns articles matching a free-text term.
func (c *NewsClient) Search(ctx context.Context, q NewsQuery) ([]Entry, error) {
	params := c.baseParams(q)
	params.Set(newsAPIParamQuery, q.Term)

	return c.get(ctx, newsAPIPathSearch, params, q)
}

func (c *NewsClient) baseParams(q NewsQuery) url.Values {
	params := url.Values{}
	params.Set(newsAPIParamKey, c.apiKey)

	if q.Language != "" {
		params.Set(newsAPIParamLanguage, q.Language)
	}

	if q.Max > 0 {
		params.Set(newsAPIParamMax, strconv.Itoa(q.Max))
	}

	return params
}

func (c *NewsClient) get(ctx context.Context, path string, params url.Values, q NewsQuery) ([]Entry, error) {
	if c.apiKey == "" {
		return nil, errNewsAPIDisabled
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("news api rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create news api request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news api request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, newsAPIMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read news api response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errNewsAPIRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		if err := checkNewsAPIError(body); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %d", errNewsAPIUnexpectedStatus, resp.StatusCode)
	}

	return parseNewsResponse(body, q)
}

type newsAPIResponse struct {
	TotalArticles int              `json:"totalArticles"` //nolint:tagliatelle // GNews uses camelCase
	Articles      []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"publishedAt"` //nolint:tagliatelle // GNews uses camelCase
	Source      struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"source"`
}

type newsAPIErrorBody struct {
	Errors []string `json:"errors"`
}

// checkNewsAPIError returns an error when the body carries an API error list.
func checkNewsAPIError(body []byte) error {
	var errResp newsAPIErrorBody
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil //nolint:nilerr // not an error body
	}

	if len(errResp.Errors) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", errNewsAPIError, strings.Join(errResp.Errors, "; "))
}

func parseNewsResponse(body []byte, q NewsQuery) ([]Entry, error) {
	if err := checkNewsAPIError(body); err != nil {
		return nil, err
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse news api json: %w", err)
	}

	entries := make([]Entry, 0, len(resp.Articles))

	for _, a := range resp.Articles {
		text := a.Content
		if strings.TrimSpace(text) == "" {
			text = a.Description
		}

		entry := Entry{
			URL:      strings.TrimSpace(a.URL),
			Title:    strings.TrimSpace(a.Title),
			Body:     cleanText(text),
			ImageURL: a.Image,
			Language: q.Language,
			Category: q.Category,
		}

		if a.PublishedAt != "" {
			if t, err := dateparse.ParseAny(a.PublishedAt); err == nil {
				entry.PublishedAt = t
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
