package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key prefixes.
const (
	keyAPIUsage       = "api_usage:"
	keyTopicCounts    = "topic_counts:"
	keySourceStatus   = "source_status:"
	keyLock           = "lock:"
	keyDuplicates     = "duplicate_hashes"
	keyTrendingTags   = "trending_tags:"
	keyRateWindow     = "rate_window:"
	keyModelFailures  = "model_failures:"
	dateLayout        = "2006-01-02"
	lockHolderValue   = "1"
	failureReasonPart = ":reason"
)

// Config holds the TTLs and caps for cache-backed records. All values are
// configuration constants; none are derived at runtime.
type Config struct {
	UsageTTL        time.Duration
	TopicTTL        time.Duration
	SourceStatusTTL time.Duration
	DuplicateTTL    time.Duration
	DuplicateCap    int64
	TrendingTTL     time.Duration
}

// SourceStatus is the last observed health of an acquisition source.
type SourceStatus struct {
	OK        bool      `json:"ok"`
	Articles  int       `json:"articles"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Cache exposes the typed records on top of a Backend.
type Cache struct {
	backend Backend
	cfg     Config
	now     func() time.Time
}

// New creates a Cache.
func New(backend Backend, cfg Config) *Cache {
	return &Cache{backend: backend, cfg: cfg, now: time.Now}
}

// Backend returns the underlying backend.
func (c *Cache) Backend() Backend {
	return c.backend
}

// Ping checks backend connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

// Usage returns the current daily usage counter for an API.
func (c *Cache) Usage(ctx context.Context, api string) (int64, error) {
	return c.readInt(ctx, keyAPIUsage+api)
}

// IncrementUsage increments the usage counter for an API.
func (c *Cache) IncrementUsage(ctx context.Context, api string) (int64, error) {
	return c.backend.IncrBy(ctx, keyAPIUsage+api, 1, c.cfg.UsageTTL)
}

// SetUsage overwrites the usage counter for an API.
func (c *Cache) SetUsage(ctx context.Context, api string, value int64) error {
	return c.backend.Set(ctx, keyAPIUsage+api, strconv.FormatInt(value, 10), c.cfg.UsageTTL)
}

// TopicCount returns the number of documents acquired for a language on a day.
func (c *Cache) TopicCount(ctx context.Context, language string, day time.Time) (int64, error) {
	return c.readInt(ctx, topicKey(language, day))
}

// IncrementTopic increments the per-language counter for a day.
func (c *Cache) IncrementTopic(ctx context.Context, language string, day time.Time) (int64, error) {
	return c.backend.IncrBy(ctx, topicKey(language, day), 1, c.cfg.TopicTTL)
}

func topicKey(language string, day time.Time) string {
	return keyTopicCounts + language + ":" + day.UTC().Format(dateLayout)
}

// SetSourceStatus records the last health observation of a source.
func (c *Cache) SetSourceStatus(ctx context.Context, source string, status SourceStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal source status: %w", err)
	}

	return c.backend.Set(ctx, keySourceStatus+source, string(data), c.cfg.SourceStatusTTL)
}

// GetSourceStatus returns the last observation of a source. ok is false when unknown.
func (c *Cache) GetSourceStatus(ctx context.Context, source string) (status SourceStatus, ok bool, err error) {
	raw, found, err := c.backend.Get(ctx, keySourceStatus+source)
	if err != nil || !found {
		return SourceStatus{}, false, err
	}

	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return SourceStatus{}, false, fmt.Errorf("unmarshal source status: %w", err)
	}

	return status, true, nil
}

// AcquireLock atomically takes a named lock. It returns false without blocking
// when another holder already has it. Callers must check the result.
func (c *Cache) AcquireLock(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	return c.backend.SetNX(ctx, keyLock+name, lockHolderValue, timeout)
}

// ReleaseLock deletes a named lock unconditionally.
func (c *Cache) ReleaseLock(ctx context.Context, name string) error {
	return c.backend.Del(ctx, keyLock+name)
}

// ContentHash returns the fixed-length digest used for duplicate detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether content was seen within the duplicate window and
// records it otherwise. Check and insert happen in one atomic add.
func (c *Cache) IsDuplicate(ctx context.Context, content string) (bool, error) {
	hash := ContentHash(content)
	now := c.now()

	if err := c.backend.ZRemRangeByScore(ctx, keyDuplicates, unixScore(now.Add(-c.cfg.DuplicateTTL))); err != nil {
		return false, err
	}

	added, err := c.backend.ZAddNX(ctx, keyDuplicates, hash, unixScore(now))
	if err != nil {
		return false, err
	}

	if added {
		if c.cfg.DuplicateCap > 0 {
			if err := c.backend.ZTrimOldest(ctx, keyDuplicates, c.cfg.DuplicateCap); err != nil {
				return false, err
			}
		}

		if err := c.backend.Expire(ctx, keyDuplicates, c.cfg.DuplicateTTL); err != nil {
			return false, err
		}
	}

	return !added, nil
}

// ForgetDuplicates removes content hashes recorded by IsDuplicate, so content
// whose documents were never stored is admitted again.
func (c *Cache) ForgetDuplicates(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}

	return c.backend.ZRem(ctx, keyDuplicates, hashes...)
}

// RecordTrendingTags bumps the trending score of each tag for a language.
func (c *Cache) RecordTrendingTags(ctx context.Context, language string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	key := keyTrendingTags + language

	for _, tag := range tags {
		if err := c.backend.ZIncrBy(ctx, key, tag, 1); err != nil {
			return err
		}
	}

	return c.backend.Expire(ctx, key, c.cfg.TrendingTTL)
}

// TrendingTags returns up to n tags for a language, highest score first.
func (c *Cache) TrendingTags(ctx context.Context, language string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	return c.backend.ZTop(ctx, keyTrendingTags+language, int64(n))
}

func (c *Cache) readInt(ctx context.Context, key string) (int64, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil //nolint:nilerr // missing or unreadable counters are treated as zero
	}

	return v, nil
}

func unixScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
