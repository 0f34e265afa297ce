package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
)

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testPostgresDSN, cfg.Database.PostgresDSN)
	assert.Equal(t, "local", cfg.AppEnv)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, 20, cfg.Acquisition.MaxArticlesPerCycle)
	assert.Equal(t, 30*time.Minute, cfg.Cache.LockTTL)
	assert.Equal(t, 3, cfg.Tasks.MaxAttempts)
	assert.Equal(t, 3, cfg.LLM.FailureThreshold)
	assert.Contains(t, cfg.Tasks.PaywallKeywords, "subscribers only")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("ACQUISITION_MAX_ARTICLES", "7")
	t.Setenv("RATE_LIMIT_PREMIUM_RPM", "2")
	t.Setenv("TASK_PAYWALL_KEYWORDS", " Members Only ,,PAYWALL")
	t.Setenv("TASK_RETRY_COOLDOWN", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Acquisition.MaxArticlesPerCycle)
	assert.Equal(t, []string{"members only", "paywall"}, cfg.Tasks.PaywallKeywords)
	assert.Equal(t, 5*time.Second, cfg.Tasks.RetryCooldown)

	rpm, rpd := cfg.RateLimits.TierLimits("premium")
	assert.Equal(t, 2, rpm)
	assert.Equal(t, 100, rpd)
}

func TestLoad_InvalidBudget(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("ACQUISITION_MAX_ARTICLES", "0")

	_, err := Load()
	require.ErrorIs(t, err, errInvalidConfig)
}

func TestTierLimits_UnknownGroupUsesDefault(t *testing.T) {
	cfg := RateLimitConfig{DefaultRPM: 4, DefaultRPD: 40}

	rpm, rpd := cfg.TierLimits("experimental")
	assert.Equal(t, 4, rpm)
	assert.Equal(t, 40, rpd)
}

func TestLoadSources(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		sources, err := LoadSources("")
		require.NoError(t, err)
		assert.NotEmpty(t, sources.CuratedDomains)
		assert.Equal(t, []string{"de", "en", "es", "fr"}, sources.FeedLanguages())
	})

	t.Run("file overrides only present sections", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sources.yaml")
		content := "feeds:\n  en:\n    - https://example.com/rss\ncurated_domains:\n  - example.com\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		sources, err := LoadSources(path)
		require.NoError(t, err)

		assert.Equal(t, map[string][]string{"en": {"https://example.com/rss"}}, sources.Feeds)
		assert.Equal(t, []string{"example.com"}, sources.CuratedDomains)
		assert.Equal(t, DefaultSources().Categories, sources.Categories)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("feeds: [unclosed"), 0o600))

		_, err := LoadSources(path)
		require.Error(t, err)
	})
}
