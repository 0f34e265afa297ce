package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`
	SourcesFile string `env:"SOURCES_FILE" envDefault:""`

	Database    DatabaseConfig
	Cache       CacheConfig
	LLM         LLMConfig
	RateLimits  RateLimitConfig
	Acquisition AcquisitionConfig
	Tasks       TaskConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	cfg.Tasks.PaywallKeywords = normalizeKeywords(cfg.Tasks.PaywallKeywords)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Acquisition.MaxArticlesPerCycle <= 0 {
		return fmt.Errorf("%w: ACQUISITION_MAX_ARTICLES must be positive", errInvalidConfig)
	}

	if c.Tasks.MaxAttempts <= 0 {
		return fmt.Errorf("%w: TASK_MAX_ATTEMPTS must be positive", errInvalidConfig)
	}

	if p := c.Acquisition.TrendingProbability; p < 0 || p > 1 {
		return fmt.Errorf("%w: ACQUISITION_TRENDING_PROBABILITY must be within [0,1]", errInvalidConfig)
	}

	return nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))

	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}

	return out
}

// IsLocal reports whether the process runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

// TierLimits returns the RPM/RPD pair configured for a tier group.
func (c RateLimitConfig) TierLimits(group string) (rpm, rpd int) {
	switch group {
	case "premium":
		return c.PremiumRPM, c.PremiumRPD
	case "standard":
		return c.StandardRPM, c.StandardRPD
	case "fallback":
		return c.FallbackRPM, c.FallbackRPD
	default:
		return c.DefaultRPM, c.DefaultRPD
	}
}
