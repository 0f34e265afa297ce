package config

import (
	"errors"
	"time"
)

var errInvalidConfig = errors.New("invalid config")

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string        `env:"POSTGRES_DSN,required"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// CacheConfig holds the shared quota/lock cache settings.
// An empty RedisURL selects the in-process backend.
type CacheConfig struct {
	RedisURL          string        `env:"REDIS_URL" envDefault:""`
	LockTTL           time.Duration `env:"CACHE_LOCK_TTL" envDefault:"30m"`
	UsageTTL          time.Duration `env:"CACHE_USAGE_TTL" envDefault:"24h"`
	TopicTTL          time.Duration `env:"CACHE_TOPIC_TTL" envDefault:"48h"`
	SourceStatusTTL   time.Duration `env:"CACHE_SOURCE_STATUS_TTL" envDefault:"24h"`
	DuplicateTTL      time.Duration `env:"CACHE_DUPLICATE_TTL" envDefault:"72h"`
	DuplicateCap      int64         `env:"CACHE_DUPLICATE_CAP" envDefault:"10000"`
	TrendingTTL       time.Duration `env:"CACHE_TRENDING_TTL" envDefault:"24h"`
	FailureTTL        time.Duration `env:"CACHE_MODEL_FAILURE_TTL" envDefault:"6h"`
	SharedModelState  bool          `env:"CACHE_SHARED_MODEL_STATE" envDefault:"true"`
	AnalysisQueueName string        `env:"ANALYSIS_QUEUE_NAME" envDefault:"analysis_queue"`
}

// LLMConfig holds generation backend settings.
type LLMConfig struct {
	GoogleAPIKey     string        `env:"GOOGLE_API_KEY" envDefault:""`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	FailureThreshold int           `env:"LLM_FAILURE_THRESHOLD" envDefault:"3"`
	ProbeTimeout     time.Duration `env:"LLM_PROBE_TIMEOUT" envDefault:"15s"`
	RequestTimeout   time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"90s"`
	TopP             float32       `env:"LLM_TOP_P" envDefault:"0.95"`
	TopK             int32         `env:"LLM_TOP_K" envDefault:"40"`

	// HighEffortSources are source hosts whose documents prefer the premium tier.
	HighEffortSources []string `env:"LLM_HIGH_EFFORT_SOURCES" envSeparator:"," envDefault:"gutenberg.org,longreads.com,newyorker.com"`
}

// RateLimitConfig holds per tier group request limits. Provider quotas change, so
// these stay configuration.
type RateLimitConfig struct {
	PremiumRPM  int `env:"RATE_LIMIT_PREMIUM_RPM" envDefault:"5"`
	PremiumRPD  int `env:"RATE_LIMIT_PREMIUM_RPD" envDefault:"100"`
	StandardRPM int `env:"RATE_LIMIT_STANDARD_RPM" envDefault:"10"`
	StandardRPD int `env:"RATE_LIMIT_STANDARD_RPD" envDefault:"250"`
	FallbackRPM int `env:"RATE_LIMIT_FALLBACK_RPM" envDefault:"15"`
	FallbackRPD int `env:"RATE_LIMIT_FALLBACK_RPD" envDefault:"1000"`
	DefaultRPM  int `env:"RATE_LIMIT_DEFAULT_RPM" envDefault:"10"`
	DefaultRPD  int `env:"RATE_LIMIT_DEFAULT_RPD" envDefault:"500"`
}

// AcquisitionConfig holds source orchestrator settings.
type AcquisitionConfig struct {
	MaxArticlesPerCycle  int           `env:"ACQUISITION_MAX_ARTICLES" envDefault:"20"`
	CycleInterval        time.Duration `env:"ACQUISITION_INTERVAL" envDefault:"1h"`
	CuratedPerCall       int           `env:"ACQUISITION_CURATED_PER_CALL" envDefault:"10"`
	OpportunisticPerCall int           `env:"ACQUISITION_OPPORTUNISTIC_PER_CALL" envDefault:"10"`
	TrendingProbability  float64       `env:"ACQUISITION_TRENDING_PROBABILITY" envDefault:"0.8"`
	TrendingTerms        int           `env:"ACQUISITION_TRENDING_TERMS" envDefault:"3"`
	MinBodyChars         int           `env:"ACQUISITION_MIN_BODY_CHARS" envDefault:"80"`
	FeedTimeout          time.Duration `env:"ACQUISITION_FEED_TIMEOUT" envDefault:"20s"`
	UserAgent            string        `env:"ACQUISITION_USER_AGENT" envDefault:"NewsQuiz/1.0 (+feed reader)"`

	NewsAPIKey        string        `env:"NEWS_API_KEY" envDefault:""`
	NewsAPIBaseURL    string        `env:"NEWS_API_BASE_URL" envDefault:"https://gnews.io/api/v4"`
	NewsAPIDailyLimit int           `env:"NEWS_API_DAILY_LIMIT" envDefault:"100"`
	NewsAPIRPM        int           `env:"NEWS_API_RPM" envDefault:"30"`
	NewsAPITimeout    time.Duration `env:"NEWS_API_TIMEOUT" envDefault:"30s"`
}

// TaskConfig holds task/retry controller settings.
type TaskConfig struct {
	MaxAttempts      int           `env:"TASK_MAX_ATTEMPTS" envDefault:"3"`
	RetryCooldown    time.Duration `env:"TASK_RETRY_COOLDOWN" envDefault:"30s"`
	MinContentChars  int           `env:"TASK_MIN_CONTENT_CHARS" envDefault:"500"`
	PaywallKeywords  []string      `env:"TASK_PAYWALL_KEYWORDS" envSeparator:"," envDefault:"subscribe to continue,subscribers only,already a subscriber,sign in to read,create a free account to continue,this content is for members"`
	FetchTimeout     time.Duration `env:"TASK_FETCH_TIMEOUT" envDefault:"30s"`
	FetchRPS         float64       `env:"TASK_FETCH_RPS" envDefault:"2"`
	MaxContentChars  int           `env:"TASK_MAX_CONTENT_CHARS" envDefault:"20000"`
	Concurrency      int           `env:"TASK_CONCURRENCY" envDefault:"2"`
	QueuePollTimeout time.Duration `env:"TASK_QUEUE_POLL_TIMEOUT" envDefault:"5s"`
	SweepInterval    time.Duration `env:"TASK_SWEEP_INTERVAL" envDefault:"10m"`
	StaleAfter       time.Duration `env:"TASK_STALE_AFTER" envDefault:"30m"`
	SweepLimit       uint64        `env:"TASK_SWEEP_LIMIT" envDefault:"50"`
}
