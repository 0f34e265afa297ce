package llm

import "time"

// Sliding window spans.
const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour

	windowMinuteSuffix = ":minute"
	windowDaySuffix    = ":day"

	// minThrottleWait is the shortest sleep when the oldest reservation is about to expire.
	minThrottleWait = 10 * time.Millisecond
)

// Tier groups used for rate limiting.
const (
	GroupPremium  = "premium"
	GroupStandard = "standard"
	GroupFallback = "fallback"
	GroupDefault  = "default"
)

// Model name constants.
const (
	ModelGeminiPro       = "gemini-2.5-pro"
	ModelGeminiFlash     = "gemini-2.5-flash"
	ModelGeminiFlashLite = "gemini-2.5-flash-lite"
	ModelLastResort      = "gemini-2.0-flash"
)

// Model mapping strings
const (
	modelPrefixGPT     = "gpt"
	modelPartPro       = "pro"
	modelPartFlashLite = "flash-lite"
	modelPartLite      = "lite"
	modelPartNano      = "nano"
	modelPartFlash     = "flash"
	modelPartMini      = "mini"
)

// Probe request.
const (
	probePrompt    = "ping"
	probeMaxTokens = 8
)

// Selection thresholds.
const (
	longDocumentWords    = 2000
	veryLowReadingLevel  = 30
	defaultFailureLimit  = 3
	defaultProbeDeadline = 15 * time.Second
)

// Log key strings
const (
	logKeyModel  = "model"
	logKeyTier   = "tier"
	logKeyGroup  = "group"
	logKeyWait   = "wait"
	logKeyReason = "reason"
	logKeyCount  = "failures"
)

// Failure reasons recorded against models.
const (
	ReasonQuota      = "quota"
	ReasonNotFound   = "not_found"
	ReasonEmpty      = "empty_response"
	ReasonValidation = "validation"
	ReasonUnexpected = "unexpected"
)
