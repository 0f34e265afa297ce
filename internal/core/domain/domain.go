package domain

import "time"

// ProcessingStatus is the lifecycle state of an Article.
// Transitions are pending->complete and pending->failed only.
type ProcessingStatus string

// Processing status constants.
const (
	StatusPending  ProcessingStatus = "pending"
	StatusComplete ProcessingStatus = "complete"
	StatusFailed   ProcessingStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// AcquisitionSource records how an Article entered the system.
type AcquisitionSource string

// Acquisition source constants.
const (
	SourceManual           AcquisitionSource = "manual"
	SourceRSS              AcquisitionSource = "rss"
	SourceCuratedAPI       AcquisitionSource = "curated-api"
	SourceOpportunisticAPI AcquisitionSource = "opportunistic-api"
)

// Article is an acquired document and its analysis outcome.
type Article struct {
	ID                  int64
	URL                 string
	Title               string
	Text                string
	Language            string
	ImageURL            string
	Status              ProcessingStatus
	AcquisitionSource   AcquisitionSource
	Category            string
	Geography           string
	ContentQualityScore float64
	DuplicateCheckHash  string
	Quiz                []QuizQuestion
	Tags                []string
	FailureReason       string
	CreatedAt           time.Time
	ProcessedAt         time.Time
}

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// AnalysisResult is the validated payload produced for one Article.
type AnalysisResult struct {
	Quiz  []QuizQuestion `json:"quiz"`
	Tags  []string       `json:"tags"`
	Model string         `json:"-"`
}

// AcquisitionLog summarises one acquisition cycle or one layer of it.
type AcquisitionLog struct {
	ID                   string
	Layer                string
	Acquired             int
	Processed            int
	Rejected             int
	APICalls             int
	Elapsed              time.Duration
	LanguageDistribution map[string]int
	TopicDistribution    map[string]int
	CreatedAt            time.Time
}
