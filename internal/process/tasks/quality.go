package tasks

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
	"github.com/lueurxax/news-quiz/internal/process/analysis"
)

const (
	fullLengthChars   = 3000
	lengthWeight      = 0.6
	structureWeight   = 0.4
	idealMinSentence  = 8.0
	idealMaxSentence  = 25.0
	sentencePenaltyAt = 60.0
)

// QualityScore rates a body in [0,1] from its length and sentence structure.
func QualityScore(text string) float64 {
	chars := utf8.RuneCountInString(strings.TrimSpace(text))
	if chars == 0 {
		return 0
	}

	length := math.Min(1, float64(chars)/fullLengthChars)

	stats := analysis.ComputeStats(text)
	avg := stats.AvgSentenceWords()

	var structure float64

	switch {
	case avg >= idealMinSentence && avg <= idealMaxSentence:
		structure = 1
	case avg < idealMinSentence:
		structure = avg / idealMinSentence
	default:
		structure = math.Max(0, 1-(avg-idealMaxSentence)/(sentencePenaltyAt-idealMaxSentence))
	}

	return math.Round((lengthWeight*length+structureWeight*structure)*1000) / 1000
}

// CheckQuality applies the content gate: a minimum character count and a
// paywall keyword denylist. keywords must be lower-case.
func CheckQuality(text string, minChars int, keywords []string) error {
	chars := utf8.RuneCountInString(strings.TrimSpace(text))
	if chars < minChars {
		return fmt.Errorf("%w: %d characters, need %d", apperrors.ErrContentRejected, chars, minChars)
	}

	lower := strings.ToLower(text)

	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return fmt.Errorf("%w: paywall marker %q", apperrors.ErrContentRejected, kw)
		}
	}

	return nil
}
