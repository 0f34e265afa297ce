package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

// Schema limits.
const (
	optionsPerQuestion = 4
	maxTags            = 7
	codeFence          = "```"
)

var lowerCaser = cases.Lower(language.Und)

type reply struct {
	Quiz []domain.QuizQuestion `json:"quiz"`
	Tags []string              `json:"tags"`
}

// stripFences removes a surrounding Markdown code fence and its language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, codeFence) {
		return text
	}

	text = strings.TrimPrefix(text, codeFence)

	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}

	text = strings.TrimSpace(text)

	return strings.TrimSpace(strings.TrimSuffix(text, codeFence))
}

// extractJSON returns the outermost JSON object of text, or text when it has none.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start != -1 && end > start {
		return text[start : end+1]
	}

	return text
}

// ParseReply decodes and validates a generation reply into the quiz payload.
func ParseReply(raw string) (domain.AnalysisResult, error) {
	body := extractJSON(stripFences(raw))

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: decode reply: %w", apperrors.ErrValidation, err)
	}

	return Validate(r.Quiz, r.Tags)
}

// Validate checks the quiz schema and returns the normalised payload.
func Validate(quiz []domain.QuizQuestion, tags []string) (domain.AnalysisResult, error) {
	if len(quiz) < MinQuestions || len(quiz) > MaxQuestions {
		return domain.AnalysisResult{}, fmt.Errorf("%w: quiz has %d questions, want %d-%d",
			apperrors.ErrValidation, len(quiz), MinQuestions, MaxQuestions)
	}

	out := make([]domain.QuizQuestion, len(quiz))

	for i, q := range quiz {
		clean, err := validateQuestion(q)
		if err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("%w: question %d: %w", apperrors.ErrValidation, i+1, err)
		}

		out[i] = clean
	}

	cleanTags := CleanTags(tags)
	if len(cleanTags) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("%w: no valid tags", apperrors.ErrValidation)
	}

	return domain.AnalysisResult{Quiz: out, Tags: cleanTags}, nil
}

func validateQuestion(q domain.QuizQuestion) (domain.QuizQuestion, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return q, errBlankQuestion
	}

	if len(q.Options) != optionsPerQuestion {
		return q, fmt.Errorf("%w: got %d", errOptionCount, len(q.Options))
	}

	options := make([]string, len(q.Options))
	seen := make(map[string]bool, len(q.Options))
	literal := make(map[string]bool, len(q.Options))

	for i, opt := range q.Options {
		literal[opt] = true

		opt = strings.TrimSpace(opt)
		if opt == "" {
			return q, errBlankOption
		}

		if seen[opt] {
			return q, fmt.Errorf("%w: %q", errDuplicateOption, opt)
		}

		seen[opt] = true
		options[i] = opt
	}

	// The answer must match an option exactly as the model wrote it.
	if !literal[q.Answer] {
		return q, fmt.Errorf("%w: %q", errAnswerNotOption, q.Answer)
	}

	return domain.QuizQuestion{Question: question, Options: options, Answer: strings.TrimSpace(q.Answer)}, nil
}

// CleanTags trims, collapses whitespace, lower-cases and NFC-normalises tags,
// dropping blanks and duplicates and keeping at most seven.
func CleanTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), maxTags))
	seen := make(map[string]bool, len(tags))

	for _, tag := range tags {
		tag = strings.Join(strings.Fields(norm.NFC.String(tag)), " ")
		tag = lowerCaser.String(tag)

		if tag == "" || seen[tag] {
			continue
		}

		seen[tag] = true
		out = append(out, tag)

		if len(out) == maxTags {
			break
		}
	}

	return out
}
