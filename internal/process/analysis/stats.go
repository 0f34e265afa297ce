package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Question count bounds and multipliers.
const (
	MinQuestions = 5
	MaxQuestions = 30

	wordsPerQuestion      = 150
	denseSentenceWords    = 25
	denseSentenceFactor   = 1.2
	structuredParagraphs  = 8
	structuredFactor      = 1.1
	maxEntityCandidates   = 15
	defaultReadingEase    = 100.0
	fleschBase            = 206.835
	fleschSentenceWeight  = 1.015
	fleschSyllableWeight  = 84.6
	minEntityCandidateLen = 3
)

var (
	sentenceEnd    = regexp.MustCompile(`[.!?]+(\s|$)`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

// Stats summarises the shape of a document.
type Stats struct {
	Words      int
	Sentences  int
	Paragraphs int
	Syllables  int
}

// ComputeStats counts words, sentences, paragraphs and syllables.
func ComputeStats(text string) Stats {
	words := strings.Fields(text)

	s := Stats{Words: len(words)}
	if s.Words == 0 {
		return s
	}

	s.Sentences = len(sentenceEnd.FindAllStringIndex(text, -1))
	if s.Sentences == 0 {
		s.Sentences = 1
	}

	for _, block := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		if strings.TrimSpace(block) != "" {
			s.Paragraphs++
		}
	}

	// Single newlines separate paragraphs in extracted page text.
	if s.Paragraphs <= 1 {
		lines := 0

		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				lines++
			}
		}

		s.Paragraphs = max(s.Paragraphs, lines)
	}

	for _, w := range words {
		s.Syllables += syllables(w)
	}

	return s
}

// AvgSentenceWords is the mean number of words per sentence.
func (s Stats) AvgSentenceWords() float64 {
	if s.Sentences == 0 {
		return 0
	}

	return float64(s.Words) / float64(s.Sentences)
}

// ReadingEase is the Flesch reading-ease score. Lower is harder.
func (s Stats) ReadingEase() float64 {
	if s.Words == 0 {
		return defaultReadingEase
	}

	return fleschBase -
		fleschSentenceWeight*s.AvgSentenceWords() -
		fleschSyllableWeight*(float64(s.Syllables)/float64(s.Words))
}

// QuestionCount derives how many questions a document supports.
func QuestionCount(s Stats) int {
	count := float64(clamp(s.Words/wordsPerQuestion, MinQuestions, MaxQuestions))

	if s.AvgSentenceWords() > denseSentenceWords {
		count *= denseSentenceFactor
	}

	if s.Paragraphs >= structuredParagraphs {
		count *= structuredFactor
	}

	return clamp(int(math.Round(count)), MinQuestions, MaxQuestions)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// syllables estimates syllables as groups of vowels, dropping a silent final e.
func syllables(word string) int {
	word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) }))
	if word == "" {
		return 0
	}

	count := 0
	prevVowel := false

	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}

		prevVowel = v
	}

	if strings.HasSuffix(word, "e") && count > 1 && !strings.HasSuffix(word, "le") {
		count--
	}

	return max(count, 1)
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouyáéíóúàèìòùâêîôûäëïöüãõ", r)
}

// EntityCandidates extracts capitalised phrases that do not start a sentence.
// They are passed to the prompt as tag hints, most frequent first.
func EntityCandidates(text string) []string {
	counts := make(map[string]int)

	var order []string

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)

		var run []string

		flush := func() {
			if len(run) > 0 {
				phrase := strings.Join(run, " ")
				if len([]rune(phrase)) >= minEntityCandidateLen {
					if counts[phrase] == 0 {
						order = append(order, phrase)
					}

					counts[phrase]++
				}
			}

			run = run[:0]
		}

		for i, raw := range words {
			w := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if i == 0 || w == "" || !startsUpper(w) {
				flush()
				continue
			}

			run = append(run, w)

			if strings.ContainsAny(raw[len(raw)-1:], ",;:") {
				flush()
			}
		}

		flush()
	}

	// Equal counts keep first appearance order.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > maxEntityCandidates {
		order = order[:maxEntityCandidates]
	}

	return order
}

func splitSentences(text string) []string {
	idx := sentenceEnd.FindAllStringIndex(text, -1)

	out := make([]string, 0, len(idx)+1)
	start := 0

	for _, loc := range idx {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}

	if start < len(text) {
		out = append(out, text[start:])
	}

	return out
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}
