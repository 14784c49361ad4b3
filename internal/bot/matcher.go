package bot

import (
	"strings"

	"golang.org/x/text/cases"
)

// overlapThreshold is the minimum word-overlap score for a canned pair to
// count as a match when neither phrase contains the other.
const overlapThreshold = 0.6

// minWordLength excludes short glue words ("a", "is", "to") from the overlap
// score. Words of this length or shorter are ignored.
const minWordLength = 2

var fold = cases.Fold()

// Matcher scores user text against a room's canned trigger phrases.
type Matcher struct{}

// Match returns the best canned response for the text, if any pair matches.
// A pair matches when either phrase contains the other after case folding,
// or when their word overlap reaches the threshold. Ties go to the higher
// overlap score, substring matches outrank overlap matches.
func (Matcher) Match(text string, pairs []Pair) (string, bool) {
	folded := fold.String(text)

	bestScore := 0.0
	bestResponse := ""

	for _, pair := range pairs {
		question := fold.String(pair.Question)

		var score float64
		if strings.Contains(folded, question) || strings.Contains(question, folded) {
			score = 1.0
		} else {
			score = overlap(folded, question)
			if score < overlapThreshold {
				continue
			}
		}

		if score > bestScore {
			bestScore = score
			bestResponse = pair.Response
		}
	}

	return bestResponse, bestScore > 0
}

// overlap is the shared-word count divided by the longer phrase's word count,
// with short words excluded from both sides.
func overlap(a, b string) float64 {
	wordsA := significantWords(a)
	wordsB := significantWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}

	shared := 0
	counted := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if setA[w] && !counted[w] {
			shared++
			counted[w] = true
		}
	}

	longer := len(setA)
	if distinct := len(distinctWords(wordsB)); distinct > longer {
		longer = distinct
	}
	return float64(shared) / float64(longer)
}

func significantWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
	words := fields[:0]
	for _, w := range fields {
		if len([]rune(w)) > minWordLength {
			words = append(words, w)
		}
	}
	return words
}

func distinctWords(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= 0x80:
		// Non-ASCII stays part of the word so emoji and accented text are
		// matched as written.
		return true
	}
	return false
}
