package textutil

import (
	"math"
	"strings"
	"unicode"
)

// minTokenLen drops single-character noise such as the "s" left by "Gintama's".
const minTokenLen = 2

// Fingerprint represents a term-frequency vector for title comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// Tokenize splits text into lowercase letter/digit runs, filtering short tokens.
// Non-Latin scripts are kept so romaji and kana titles tokenize alike.
func Tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) < minTokenLen {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}
