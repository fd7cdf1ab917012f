package textutil

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	score := dot / (a.norm * b.norm)
	if score > 1 {
		return 1
	}
	return score
}

// TokenCosine fingerprints both strings and returns their cosine similarity.
func TokenCosine(a, b string) float64 {
	if a == b {
		return 1
	}
	return CosineSimilarity(NewFingerprint(a), NewFingerprint(b))
}

// NormalizedLevenshtein returns 1 - distance/maxLen over runes, so identical
// strings (including two empty strings) score 1 and disjoint strings score 0.
func NormalizedLevenshtein(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}
