// Package textutil provides the string similarity measures used for title
// matching.
//
// The primary use cases are:
//   - Normalized Levenshtein similarity for near-identical titles
//   - Token fingerprints and cosine similarity for reordered or partial titles
//
// Both measures are symmetric and return values in [0, 1] where 1 means
// identical input.
package textutil
