// Package suggest offers "did you mean" candidates for mistyped entity
// names and config keys.
package suggest

import (
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

// maxSuggestions caps how many candidates are returned.
const maxSuggestions = 3

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// normalize folds case and drops separators so drug_batches, drug-batches
// and DrugBatches compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", "-", "", ".", "", " ", "").Replace(s)
}

// Closest returns up to three candidates similar to unknown, best first.
// Near misses by edit distance come first, then candidates that contain the
// input as a fuzzy subsequence (so "batch" finds drugBatches).
func Closest(unknown string, candidates []string) []string {
	if unknown == "" {
		return nil
	}
	want := normalize(unknown)

	type scored struct {
		value string
		dist  int
	}
	var close []scored
	for _, c := range candidates {
		dist := levenshtein(want, normalize(c))
		if dist <= max(2, len(want)/3) {
			close = append(close, scored{c, dist})
		}
	}
	slices.SortStableFunc(close, func(a, b scored) int { return a.dist - b.dist })

	var out []string
	for _, s := range close {
		out = append(out, s.value)
	}

	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = normalize(c)
	}
	for _, m := range fuzzy.Find(want, normalized) {
		if c := candidates[m.Index]; !slices.Contains(out, c) {
			out = append(out, c)
		}
	}

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// Hint formats suggestions as a one-line hint, or "" when there are none.
func Hint(unknown string, candidates []string) string {
	s := Closest(unknown, candidates)
	if len(s) == 0 {
		return ""
	}
	return "Did you mean: " + strings.Join(s, ", ") + "?"
}
