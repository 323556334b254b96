package similarity

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// Normalize lowercases a title, strips diacritics and punctuation, and
// collapses runs of whitespace. Two titles that normalize to the same
// string are considered an exact match by the catalog matcher.
func Normalize(s string) string {
	s = unidecode.Unidecode(s)

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		} else if unicode.IsSpace(r) {
			result.WriteRune(' ')
		}
		// Punctuation is dropped entirely.
	}

	return strings.TrimSpace(strings.Join(strings.Fields(result.String()), " "))
}

// Fuzzy calculates the similarity between two already-normalized strings
// using Levenshtein distance. Returns a value between 0.0 (completely
// different) and 1.0 (identical). Containment ("Dark Knight" inside
// "The Dark Knight") scores a flat 0.85 so article and subtitle variants
// stay above the matcher's fuzzy tiers.
func Fuzzy(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	if strings.Contains(s1, s2) || strings.Contains(s2, s1) {
		return 0.85
	}

	distance := levenshteinDistance(s1, s2)
	maxLen := max(len(s1), len(s2))

	return 1.0 - float64(distance)/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	len1 := len(r1)
	len2 := len(r2)

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
	}

	for i := 0; i <= len1; i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len1][len2]
}
