package similarity

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Lowercase", input: "The Matrix", want: "the matrix"},
		{name: "Diacritics stripped", input: "Amélie", want: "amelie"},
		{name: "Punctuation dropped", input: "Mission: Impossible - Fallout", want: "mission impossible fallout"},
		{name: "Whitespace collapsed", input: "  The   Godfather  ", want: "the godfather"},
		{name: "Apostrophe", input: "Ocean's Eleven", want: "oceans eleven"},
		{name: "Empty", input: "", want: ""},
		{name: "Only punctuation", input: "?!...", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Normalizing an already normalized string must be a no-op; the matcher
// normalizes titles coming from several places and cannot care about order.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The Matrix",
		"Amélie",
		"Mission: Impossible - Fallout",
		"Léon: The Professional",
		"WALL·E",
		"",
	}
	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestFuzzy(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		minScore float64
		maxScore float64
	}{
		{name: "Identical", s1: "the matrix", s2: "the matrix", minScore: 1.0, maxScore: 1.0},
		{name: "Containment", s1: "the dark knight", s2: "dark knight", minScore: 0.85, maxScore: 0.85},
		{name: "One edit", s1: "heat", s2: "heal", minScore: 0.7, maxScore: 0.8},
		{name: "Different", s1: "the matrix", s2: "inception", minScore: 0.0, maxScore: 0.3},
		{name: "Empty right", s1: "the matrix", s2: "", minScore: 0.0, maxScore: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuzzy(tt.s1, tt.s2)
			if got < tt.minScore || got > tt.maxScore {
				t.Fatalf("Fuzzy(%q, %q) = %v, want in [%v, %v]", tt.s1, tt.s2, got, tt.minScore, tt.maxScore)
			}
		})
	}
}

func TestFuzzySelfSimilarity(t *testing.T) {
	for _, s := range []string{"a", "the matrix", "amelie", "12 angry men"} {
		if got := Fuzzy(s, s); got != 1.0 {
			t.Fatalf("Fuzzy(%q, %q) = %v, want 1.0", s, s, got)
		}
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1   string
		s2   string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.s1, tt.s2); got != tt.want {
			t.Fatalf("levenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}
