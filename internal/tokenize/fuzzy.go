package tokenize

import (
	"github.com/agext/levenshtein"
)

// LevenshteinMatcher wraps agext/levenshtein behind the FuzzyMatcher
// interface, used both to enumerate candidate words from a search
// index's word list and to weight fuzzy hits per the relevance
// formula in the scorer.
type LevenshteinMatcher struct {
	params *levenshtein.Params
}

// NewLevenshteinMatcher returns the default FuzzyMatcher
// implementation, using the library's standard substitution/insertion/
// deletion cost parameters.
func NewLevenshteinMatcher() *LevenshteinMatcher {
	return &LevenshteinMatcher{params: levenshtein.NewParams()}
}

// Distance returns the edit distance between two already-normalized
// tokens.
func (m *LevenshteinMatcher) Distance(a, b string) int {
	return levenshtein.Distance(a, b, m.params)
}

// FuzzyWithin reports whether b is within the given edit distance of
// a fuzzy search term a — the predicate the selector's fast-leaf
// execution uses to pick candidate index words via getIndex.
func FuzzyWithin(m FuzzyMatcher, term, word string, maxDistance int) bool {
	if term == word {
		return true
	}
	return m.Distance(term, word) <= maxDistance
}
