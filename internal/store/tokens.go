package store

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and extracts alphanumeric tokens of at least four
// characters. Token overlap on these is the store's relevance primitive for
// knowledge dedup and episode retrieval.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 4 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// tokenSet builds a set from Tokenize output.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// overlap counts tokens present in both sets.
func overlap(a map[string]struct{}, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

// OverlapThreshold is the overlap required for two texts to be considered
// the same fact: two shared tokens, or every token when the query has fewer
// than two.
func OverlapThreshold(tokens map[string]struct{}) int {
	if len(tokens) < 2 {
		return len(tokens)
	}
	return 2
}
