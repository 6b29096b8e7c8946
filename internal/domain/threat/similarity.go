package threat

import (
	"strings"
	"unicode"
)

// Duplicate-detection thresholds.  Titles tolerate more variance than
// descriptions because LLMs paraphrase headings aggressively.
const (
	TitleSimilarityThreshold       = 0.7
	DescriptionSimilarityThreshold = 0.8
)

// Tokenize lowercases s and splits it on any non-word rune, returning the
// resulting token set.
func Tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard computes the Jaccard index of the token sets of a and b.
// Two empty strings are not considered similar: the result is 0.
func Jaccard(a, b string) float64 {
	sa, sb := Tokenize(a), Tokenize(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// IsDuplicate reports whether candidate matches any record in existing.
// A match is an exact case-insensitive title, a title Jaccard index above
// TitleSimilarityThreshold, or a description Jaccard index above
// DescriptionSimilarityThreshold.
func IsDuplicate(candidate Record, existing []Record) bool {
	for _, e := range existing {
		if candidate.Title != "" && strings.EqualFold(candidate.Title, e.Title) {
			return true
		}
	}
	for _, e := range existing {
		if candidate.Title != "" && e.Title != "" &&
			Jaccard(candidate.Title, e.Title) > TitleSimilarityThreshold {
			return true
		}
		if candidate.Description != "" && e.Description != "" &&
			Jaccard(candidate.Description, e.Description) > DescriptionSimilarityThreshold {
			return true
		}
	}
	return false
}
