package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxScore is given to an entry whose content is exactly the query.
	MaxScore = 1.0
	// PartialWeight caps the score of entries that do not contain the query verbatim.
	PartialWeight = 0.99
	// DefaultMinScore excludes entries sharing less than about half the query's characters.
	DefaultMinScore = 0.5
)

// scorer rates content against one query. Build it once per search.
type scorer struct {
	query    string
	queryLen int
	runes    []rune
}

func newScorer(query string) *scorer {
	seen := make(map[rune]struct{})
	var runes []rune
	for _, r := range query {
		if unicode.IsSpace(r) {
			continue
		}
		r = unicode.ToLower(r)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		runes = append(runes, r)
	}
	return &scorer{
		query:    query,
		queryLen: utf8.RuneCountInString(query),
		runes:    runes,
	}
}

// score returns a value in [0, 1]. Content holding the query verbatim scores
// above PartialWeight, reaching MaxScore when the content is the query itself.
// Otherwise the score is the share of distinct query characters found anywhere
// in the content, case-folded, scaled by PartialWeight.
func (s *scorer) score(content string) float64 {
	if s.query == "" || len(s.runes) == 0 {
		return 0
	}
	if content == s.query {
		return MaxScore
	}
	if strings.Contains(content, s.query) {
		density := float64(s.queryLen) / float64(utf8.RuneCountInString(content))
		return PartialWeight + (MaxScore-PartialWeight)*density
	}
	folded := strings.ToLower(content)
	hits := 0
	for _, r := range s.runes {
		if strings.ContainsRune(folded, r) {
			hits++
		}
	}
	return PartialWeight * float64(hits) / float64(len(s.runes))
}
