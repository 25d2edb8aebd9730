package search_engine

import (
	"sort"
	"strings"

	"github.com/markdave123-py/docsift/internal/models"
)

// SanitizeQuery drops every rune outside printable ASCII (0x20-0x7E) and
// trims the result on both sides. Removed runes are not replaced, so inner
// neighbours collapse.
func SanitizeQuery(raw string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, strings.TrimSpace(raw)))
}

// KeywordScore counts the distinct query tokens found in content and divides
// by the total number of query tokens, repeats included: "margin margin"
// against a text holding "margin" scores 0.5.
func KeywordScore(content, query string) float64 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(content)) {
		contentTokens[tok] = struct{}{}
	}
	matched := 0
	seen := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := contentTokens[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// Rank scores candidates with distance - keyword score, sorts ascending and
// keeps the first k (k <= 0 keeps all). Equal scores keep index order.
func Rank(candidates []models.SearchCandidate, query string, k int) []models.SearchResult {
	out := make([]models.SearchResult, len(candidates))
	for i, c := range candidates {
		kw := KeywordScore(c.Content, query)
		out[i] = models.SearchResult{
			SearchCandidate: c,
			KeywordScore:    kw,
			HybridScore:     c.Distance - kw,
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].HybridScore < out[b].HybridScore
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
