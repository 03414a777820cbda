package knowledge

import (
	"math"
	"sort"
	"time"
)

// recencyHalfLifeDays is the half-life of the recency boost term, per spec.md §4.F.
const recencyHalfLifeDays = 7.0

// similarityWeight/recencyWeight combine into the final search score, per spec.md §4.F.
const (
	similarityWeight = 0.7
	recencyWeight    = 0.3
)

// Result is one scored search hit.
type Result struct {
	Entry *Entry
	Score float64
}

// SearchOptions narrows a query by namespace and the optional filters named in
// spec.md §4.F (sellerId, domain, outcome, category), and caps the results.
type SearchOptions struct {
	Namespace Namespace
	SellerID  string
	Domain    string
	Outcome   string
	Category  string
	Limit     int
}

func matchesFilters(e *Entry, opts SearchOptions) bool {
	if opts.SellerID != "" && e.SellerID != opts.SellerID {
		return false
	}
	if opts.Domain != "" && e.Domain != opts.Domain {
		return false
	}
	if opts.Outcome != "" && e.Outcome != opts.Outcome {
		return false
	}
	if opts.Category != "" && e.Category != opts.Category {
		return false
	}
	return true
}

// Search scores every candidate entry by weighted-Jaccard token overlap with
// the query, blended with a recency boost, and returns the top-K descending
// results with score > 0. An empty query falls back to the most recent
// matching entries.
func (s *Store) Search(query string, opts SearchOptions) []Result {
	s.mu.RLock()
	var candidateIDs []string
	if opts.Namespace != "" {
		candidateIDs = s.byNS[opts.Namespace]
	} else {
		for _, ids := range s.byNS {
			candidateIDs = append(candidateIDs, ids...)
		}
	}

	candidates := make([]*Entry, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		e, ok := s.entries[id]
		if !ok || !matchesFilters(e, opts) {
			continue
		}
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = len(candidates)
	}

	now := time.Now()

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Timestamp.After(candidates[j].Timestamp) })
		if limit > len(candidates) {
			limit = len(candidates)
		}
		out := make([]Result, 0, limit)
		for _, e := range candidates[:limit] {
			out = append(out, Result{Entry: e, Score: recencyBoost(e.Timestamp, now)})
		}
		return out
	}

	querySet := toTokenSet(queryTokens)

	results := make([]Result, 0, len(candidates))
	for _, e := range candidates {
		similarity := weightedJaccard(querySet, toTokenSet(e.Tokens))
		score := similarityWeight*similarity + recencyWeight*recencyBoost(e.Timestamp, now)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Entry: e, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > len(results) {
		limit = len(results)
	}
	return results[:limit]
}

func toTokenSet(tokens []string) map[string]int {
	set := make(map[string]int, len(tokens))
	for _, t := range tokens {
		set[t]++
	}
	return set
}

// weightedJaccard is |intersection weighted by min count| / |union weighted
// by max count|, per spec.md §4.F.
func weightedJaccard(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var intersection, union float64
	seen := make(map[string]struct{}, len(a)+len(b))

	for tok, ca := range a {
		cb := b[tok]
		intersection += float64(min(ca, cb))
		union += float64(max(ca, cb))
		seen[tok] = struct{}{}
	}
	for tok, cb := range b {
		if _, ok := seen[tok]; ok {
			continue
		}
		union += float64(cb)
	}

	if union == 0 {
		return 0
	}
	return intersection / union
}

// recencyBoost = 0.5^(daysSince/7), per spec.md §4.F.
func recencyBoost(ts, now time.Time) float64 {
	daysSince := now.Sub(ts).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	return math.Pow(0.5, daysSince/recencyHalfLifeDays)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
