package extract

import (
	"sort"

	"img-scraper/pkg/models"
)

// strategyRank orders strategies when one URL is found by several of them,
// so the recorded strategy does not depend on execution order
var strategyRank = map[models.Strategy]int{
	models.StrategyTagAttribute: 0,
	models.StrategyAnchor:       1,
	models.StrategyInlineStyle:  2,
	models.StrategyRawContent:   3,
}

// CandidateSet is a set of image candidates keyed by absolute URL
type CandidateSet struct {
	items map[string]models.ImageCandidate
}

// NewCandidateSet returns an empty set
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{items: make(map[string]models.ImageCandidate)}
}

// Add inserts c, keeping the highest-ranked strategy on duplicates. Returns true if the URL was new.
func (s *CandidateSet) Add(c models.ImageCandidate) bool {
	existing, ok := s.items[c.URL]
	if !ok {
		s.items[c.URL] = c
		return true
	}
	if strategyRank[c.Strategy] < strategyRank[existing.Strategy] {
		s.items[c.URL] = c
	}
	return false
}

// Contains reports whether rawURL is in the set
func (s *CandidateSet) Contains(rawURL string) bool {
	_, ok := s.items[rawURL]
	return ok
}

// Len returns the number of distinct URLs
func (s *CandidateSet) Len() int { return len(s.items) }

// Sorted returns the candidates ordered by URL
func (s *CandidateSet) Sorted() []models.ImageCandidate {
	out := make([]models.ImageCandidate, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Limit returns at most n candidates in URL order; n <= 0 means no limit
func (s *CandidateSet) Limit(n int) []models.ImageCandidate {
	sorted := s.Sorted()
	if n > 0 && len(sorted) > n {
		return sorted[:n]
	}
	return sorted
}

// CountBy returns the number of candidates attributed to each strategy
func (s *CandidateSet) CountBy() map[models.Strategy]int {
	counts := make(map[models.Strategy]int)
	for _, c := range s.items {
		counts[c.Strategy]++
	}
	return counts
}
