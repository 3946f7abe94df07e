// Package quotes keeps the process-local cache of market prices and balances.
//
// Readers take an immutable *Snapshot and never block. The refresher fetches
// every asset independently and publishes each result by swapping in a new
// snapshot that differs from the previous one in that single entry, so a
// reader sees either the old or the new quote for an asset, never a mix.
package quotes

import (
	"sort"
	"time"

	"github.com/aristath/permanent/internal/domain"
)

// Snapshot is an immutable view of the cache. Quotes must not be modified.
type Snapshot struct {
	quotes      map[string]*domain.Quote
	refreshedAt time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{quotes: map[string]*domain.Quote{}}
}

// Quote returns the quote for assetID, or nil if none has been fetched.
func (s *Snapshot) Quote(assetID string) *domain.Quote {
	if s == nil {
		return nil
	}
	return s.quotes[assetID]
}

// Len returns the number of cached quotes.
func (s *Snapshot) Len() int {
	return len(s.quotes)
}

// RefreshedAt is when the last completed refresh cycle finished.
func (s *Snapshot) RefreshedAt() time.Time {
	return s.refreshedAt
}

// All returns the cached quotes ordered by asset id.
func (s *Snapshot) All() []*domain.Quote {
	out := make([]*domain.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// ErrorCount returns the number of quotes in error state.
func (s *Snapshot) ErrorCount() int {
	n := 0
	for _, q := range s.quotes {
		if q.Status == domain.QuoteStatusError {
			n++
		}
	}
	return n
}

// with returns a copy of s with one entry replaced.
func (s *Snapshot) with(q *domain.Quote) *Snapshot {
	next := make(map[string]*domain.Quote, len(s.quotes)+1)
	for k, v := range s.quotes {
		next[k] = v
	}
	next[q.AssetID] = q
	return &Snapshot{quotes: next, refreshedAt: s.refreshedAt}
}

// retain returns a copy of s keeping only the given asset ids.
func (s *Snapshot) retain(keep map[string]bool) *Snapshot {
	next := make(map[string]*domain.Quote, len(keep))
	for k, v := range s.quotes {
		if keep[k] {
			next[k] = v
		}
	}
	return &Snapshot{quotes: next, refreshedAt: s.refreshedAt}
}

// stamped returns a copy of s marked as refreshed at t.
func (s *Snapshot) stamped(t time.Time) *Snapshot {
	return &Snapshot{quotes: s.quotes, refreshedAt: t}
}
