package infrastructure

import (
	"context"
	"fmt"

	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"golang.org/x/time/rate"
)

// RateLimitedSearcher throttles lookups against the wrapped Searcher so bursts
// of commands do not hammer the upstream service.
type RateLimitedSearcher struct {
	next    ports.Searcher
	limiter *rate.Limiter
}

// NewRateLimitedSearcher wraps next with a limiter allowing perSecond lookups
// and bursts of burst. A non-positive rate disables throttling.
func NewRateLimitedSearcher(next ports.Searcher, perSecond float64, burst int) *RateLimitedSearcher {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimitedSearcher{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Search waits for a token, then delegates.
func (s *RateLimitedSearcher) Search(ctx context.Context, query string) (*ports.SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search throttled: %w", err)
	}
	return s.next.Search(ctx, query)
}

var _ ports.Searcher = (*RateLimitedSearcher)(nil)
