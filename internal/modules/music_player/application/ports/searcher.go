package ports

import (
	"context"
	"time"
)

// SearchResult is a resolved, playable source.
type SearchResult struct {
	Title      string
	URI        string
	Duration   time.Duration // zero when unknown
	IsLive     bool
	SourceName string
	Encoded    string // backend handle, empty when the URI is enough
}

// Searcher resolves a free-text query or a URL to a playable source.
type Searcher interface {
	// Search returns the best match. The error text is shown to the requester.
	Search(ctx context.Context, query string) (*SearchResult, error)
}
