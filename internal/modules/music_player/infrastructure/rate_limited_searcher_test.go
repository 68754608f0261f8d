package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
)

type countingSearcher struct {
	calls int
}

func (s *countingSearcher) Search(_ context.Context, query string) (*ports.SearchResult, error) {
	s.calls++
	return &ports.SearchResult{Title: query}, nil
}

func TestRateLimitedSearcher_Delegates(t *testing.T) {
	next := &countingSearcher{}
	s := NewRateLimitedSearcher(next, 100, 2)

	got, err := s.Search(context.Background(), "song")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "song" {
		t.Errorf("expected title %q, got %q", "song", got.Title)
	}
	if next.calls != 1 {
		t.Errorf("expected 1 call, got %d", next.calls)
	}
}

func TestRateLimitedSearcher_ThrottlesBeyondBurst(t *testing.T) {
	next := &countingSearcher{}
	s := NewRateLimitedSearcher(next, 0.001, 1)

	if _, err := s.Search(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Search(ctx, "second")
	if err == nil {
		t.Fatal("expected second search to be throttled")
	}
	if next.calls != 1 {
		t.Errorf("expected throttled search not to reach the searcher, got %d calls", next.calls)
	}
}

func TestRateLimitedSearcher_Unlimited(t *testing.T) {
	next := &countingSearcher{}
	s := NewRateLimitedSearcher(next, 0, 0)

	for range 20 {
		if _, err := s.Search(context.Background(), "q"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if next.calls != 20 {
		t.Errorf("expected 20 calls, got %d", next.calls)
	}
}
