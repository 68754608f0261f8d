package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

func TestRequestQueue_FIFO(t *testing.T) {
	q := NewRequestQueue()

	actions := []domain.Action{domain.ActionPlay, domain.ActionPause, domain.ActionSkip, domain.ActionPlay}
	for _, action := range actions {
		q.Submit(action)
	}

	if q.Len() != len(actions) {
		t.Fatalf("expected %d pending requests, got %d", len(actions), q.Len())
	}

	for i, want := range actions {
		req, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("request %d: expected a pending request", i)
		}
		if req.Action != want {
			t.Errorf("request %d: expected %s, got %s", i, want, req.Action)
		}
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("expected queue to be drained")
	}
}

func TestRequest_WaitReturnsOutcome(t *testing.T) {
	q := NewRequestQueue()
	req := q.Submit(domain.ActionPlay)

	go func() {
		dequeued, _ := q.TryDequeue()
		dequeued.complete(Outcome{Applied: true, State: domain.StatePlaying}, nil)
	}()

	outcome, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Applied || outcome.State != domain.StatePlaying {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestRequest_CompleteOnce(t *testing.T) {
	req := newRequest(domain.ActionSkip)

	req.complete(Outcome{Applied: true}, nil)
	req.complete(Outcome{}, errors.New("late"))

	outcome, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("expected first completion to win, got error %v", err)
	}
	if !outcome.Applied {
		t.Error("expected first outcome to be kept")
	}
}

func TestRequest_WaitHonoursContext(t *testing.T) {
	req := newRequest(domain.ActionPause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := req.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRequestQueue_Close(t *testing.T) {
	q := NewRequestQueue()
	pending := q.Submit(domain.ActionPlay)

	q.Close()

	if _, err := pending.Wait(context.Background()); !errors.Is(err, ErrPlaybackStopped) {
		t.Errorf("expected pending request to fail with ErrPlaybackStopped, got %v", err)
	}

	late := q.Submit(domain.ActionPlay)
	if _, err := late.Wait(context.Background()); !errors.Is(err, ErrPlaybackStopped) {
		t.Errorf("expected late request to fail with ErrPlaybackStopped, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected no pending requests after close, got %d", q.Len())
	}
}
