package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// Outcome describes what the playback loop did with a request.
type Outcome struct {
	// Applied is false when the request was a no-op in the state it met.
	Applied bool
	// Item is the item started, paused or skipped, if any.
	Item *domain.PlayableItem
	// State is the playback state right after the request.
	State domain.PlaybackState
}

// Request is a state transition waiting for the playback loop.
type Request struct {
	Action      domain.Action
	SubmittedAt time.Time

	once    sync.Once
	done    chan struct{}
	outcome Outcome
	err     error
}

func newRequest(action domain.Action) *Request {
	return &Request{
		Action:      action,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Done is closed once the request has been processed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the loop has processed the request or ctx is done.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (r *Request) complete(outcome Outcome, err error) {
	r.once.Do(func() {
		r.outcome = outcome
		r.err = err
		close(r.done)
	})
}

// RequestQueue is the FIFO of requests consumed by the playback loop.
type RequestQueue struct {
	mu      sync.Mutex
	pending []*Request
	closed  bool
}

// NewRequestQueue creates an empty RequestQueue.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

// Submit enqueues a request. The returned Request completes once processed.
func (q *RequestQueue) Submit(action domain.Action) *Request {
	req := newRequest(action)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		req.complete(Outcome{}, ErrPlaybackStopped)
		return req
	}
	q.pending = append(q.pending, req)
	return req
}

// TryDequeue removes and returns the oldest pending request.
func (q *RequestQueue) TryDequeue() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	req := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return req, true
}

// Len returns the number of pending requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Close fails every pending request and rejects new ones.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()

	for _, req := range pending {
		req.complete(Outcome{}, ErrPlaybackStopped)
	}
}
