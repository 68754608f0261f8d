package domain

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Queue is an ordered list of PlayableItems for one guild. The front item is
// the one currently playing, or the next one to play.
//
// Every method is safe for concurrent use. Compound sequences spanning
// several calls still need the caller's own lock.
type Queue struct {
	mu    sync.Mutex
	items []*PlayableItem
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		items: make([]*PlayableItem, 0),
	}
}

// Enqueue appends an item to the back of the queue.
func (q *Queue) Enqueue(item *PlayableItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
}

// TryPeekFront returns the front item without removing it.
func (q *Queue) TryPeekFront() (*PlayableItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// At returns the item at index, or nil if the index is out of range.
func (q *Queue) At(index int) *PlayableItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return nil
	}
	return q.items[index]
}

// RemoveAt removes the item at index and returns it, keeping the relative
// order of the rest. Returns nil if index is out of range.
func (q *Queue) RemoveAt(index int) *PlayableItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return nil
	}
	return q.removeAtLocked(index)
}

func (q *Queue) removeAtLocked(index int) *PlayableItem {
	item := q.items[index]
	copy(q.items[index:], q.items[index+1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	return item
}

// Remove removes the first item equal to item. It reports whether one was found.
func (q *Queue) Remove(item *PlayableItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.Equal(item) {
			q.removeAtLocked(i)
			return true
		}
	}
	return false
}

// Clear empties the queue, disposing every item. It returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	items := q.items
	q.items = make([]*PlayableItem, 0)
	q.mu.Unlock()

	for _, item := range items {
		item.Dispose()
	}
	return len(items)
}

// Count returns the number of items in the queue.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue) IsEmpty() bool {
	return q.Count() == 0
}

// List returns a copy of the items, front first.
func (q *Queue) List() []*PlayableItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]*PlayableItem, len(q.items))
	copy(result, q.items)
	return result
}

// CountRequestedBy returns how many queued items userID requested.
func (q *Queue) CountRequestedBy(userID snowflake.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, item := range q.items {
		if item.Requester.ID == userID {
			count++
		}
	}
	return count
}

// TrimPerRequester keeps at most limit items per requester and returns the
// removed items in queue order. The front item is never removed, though it
// still counts towards its requester's limit.
func (q *Queue) TrimPerRequester(limit int) []*PlayableItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || len(q.items) == 0 {
		return nil
	}

	seen := make(map[snowflake.ID]int)
	kept := make([]*PlayableItem, 0, len(q.items))
	var removed []*PlayableItem

	for i, item := range q.items {
		seen[item.Requester.ID]++
		if i > 0 && seen[item.Requester.ID] > limit {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}

	q.items = kept
	return removed
}
