package domain

import (
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// EarlyEndTolerance is how far short of its duration an item may finish
// before the run counts as a playback failure.
const EarlyEndTolerance = 10 * time.Second

// ItemID uniquely identifies a PlayableItem for its whole lifetime.
type ItemID string

// Requester identifies the guild member who asked for an item.
type Requester struct {
	ID   snowflake.ID
	Name string
}

// Source describes where the audio of a PlayableItem comes from.
type Source struct {
	Title      string
	URI        string
	Duration   time.Duration // zero when unknown (live streams)
	IsLive     bool
	SourceName string // e.g. "youtube", "twitch"
	Encoded    string // backend-specific handle, e.g. a Lavalink encoded track
}

// PlayableItem is a resolved unit of audio waiting in a queue or held as the
// live fallback target.
type PlayableItem struct {
	ID         ItemID
	Requester  Requester
	Source     Source
	Live       bool
	EnqueuedAt time.Time

	mu        sync.Mutex
	elapsed   time.Duration
	startedAt time.Time
	running   bool
	disposed  bool
	now       func() time.Time
}

// NewPlayableItem creates an ordinary (queue) item.
func NewPlayableItem(requester Requester, source Source) *PlayableItem {
	return newPlayableItem(requester, source, false)
}

// NewLiveItem creates an item meant to be streamed as the live fallback.
func NewLiveItem(requester Requester, source Source) *PlayableItem {
	return newPlayableItem(requester, source, true)
}

func newPlayableItem(requester Requester, source Source, live bool) *PlayableItem {
	return &PlayableItem{
		ID:         ItemID(uuid.NewString()),
		Requester:  requester,
		Source:     source,
		Live:       live,
		EnqueuedAt: time.Now().UTC(),
		now:        time.Now,
	}
}

// Title returns the source title.
func (p *PlayableItem) Title() string {
	return p.Source.Title
}

// Duration returns the immutable source duration.
func (p *PlayableItem) Duration() time.Duration {
	return p.Source.Duration
}

// IsLive reports whether the item has no natural end.
func (p *PlayableItem) IsLive() bool {
	return p.Live || p.Source.IsLive
}

// StartProgress resumes the elapsed-progress timer.
func (p *PlayableItem) StartProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.disposed {
		return
	}
	p.running = true
	p.startedAt = p.now()
}

// StopProgress freezes the elapsed-progress timer.
func (p *PlayableItem) StopProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

func (p *PlayableItem) stopLocked() {
	if !p.running {
		return
	}
	p.elapsed += p.now().Sub(p.startedAt)
	p.running = false
}

// Elapsed returns how long the item has actually been streamed.
func (p *PlayableItem) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return p.elapsed + p.now().Sub(p.startedAt)
	}
	return p.elapsed
}

// EndedEarly reports whether a finished run stopped well short of the
// expected duration. Live items never end early.
func (p *PlayableItem) EndedEarly() bool {
	if p.IsLive() || p.Source.Duration <= 0 {
		return false
	}
	return p.Elapsed() < p.Source.Duration-EarlyEndTolerance
}

// Dispose releases the item. It is safe to call more than once.
func (p *PlayableItem) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.disposed = true
}

// Disposed reports whether Dispose has been called.
func (p *PlayableItem) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.disposed
}

// Equal reports whether two items are the same logical item.
func (p *PlayableItem) Equal(other *PlayableItem) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ID == other.ID
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss, or LIVE.
func (p *PlayableItem) FormattedDuration() string {
	if p.IsLive() {
		return "LIVE"
	}
	return FormatDuration(p.Source.Duration)
}

// Snapshot returns a value copy safe to hand to other goroutines.
func (p *PlayableItem) Snapshot() ItemSnapshot {
	return ItemSnapshot{
		ID:         p.ID,
		Title:      p.Source.Title,
		URI:        p.Source.URI,
		SourceName: p.Source.SourceName,
		Duration:   p.Source.Duration,
		Elapsed:    p.Elapsed(),
		Live:       p.IsLive(),
		Requester:  p.Requester,
		EnqueuedAt: p.EnqueuedAt,
	}
}

// ItemSnapshot is a point-in-time copy of a PlayableItem.
type ItemSnapshot struct {
	ID         ItemID
	Title      string
	URI        string
	SourceName string
	Duration   time.Duration
	Elapsed    time.Duration
	Live       bool
	Requester  Requester
	EnqueuedAt time.Time
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss, or LIVE.
func (s ItemSnapshot) FormattedDuration() string {
	if s.Live {
		return "LIVE"
	}
	return FormatDuration(s.Duration)
}

// FormatDuration renders d as mm:ss, or hh:mm:ss once it reaches an hour.
func FormatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
