package ports

import (
	"context"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// StreamPlayer streams one PlayableItem over a voice connection.
type StreamPlayer interface {
	// Play streams the bound item until the source is exhausted, Stop is
	// called, ctx is cancelled or an error occurs. It blocks until playback
	// has fully terminated.
	Play(ctx context.Context, conn VoiceConnection) error

	// Stop cancels playback and waits until Play has unwound. After Stop
	// returns no more audio is sent. Calling it again is a no-op.
	Stop(ctx context.Context) error

	// EndOfStream reports whether the source was exhausted. It becomes true
	// at most once and never resets.
	EndOfStream() bool
}

// PlayOptions are fixed when a player is created.
type PlayOptions struct {
	// Offset is the position playback starts from. Zero plays from the start.
	Offset time.Duration

	// OnAudioStart is called once, from Play, when the first audio has been
	// sent. It may be nil.
	OnAudioStart func()
}

// StreamPlayerFactory creates a StreamPlayer bound to one item.
type StreamPlayerFactory interface {
	Create(item *domain.PlayableItem, opts PlayOptions) StreamPlayer
}
