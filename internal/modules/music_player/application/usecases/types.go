package usecases

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// Re-export domain types for presentation layer use.

// ItemSnapshot is an alias for domain.ItemSnapshot.
type ItemSnapshot = domain.ItemSnapshot

// Requester is an alias for domain.Requester.
type Requester = domain.Requester

// QueueSongInput contains the input for QueueSong.
type QueueSongInput struct {
	Requester     domain.Requester
	Query         string
	TextChannelID snowflake.ID
}

// QueueSongOutput contains the result of QueueSong.
type QueueSongOutput struct {
	Item     domain.ItemSnapshot
	Position int
	// JoinedChannelID is set when the bot joined the requester's channel.
	JoinedChannelID snowflake.ID
}

// PlayInput contains the input for Play.
type PlayInput struct {
	Requester     domain.Requester
	TextChannelID snowflake.ID
}

// PlaybackOutput describes the item affected by a playback command.
type PlaybackOutput struct {
	Item  domain.ItemSnapshot
	State domain.PlaybackState
}

// SkipOutput contains the result of Skip and RemoveSongAt(0).
type SkipOutput struct {
	Skipped domain.ItemSnapshot
	// Next is the item now playing, if any.
	Next  *domain.ItemSnapshot
	State domain.PlaybackState
}

// SetLiveInput contains the input for SetLive.
type SetLiveInput struct {
	Requester     domain.Requester
	URI           string
	TextChannelID snowflake.ID
}

// SetLiveOutput contains the result of SetLive.
type SetLiveOutput struct {
	Item     domain.ItemSnapshot
	Replaced bool
}

// RemoveOutput contains the result of RemoveSongAt.
type RemoveOutput struct {
	Removed domain.ItemSnapshot
	// Skipped is true when the removed item was the one playing.
	Skipped bool
}

// JoinInput contains the input for JoinVoice.
type JoinInput struct {
	Requester     domain.Requester
	TextChannelID snowflake.ID
	// ChannelID is the channel to join; 0 means the requester's channel.
	ChannelID snowflake.ID
}

// JoinOutput contains the result of JoinVoice.
type JoinOutput struct {
	ChannelID        snowflake.ID
	AlreadyConnected bool
}

// NowPlayingOutput contains the result of NowPlaying.
type NowPlayingOutput struct {
	Item  domain.ItemSnapshot
	State domain.PlaybackState
}

// SlowModeOutput contains the result of SetSlowMode.
type SlowModeOutput struct {
	MaxSongsPerPerson int
	Removed           int
}
