package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoicePlatform connects the bot to voice channels.
type VoicePlatform interface {
	// Connect joins the voice channel and returns a handle to the connection.
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (VoiceConnection, error)
}

// VoiceConnection is a live connection to one voice channel.
type VoiceConnection interface {
	// GuildID returns the guild the connection belongs to.
	GuildID() snowflake.ID

	// ChannelID returns the joined voice channel.
	ChannelID() snowflake.ID

	// Disconnect leaves the channel and releases the connection.
	Disconnect(ctx context.Context) error
}

// OpusSink is implemented by connections that accept locally encoded audio.
type OpusSink interface {
	// Speaking toggles the speaking indicator.
	Speaking(speaking bool) error

	// OpusFrames returns the channel encoded 20ms Opus frames are written to.
	OpusFrames() chan<- []byte
}
