package ports

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// NowPlayingInfo contains information for the "Now Playing" notification.
type NowPlayingInfo struct {
	Item               domain.ItemSnapshot
	Streaming          bool
	RequesterAvatarURL string
}

// NotificationSender defines the interface for sending notifications to Discord channels.
type NotificationSender interface {
	// SendNowPlaying sends a "Now Playing" embed to the channel.
	SendNowPlaying(channelID snowflake.ID, info *NowPlayingInfo) error

	// SendInfo sends a plain informational embed to the channel.
	SendInfo(channelID snowflake.ID, message string) error

	// SendError sends an error message embed to the channel.
	SendError(channelID snowflake.ID, message string) error
}

// NotificationChannelResolver returns where asynchronous notices for a guild go.
type NotificationChannelResolver interface {
	// NotificationChannel returns the channel, or 0 if none is known.
	NotificationChannel(guildID snowflake.ID) snowflake.ID
}
