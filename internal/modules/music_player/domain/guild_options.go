package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// GuildOptions is the persisted per-guild configuration.
type GuildOptions struct {
	// DesignatedTextChannelID is the only channel the bot talks in. Zero means any.
	DesignatedTextChannelID snowflake.ID `yaml:"designated_text_channel_id,omitempty"`

	// MaxSongsPerPerson caps queued items per requester. Zero means no cap.
	MaxSongsPerPerson int `yaml:"max_songs_per_person,omitempty"`
}

// SlowModeEnabled reports whether a per-requester cap is set.
func (o GuildOptions) SlowModeEnabled() bool {
	return o.MaxSongsPerPerson > 0
}

// CanQueue reports whether a requester with queued items may add another.
func (o GuildOptions) CanQueue(queued int) bool {
	return !o.SlowModeEnabled() || queued < o.MaxSongsPerPerson
}

// HasDesignatedChannel reports whether replies are restricted to one channel.
func (o GuildOptions) HasDesignatedChannel() bool {
	return o.DesignatedTextChannelID != 0
}
