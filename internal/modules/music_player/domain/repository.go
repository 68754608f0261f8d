package domain

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// GuildOptionsRepository stores per-guild options.
type GuildOptionsRepository interface {
	// Get returns the options for the guild, or zero options if none are stored.
	Get(ctx context.Context, guildID snowflake.ID) (GuildOptions, error)

	// Save stores the options for the guild.
	Save(ctx context.Context, guildID snowflake.ID, options GuildOptions) error
}
