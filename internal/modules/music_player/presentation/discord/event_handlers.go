package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
)

// EventHandlers handles Discord gateway events for the music player.
type EventHandlers struct {
	botID    snowflake.ID
	services GuildLookup
}

// NewEventHandlers creates a new EventHandlers.
func NewEventHandlers(botID snowflake.ID, services GuildLookup) *EventHandlers {
	return &EventHandlers{
		botID:    botID,
		services: services,
	}
}

// HandleVoiceStateUpdate forwards the bot's own voice state changes to the
// guild's playback service.
func (h *EventHandlers) HandleVoiceStateUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	// Only handle updates for the bot itself
	if event.UserID != h.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	// Zero means disconnected
	var channelID snowflake.ID
	if event.ChannelID != "" {
		channelID, err = snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
	}

	service, ok := h.services.Lookup(guildID)
	if !ok {
		return
	}
	service.HandleVoiceStateChange(channelID)
}
