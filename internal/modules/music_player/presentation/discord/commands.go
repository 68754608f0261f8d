package discord

import "github.com/bwmarrin/discordgo"

// Command names.
const (
	CommandQueue     = "queue"
	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandSkip      = "skip"
	CommandCome      = "come"
	CommandLeave     = "leave"
	CommandShow      = "show"
	CommandShowNext  = "shownext"
	CommandShowQueue = "showqueue"
	CommandRemove    = "remove"
	CommandClear     = "clear"
	CommandDesignate = "designate"
	CommandSlowMode  = "slowmode"
	CommandStream    = "stream"
)

// Commands returns all slash commands for the music player module.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandQueue,
			Description: "Queue a song from a URL or search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "URL or search term",
					Required:    true,
				},
			},
		},
		{
			Name:        CommandPlay,
			Description: "Start or resume playback",
		},
		{
			Name:        CommandPause,
			Description: "Pause playback",
		},
		{
			Name:        CommandSkip,
			Description: "Skip the current song",
		},
		{
			Name:        CommandCome,
			Description: "Join a voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Voice channel to join (defaults to your current channel)",
					Required:    false,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildVoice,
						discordgo.ChannelTypeGuildStageVoice,
					},
				},
			},
		},
		{
			Name:        CommandLeave,
			Description: "Leave the voice channel",
		},
		{
			Name:        CommandShow,
			Description: "Show what is playing",
		},
		{
			Name:        CommandShowNext,
			Description: "Show the next song",
		},
		{
			Name:        CommandShowQueue,
			Description: "Show the queue",
		},
		{
			Name:        CommandRemove,
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionInteger,
					Name:         "position",
					Description:  "Position as shown by /showqueue (0 is the current song)",
					Required:     true,
					MinValue:     floatPtr(0),
					Autocomplete: true,
				},
			},
		},
		{
			Name:        CommandClear,
			Description: "Clear the queue",
		},
		{
			Name:        CommandDesignate,
			Description: "Restrict music commands and notices to one text channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Text channel to use (defaults to this channel)",
					Required:    false,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "off",
					Description: "Lift the restriction",
					Required:    false,
				},
			},
		},
		{
			Name:        CommandSlowMode,
			Description: "Limit how many songs each member may queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Songs per member, 0 turns slow mode off",
					Required:    true,
					MinValue:    floatPtr(0),
				},
			},
		},
		{
			Name:        CommandStream,
			Description: "Set a live stream to play whenever the queue is empty",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "Live stream URL",
					Required:    true,
				},
			},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
