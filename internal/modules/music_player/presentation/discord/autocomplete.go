package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// maxChoices is Discord's limit on autocomplete choices.
const maxChoices = 25

// GuildLookup returns a guild's playback service if it already exists.
type GuildLookup interface {
	Lookup(guildID snowflake.ID) (*usecases.GuildPlaybackService, bool)
}

// InteractionResponder is the part of a Discord session used to answer
// autocomplete requests.
type InteractionResponder interface {
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
}

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	services GuildLookup
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(services GuildLookup) *AutocompleteHandler {
	return &AutocompleteHandler{services: services}
}

// HandleInteraction answers autocomplete requests for the remove command.
func (h *AutocompleteHandler) HandleInteraction(s InteractionResponder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}
	if i.ApplicationCommandData().Name != CommandRemove {
		return
	}

	choices := h.positionChoices(i.GuildID)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		slog.Debug("failed to answer autocomplete", "error", err)
	}
}

func (h *AutocompleteHandler) positionChoices(rawGuildID string) []*discordgo.ApplicationCommandOptionChoice {
	choices := []*discordgo.ApplicationCommandOptionChoice{}

	guildID, err := snowflake.Parse(rawGuildID)
	if err != nil {
		slog.Warn("failed to parse guild ID in autocomplete", "error", err, "guildID", rawGuildID)
		return choices
	}

	service, ok := h.services.Lookup(guildID)
	if !ok {
		return choices
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	items, err := service.GetQueueSnapshot(ctx)
	if err != nil {
		return choices
	}
	return queueChoices(items)
}

// queueChoices lists queue positions as shown by /showqueue.
func queueChoices(items []domain.ItemSnapshot) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, min(len(items), maxChoices))
	for index, item := range items {
		if index == maxChoices {
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%d. %s", index, truncate(item.Title, 90)),
			Value: index,
		})
	}
	return choices
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
