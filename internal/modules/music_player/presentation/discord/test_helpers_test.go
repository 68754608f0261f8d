package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/bot"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"github.com/sglre6355/deejay/internal/modules/music_player/infrastructure"
)

const (
	testGuildID   = "100"
	testChannelID = "200"
	testVoiceID   = "300"
	testUserID    = "400"

	// testIdleUserID is a member who is not in any voice channel.
	testIdleUserID = "401"
)

type fakeConnection struct {
	guildID   snowflake.ID
	channelID snowflake.ID
}

func (c *fakeConnection) GuildID() snowflake.ID   { return c.guildID }
func (c *fakeConnection) ChannelID() snowflake.ID { return c.channelID }

func (c *fakeConnection) Disconnect(_ context.Context) error { return nil }

type fakePlatform struct{}

func (fakePlatform) Connect(_ context.Context, guildID, channelID snowflake.ID) (ports.VoiceConnection, error) {
	return &fakeConnection{guildID: guildID, channelID: channelID}, nil
}

// fakePlayer plays until stopped.
type fakePlayer struct {
	once sync.Once
	stop chan struct{}
}

func (p *fakePlayer) Play(ctx context.Context, _ ports.VoiceConnection) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return nil
	}
}

func (p *fakePlayer) Stop(_ context.Context) error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *fakePlayer) EndOfStream() bool { return false }

type fakePlayerFactory struct{}

func (fakePlayerFactory) Create(_ *domain.PlayableItem, _ ports.PlayOptions) ports.StreamPlayer {
	return &fakePlayer{stop: make(chan struct{})}
}

type fakeVoiceState map[snowflake.ID]snowflake.ID

func (f fakeVoiceState) GetUserVoiceChannel(_, userID snowflake.ID) (snowflake.ID, error) {
	return f[userID], nil
}

type fakeSearcher map[string]*ports.SearchResult

func (f fakeSearcher) Search(_ context.Context, query string) (*ports.SearchResult, error) {
	result, ok := f[query]
	if !ok {
		return nil, errors.New("no matches")
	}
	return result, nil
}

// newTestRegistry returns a registry whose test user sits in the test voice channel.
func newTestRegistry(t *testing.T, searcher fakeSearcher) *usecases.GuildRegistry {
	t.Helper()

	registry := usecases.NewGuildRegistry(usecases.GuildServiceDeps{
		BotID:      1,
		Searcher:   searcher,
		Voice:      fakePlatform{},
		Players:    fakePlayerFactory{},
		VoiceState: fakeVoiceState{snowflake.MustParse(testUserID): snowflake.MustParse(testVoiceID)},
		Options:    infrastructure.NewMemoryOptionsRepository(),
		Config: usecases.ServiceConfig{
			StateMachine: usecases.StateMachineConfig{
				TickInterval: 5 * time.Millisecond,
				IdleTimeout:  time.Hour,
			},
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})
	return registry
}

func songResult(title string) *ports.SearchResult {
	return &ports.SearchResult{
		Title:      title,
		URI:        "https://www.youtube.com/watch?v=" + title,
		Duration:   3 * time.Minute,
		SourceName: "youtube",
	}
}

func newCommand(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: testUserID, Username: "listener"},
				Nick:        "dj",
				Permissions: discordgo.PermissionManageChannels,
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// intOpt mirrors how the gateway decodes integers: as float64.
func intOpt(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: float64(value),
	}
}

func boolOpt(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionBoolean,
		Value: value,
	}
}

func channelOpt(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: id,
	}
}

// run invokes the named command and returns the single embed it replied with.
func run(
	t *testing.T,
	handlers map[string]bot.InteractionHandler,
	i *discordgo.InteractionCreate,
) (*bot.MockResponder, *discordgo.MessageEmbed) {
	t.Helper()

	handler, ok := handlers[i.ApplicationCommandData().Name]
	if !ok {
		t.Fatalf("no handler for %q", i.ApplicationCommandData().Name)
	}

	r := &bot.MockResponder{}
	if err := handler(nil, i, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	embeds := r.Embeds()
	if len(embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(embeds))
	}
	return r, embeds[0]
}
