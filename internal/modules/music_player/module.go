package music_player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/bot"
	"github.com/sglre6355/deejay/internal/modules/music_player/application"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/deejay/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/deejay/internal/modules/music_player/presentation/discord"
	"github.com/sglre6355/deejay/internal/observe"
	"go.opentelemetry.io/otel"
)

// shutdownTimeout bounds leaving every voice channel on shutdown.
const shutdownTimeout = 15 * time.Second

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config *Config

	registry        *usecases.GuildRegistry
	options         *infrastructure.FileOptionsRepository
	eventBus        *infrastructure.ChannelEventBus
	lavalinkAdapter *infrastructure.LavalinkAdapter

	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	if m.commandHandlers == nil {
		return nil
	}
	return m.commandHandlers.Handlers()
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.handleInteractionCreate(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// backend is the set of ports implemented by one audio backend.
type backend struct {
	searcher ports.Searcher
	voice    ports.VoicePlatform
	players  ports.StreamPlayerFactory
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil || deps.Session.State == nil || deps.Session.State.User == nil {
		return errors.New("music_player requires an open Discord session")
	}
	if m.config == nil {
		if err := m.LoadConfig(); err != nil {
			return err
		}
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot ID: %w", err)
	}

	audio, err := m.initBackend(deps.Session)
	if err != nil {
		return err
	}

	m.options, err = infrastructure.NewFileOptionsRepository(
		m.config.GuildOptionsPath,
		m.config.GuildOptionsSaveInterval,
	)
	if err != nil {
		return err
	}

	m.eventBus = infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)

	m.registry = usecases.NewGuildRegistry(usecases.GuildServiceDeps{
		BotID:      botID,
		Searcher:   infrastructure.NewRateLimitedSearcher(audio.searcher, m.config.SearchRate, m.config.SearchBurst),
		Voice:      audio.voice,
		Players:    audio.players,
		VoiceState: infrastructure.NewVoiceStateProvider(deps.Session),
		Options:    m.options,
		Publisher:  m.eventBus,
		Config:     m.config.ServiceConfig(),
	})

	// Create application event handlers
	notificationHandler := application.NewNotificationEventHandler(
		m.eventBus,
		infrastructure.NewNotifier(deps.Session),
		m.registry,
		infrastructure.NewDiscordUserInfoProvider(deps.Session),
	)
	if err := notificationHandler.Start(); err != nil {
		return err
	}

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	metricsHandler := application.NewMetricsEventHandler(
		m.eventBus,
		infrastructure.NewOTelPlaybackMetrics(metrics),
	)
	if err := metricsHandler.Start(); err != nil {
		return err
	}

	// Create presentation handlers
	m.commandHandlers = discord.NewCommandHandlers(m.registry)
	m.autocomplete = discord.NewAutocompleteHandler(m.registry)
	m.eventHandlers = discord.NewEventHandlers(botID, m.registry)

	slog.Info("music_player module initialized",
		"backend", m.config.AudioBackend,
		"guildOptions", m.options.Count(),
	)

	return nil
}

func (m *MusicPlayerModule) initBackend(session *discordgo.Session) (backend, error) {
	switch m.config.AudioBackend {
	case BackendFFmpeg:
		searcher := infrastructure.NewYtdlpSearcher()
		return backend{
			searcher: searcher,
			voice:    infrastructure.NewDiscordVoicePlatform(session),
			players:  infrastructure.NewFFmpegPlayerFactory(m.config.FFmpegPath, searcher),
		}, nil
	case BackendLavalink:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		adapter, err := infrastructure.NewLavalinkAdapter(ctx, session, infrastructure.LavalinkConfig{
			Address:  m.config.LavalinkAddress,
			Password: m.config.LavalinkPassword,
			Secure:   m.config.LavalinkSecure,
		})
		if err != nil {
			return backend{}, err
		}
		m.lavalinkAdapter = adapter

		return backend{searcher: adapter, voice: adapter, players: adapter}, nil
	default:
		return backend{}, fmt.Errorf("unknown audio backend %q", m.config.AudioBackend)
	}
}

// Shutdown leaves every voice channel, then releases module resources.
func (m *MusicPlayerModule) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	if m.registry != nil {
		if err := m.registry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if m.options != nil {
		if err := m.options.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Close event bus
	if m.eventBus != nil {
		m.eventBus.Close()
	}

	// Close Lavalink connection
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.Close()
	}

	return errors.Join(errs...)
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}

func (m *MusicPlayerModule) handleInteractionCreate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if m.autocomplete != nil {
		m.autocomplete.HandleInteraction(s, i)
	}
}
