package music_player

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/usecases"
)

// Audio backends.
const (
	BackendLavalink = "lavalink"
	BackendFFmpeg   = "ffmpeg"
)

// Config holds the music player module configuration.
type Config struct {
	AudioBackend string `env:"AUDIO_BACKEND" envDefault:"lavalink"`

	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE"`

	// FFmpegPath is the ffmpeg binary used by the ffmpeg backend.
	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	GuildOptionsPath         string        `env:"GUILD_OPTIONS_PATH"          envDefault:"data/guild_options.yaml"`
	GuildOptionsSaveInterval time.Duration `env:"GUILD_OPTIONS_SAVE_INTERVAL" envDefault:"5m"`

	TickInterval    time.Duration `env:"PLAYBACK_TICK_INTERVAL" envDefault:"100ms"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"           envDefault:"5m"`
	MaxSongDuration time.Duration `env:"MAX_SONG_DURATION"      envDefault:"15m"`
	MinLiveDuration time.Duration `env:"MIN_LIVE_DURATION"      envDefault:"10m"`
	ReconnectGrace  time.Duration `env:"VOICE_RECONNECT_GRACE"  envDefault:"10s"`

	// SearchRate is searches per second across all guilds. Zero or less disables throttling.
	SearchRate  float64 `env:"SEARCH_RATE"  envDefault:"2"`
	SearchBurst int     `env:"SEARCH_BURST" envDefault:"2"`
}

// LoadConfig parses the module configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings required by the selected backend.
func (c *Config) Validate() error {
	switch c.AudioBackend {
	case BackendLavalink:
		if c.LavalinkAddress == "" || c.LavalinkPassword == "" {
			return errors.New("LAVALINK_ADDRESS and LAVALINK_PASSWORD are required for the lavalink backend")
		}
	case BackendFFmpeg:
		if c.FFmpegPath == "" {
			return errors.New("FFMPEG_PATH is required for the ffmpeg backend")
		}
	default:
		return fmt.Errorf("unknown AUDIO_BACKEND %q", c.AudioBackend)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("PLAYBACK_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.SearchBurst < 1 {
		return fmt.Errorf("SEARCH_BURST must be at least 1, got %d", c.SearchBurst)
	}
	return nil
}

// ServiceConfig returns the per-guild playback settings.
func (c *Config) ServiceConfig() usecases.ServiceConfig {
	return usecases.ServiceConfig{
		StateMachine: usecases.StateMachineConfig{
			TickInterval: c.TickInterval,
			IdleTimeout:  c.IdleTimeout,
		},
		MaxSongDuration: c.MaxSongDuration,
		MinLiveDuration: c.MinLiveDuration,
		ReconnectGrace:  c.ReconnectGrace,
	}
}
