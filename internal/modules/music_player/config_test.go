package music_player

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LAVALINK_ADDRESS", "localhost:2333")
	t.Setenv("LAVALINK_PASSWORD", "youshallnotpass")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AudioBackend != BackendLavalink {
		t.Errorf("expected backend %q, got %q", BackendLavalink, cfg.AudioBackend)
	}
	if cfg.TickInterval != 100*time.Millisecond {
		t.Errorf("expected tick 100ms, got %s", cfg.TickInterval)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout 5m, got %s", cfg.IdleTimeout)
	}
	if cfg.MaxSongDuration != 15*time.Minute {
		t.Errorf("expected max duration 15m, got %s", cfg.MaxSongDuration)
	}
	if cfg.SearchRate != 2 || cfg.SearchBurst != 2 {
		t.Errorf("expected search rate 2/2, got %v/%d", cfg.SearchRate, cfg.SearchBurst)
	}

	service := cfg.ServiceConfig()
	if service.StateMachine.IdleTimeout != cfg.IdleTimeout {
		t.Errorf("expected idle timeout %s, got %s", cfg.IdleTimeout, service.StateMachine.IdleTimeout)
	}
	if service.ReconnectGrace != 10*time.Second {
		t.Errorf("expected reconnect grace 10s, got %s", service.ReconnectGrace)
	}
}

func TestLoadConfig_Backends(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "lavalink requires credentials",
			env:     map[string]string{"AUDIO_BACKEND": "lavalink"},
			wantErr: "LAVALINK_ADDRESS",
		},
		{
			name: "ffmpeg needs no lavalink",
			env:  map[string]string{"AUDIO_BACKEND": "ffmpeg"},
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"AUDIO_BACKEND": "midi"},
			wantErr: "unknown AUDIO_BACKEND",
		},
		{
			name:    "zero tick",
			env:     map[string]string{"AUDIO_BACKEND": "ffmpeg", "PLAYBACK_TICK_INTERVAL": "0s"},
			wantErr: "PLAYBACK_TICK_INTERVAL",
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"AUDIO_BACKEND": "ffmpeg", "IDLE_TIMEOUT": "soon"},
			wantErr: "IdleTimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LAVALINK_ADDRESS", "")
			t.Setenv("LAVALINK_PASSWORD", "")
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadConfig()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
