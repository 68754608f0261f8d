package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
)

// PlaybackPauser stops active playback before the voice connection changes.
type PlaybackPauser interface {
	// PauseActive pauses playback and reports whether anything was playing.
	PauseActive(ctx context.Context) (bool, error)
}

// VoiceConnectionManager owns a guild's voice connection handle.
// Join and Leave are expected to be serialized by the caller.
type VoiceConnectionManager struct {
	guildID  snowflake.ID
	platform ports.VoicePlatform
	pauser   PlaybackPauser

	mu   sync.RWMutex
	conn ports.VoiceConnection
}

// NewVoiceConnectionManager creates a manager that is not connected.
func NewVoiceConnectionManager(
	guildID snowflake.ID,
	platform ports.VoicePlatform,
	pauser PlaybackPauser,
) *VoiceConnectionManager {
	return &VoiceConnectionManager{
		guildID:  guildID,
		platform: platform,
		pauser:   pauser,
	}
}

// Connection returns the current connection, or nil.
func (m *VoiceConnectionManager) Connection() ports.VoiceConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.conn
}

// IsConnected reports whether a connection is held.
func (m *VoiceConnectionManager) IsConnected() bool {
	return m.Connection() != nil
}

// ChannelID returns the joined voice channel, or 0.
func (m *VoiceConnectionManager) ChannelID() snowflake.ID {
	conn := m.Connection()
	if conn == nil {
		return 0
	}
	return conn.ChannelID()
}

// Join connects to channelID. Joining the current channel is a no-op.
// When moving, active playback is paused first and wasActive reports whether
// it should be resumed afterwards. On a failed connect the manager is left
// disconnected.
func (m *VoiceConnectionManager) Join(
	ctx context.Context,
	channelID snowflake.ID,
) (wasActive bool, err error) {
	current := m.Connection()
	if current != nil && current.ChannelID() == channelID {
		return false, nil
	}

	if current != nil {
		wasActive, err = m.pause(ctx)
		if err != nil {
			return false, err
		}
		m.detach(current)
		if err := current.Disconnect(ctx); err != nil {
			slog.Warn("failed to disconnect from previous voice channel",
				"guild", m.guildID,
				"channel", current.ChannelID(),
				"error", err,
			)
		}
	}

	conn, err := m.platform.Connect(ctx, m.guildID, channelID)
	if err != nil {
		return wasActive, fmt.Errorf("failed to join voice channel: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	slog.Info("joined voice channel", "guild", m.guildID, "channel", channelID)

	return wasActive, nil
}

// Leave pauses playback, disconnects and forgets the connection.
func (m *VoiceConnectionManager) Leave(ctx context.Context) error {
	current := m.Connection()
	if current == nil {
		return ErrNotConnected
	}

	if _, err := m.pause(ctx); err != nil {
		return err
	}
	m.detach(current)

	if err := current.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}

	slog.Info("left voice channel", "guild", m.guildID, "channel", current.ChannelID())

	return nil
}

// Drop handles a connection lost underneath us: playback is paused and the
// handle is released without failing on disconnect errors.
func (m *VoiceConnectionManager) Drop(ctx context.Context) error {
	current := m.Connection()
	if current == nil {
		return nil
	}

	if _, err := m.pause(ctx); err != nil {
		return err
	}
	m.detach(current)

	if err := current.Disconnect(ctx); err != nil {
		slog.Debug("disconnect after voice loss failed", "guild", m.guildID, "error", err)
	}
	return nil
}

func (m *VoiceConnectionManager) pause(ctx context.Context) (bool, error) {
	if m.pauser == nil {
		return false, nil
	}
	return m.pauser.PauseActive(ctx)
}

func (m *VoiceConnectionManager) detach(conn ports.VoiceConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == conn {
		m.conn = nil
	}
}
