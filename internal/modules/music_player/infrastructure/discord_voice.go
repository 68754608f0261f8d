package infrastructure

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
)

// DiscordVoicePlatform joins voice channels through discordgo's own voice
// client. Audio is sent by the process itself, so connections implement
// ports.OpusSink.
type DiscordVoicePlatform struct {
	session *discordgo.Session
}

// NewDiscordVoicePlatform creates a new DiscordVoicePlatform.
func NewDiscordVoicePlatform(session *discordgo.Session) *DiscordVoicePlatform {
	return &DiscordVoicePlatform{session: session}
}

// Connect joins the channel deafened and waits until the voice connection is ready.
func (p *DiscordVoicePlatform) Connect(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceConnection, error) {
	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	// ChannelVoiceJoin blocks on its own timeout and ignores ctx
	result := make(chan joinResult, 1)
	go func() {
		vc, err := p.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
		result <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-result; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case r := <-result:
		if r.err != nil {
			return nil, fmt.Errorf("failed to join voice channel: %w", r.err)
		}
		return &discordVoiceConnection{vc: r.vc, guildID: guildID, channelID: channelID}, nil
	}
}

type discordVoiceConnection struct {
	vc        *discordgo.VoiceConnection
	guildID   snowflake.ID
	channelID snowflake.ID
}

func (c *discordVoiceConnection) GuildID() snowflake.ID   { return c.guildID }
func (c *discordVoiceConnection) ChannelID() snowflake.ID { return c.channelID }

func (c *discordVoiceConnection) Disconnect(_ context.Context) error {
	return c.vc.Disconnect()
}

func (c *discordVoiceConnection) Speaking(speaking bool) error {
	return c.vc.Speaking(speaking)
}

func (c *discordVoiceConnection) OpusFrames() chan<- []byte {
	return c.vc.OpusSend
}

var (
	_ ports.VoicePlatform   = (*DiscordVoicePlatform)(nil)
	_ ports.VoiceConnection = (*discordVoiceConnection)(nil)
	_ ports.OpusSink        = (*discordVoiceConnection)(nil)
)
