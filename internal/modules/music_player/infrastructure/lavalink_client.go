package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// voiceConnectionTimeout is the maximum time to wait for voice connection to be established.
const voiceConnectionTimeout = 10 * time.Second

// pendingVoiceConnection tracks the state of a pending voice connection.
type pendingVoiceConnection struct {
	mu             sync.Mutex
	hasVoiceState  bool
	hasVoiceServer bool
	ready          chan struct{}
}

// onEvent marks an event as received and signals ready if both events are present.
func (p *pendingVoiceConnection) onEvent(isVoiceState bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isVoiceState {
		p.hasVoiceState = true
	} else {
		p.hasVoiceServer = true
	}

	if p.hasVoiceState && p.hasVoiceServer {
		select {
		case <-p.ready:
			// Already closed
		default:
			close(p.ready)
		}
	}
}

// voiceEventBuffer buffers voice events to ensure both VoiceStateUpdate and
// VoiceServerUpdate are received before forwarding to Lavalink.
// This prevents "Partial Lavalink voice state" errors when events arrive out of order.
type voiceEventBuffer struct {
	mu sync.Mutex

	// From VoiceStateUpdate
	hasVoiceState bool
	channelID     *snowflake.ID
	sessionID     string

	// From VoiceServerUpdate
	hasVoiceServer bool
	token          string
	endpoint       string
}

// setVoiceState stores voice state data and returns true if both events are now ready.
func (b *voiceEventBuffer) setVoiceState(channelID *snowflake.ID, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceState = true
	b.channelID = channelID
	b.sessionID = sessionID

	return b.hasVoiceState && b.hasVoiceServer
}

// setVoiceServer stores voice server data and returns true if both events are now ready.
func (b *voiceEventBuffer) setVoiceServer(token, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceServer = true
	b.token = token
	b.endpoint = endpoint

	return b.hasVoiceState && b.hasVoiceServer
}

// getData returns the buffered data and resets the buffer.
func (b *voiceEventBuffer) getData() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channelID = b.channelID
	sessionID = b.sessionID
	token = b.token
	endpoint = b.endpoint

	// Reset buffer
	b.hasVoiceState = false
	b.hasVoiceServer = false
	b.channelID = nil
	b.sessionID = ""
	b.token = ""
	b.endpoint = ""

	return
}

// LavalinkAdapter wraps DisGoLink to implement the voice, search and stream
// player ports for the Lavalink backend.
type LavalinkAdapter struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	pendingMu sync.Mutex
	pending   map[snowflake.ID]*pendingVoiceConnection

	// voiceBuffers holds buffered voice events per guild to handle out-of-order events
	voiceBufferMu sync.Mutex
	voiceBuffers  map[snowflake.ID]*voiceEventBuffer

	// streams maps a guild to the stream player whose track is loaded
	streamsMu sync.Mutex
	streams   map[snowflake.ID]*lavalinkStreamPlayer
}

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	Address  string
	Password string
	Secure   bool
}

// NewLavalinkAdapter creates a new LavalinkAdapter.
func NewLavalinkAdapter(
	ctx context.Context,
	session *discordgo.Session,
	config LavalinkConfig,
) (*LavalinkAdapter, error) {
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	adapter := &LavalinkAdapter{
		session:      session,
		botID:        botID,
		pending:      make(map[snowflake.ID]*pendingVoiceConnection),
		voiceBuffers: make(map[snowflake.ID]*voiceEventBuffer),
		streams:      make(map[snowflake.ID]*lavalinkStreamPlayer),
	}

	// Create DisGoLink client
	link := disgolink.New(botID,
		disgolink.WithListenerFunc(adapter.onTrackStart),
		disgolink.WithListenerFunc(adapter.onTrackEnd),
		disgolink.WithListenerFunc(adapter.onTrackException),
		disgolink.WithListenerFunc(adapter.onTrackStuck),
	)
	adapter.link = link

	// Add Lavalink node
	node, err := link.AddNode(ctx, disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return adapter, nil
}

// Close closes the Lavalink connection.
func (c *LavalinkAdapter) Close() {
	c.link.Close()
}

// Connect joins a voice channel through the gateway and hands the voice
// session to Lavalink. It waits for both VoiceStateUpdate and
// VoiceServerUpdate events before returning.
func (c *LavalinkAdapter) Connect(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceConnection, error) {
	// Create pending connection tracker
	pending := &pendingVoiceConnection{
		ready: make(chan struct{}),
	}

	c.pendingMu.Lock()
	c.pending[guildID] = pending
	c.pendingMu.Unlock()

	// Cleanup pending entry when done
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, guildID)
		c.pendingMu.Unlock()
	}()

	err := c.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return nil, err
	}

	// Wait for voice connection to be established (both events received)
	select {
	case <-pending.ready:
		return &lavalinkConnection{adapter: c, guildID: guildID, channelID: channelID}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-time.After(voiceConnectionTimeout):
		return nil, errors.New("timeout waiting for voice connection")
	}
}

func (c *LavalinkAdapter) leave(ctx context.Context, guildID snowflake.ID) error {
	// Destroy the player
	player := c.link.ExistingPlayer(guildID)
	if player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}

	// Leave voice channel
	if err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, false); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Search resolves a query with Lavalink's track loader and returns the first match.
func (c *LavalinkAdapter) Search(ctx context.Context, query string) (*ports.SearchResult, error) {
	node := c.link.BestNode()
	if node == nil {
		return nil, errors.New("no available Lavalink node")
	}

	result, err := node.LoadTracks(ctx, domain.NewSearchQuery(query).LavalinkQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks: %w", err)
	}

	return convertLoadResult(result)
}

// convertLoadResult picks the first playable track of a load result.
func convertLoadResult(result *lavalink.LoadResult) (*ports.SearchResult, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return convertTrack(data), nil

	case lavalink.Playlist:
		if len(data.Tracks) == 0 {
			return nil, errors.New("playlist is empty")
		}
		index := max(int(data.Info.SelectedTrack), 0)
		if index >= len(data.Tracks) {
			index = 0
		}
		return convertTrack(data.Tracks[index]), nil

	case lavalink.Search:
		if len(data) == 0 {
			return nil, errors.New("no matches found")
		}
		return convertTrack(data[0]), nil

	case lavalink.Exception:
		return nil, errors.New(data.Message)

	default:
		return nil, errors.New("no matches found")
	}
}

// convertTrack converts a Lavalink track to a SearchResult.
func convertTrack(track lavalink.Track) *ports.SearchResult {
	info := track.Info

	result := &ports.SearchResult{
		Encoded:    track.Encoded,
		Title:      info.Title,
		URI:        getStringPtr(info.URI),
		SourceName: info.SourceName,
		IsLive:     info.IsStream,
	}
	if !info.IsStream {
		result.Duration = time.Duration(info.Length) * time.Millisecond
	}
	return result
}

func getStringPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create returns a stream player that plays item on the guild's Lavalink player.
func (c *LavalinkAdapter) Create(item *domain.PlayableItem, opts ports.PlayOptions) ports.StreamPlayer {
	return &lavalinkStreamPlayer{
		adapter: c,
		item:    item,
		opts:    opts,
		stop:    make(chan struct{}),
		ended:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *LavalinkAdapter) attach(guildID snowflake.ID, p *lavalinkStreamPlayer) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	c.streams[guildID] = p
}

func (c *LavalinkAdapter) detach(guildID snowflake.ID, p *lavalinkStreamPlayer) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	if c.streams[guildID] == p {
		delete(c.streams, guildID)
	}
}

func (c *LavalinkAdapter) updateTrack(
	ctx context.Context,
	guildID snowflake.ID,
	opts ...lavalink.PlayerUpdateOpt,
) error {
	return c.link.Player(guildID).Update(ctx, opts...)
}

func (c *LavalinkAdapter) clearTrack(ctx context.Context, guildID snowflake.ID) error {
	player := c.link.ExistingPlayer(guildID)
	if player == nil {
		return nil
	}
	return player.Update(ctx, lavalink.WithNullTrack())
}

func (c *LavalinkAdapter) stream(guildID snowflake.ID, encoded string) *lavalinkStreamPlayer {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	p := c.streams[guildID]
	if p == nil || p.item.Source.Encoded != encoded {
		return nil
	}
	return p
}

// OnVoiceServerUpdate handles Discord voice server updates.
// This must be called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	// Get or create voice buffer for this guild
	buffer := c.getOrCreateVoiceBuffer(guildID)

	// Store voice server data and check if both events are ready
	if buffer.setVoiceServer(event.Token, event.Endpoint) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, false)
}

// OnVoiceStateUpdate handles Discord voice state updates.
// This must be called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	// Only handle updates for the bot itself
	if event.UserID != c.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	sessionID := event.SessionID

	// Parse the channel ID - if empty, the bot is disconnecting
	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// Handle disconnect immediately (no need to wait for VoiceServerUpdate)
	if channelID == nil {
		c.link.OnVoiceStateUpdate(context.Background(), guildID, nil, sessionID)
		c.clearVoiceBuffer(guildID)
		return
	}

	buffer := c.getOrCreateVoiceBuffer(guildID)
	if buffer.setVoiceState(channelID, sessionID) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, true)
}

func (c *LavalinkAdapter) signalPending(guildID snowflake.ID, isVoiceState bool) {
	c.pendingMu.Lock()
	pending := c.pending[guildID]
	c.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(isVoiceState)
	}
}

// getOrCreateVoiceBuffer returns the voice buffer for a guild, creating one if needed.
func (c *LavalinkAdapter) getOrCreateVoiceBuffer(guildID snowflake.ID) *voiceEventBuffer {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()

	buffer, exists := c.voiceBuffers[guildID]
	if !exists {
		buffer = &voiceEventBuffer{}
		c.voiceBuffers[guildID] = buffer
	}
	return buffer
}

// clearVoiceBuffer removes the voice buffer for a guild.
func (c *LavalinkAdapter) clearVoiceBuffer(guildID snowflake.ID) {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()
	delete(c.voiceBuffers, guildID)
}

// forwardBufferedVoiceEvents sends the buffered voice events to Lavalink.
func (c *LavalinkAdapter) forwardBufferedVoiceEvents(
	guildID snowflake.ID,
	buffer *voiceEventBuffer,
) {
	channelID, sessionID, token, endpoint := buffer.getData()

	slog.Debug("forwarding buffered voice events to Lavalink",
		"guild", guildID,
		"channel", channelID,
		"hasSessionID", sessionID != "",
	)

	// Forward to Lavalink in the correct order
	c.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	c.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

func (c *LavalinkAdapter) onTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)

	if p := c.stream(player.GuildID(), event.Track.Encoded); p != nil {
		p.onStart()
	}
}

func (c *LavalinkAdapter) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)

	if p := c.stream(player.GuildID(), event.Track.Encoded); p != nil {
		p.onEnd(event.Reason)
	}
}

func (c *LavalinkAdapter) onTrackException(
	player disgolink.Player,
	event lavalink.TrackExceptionEvent,
) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)

	if p := c.stream(player.GuildID(), event.Track.Encoded); p != nil {
		p.setErr(errors.New(event.Exception.Message))
	}
}

func (c *LavalinkAdapter) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
}

// lavalinkConnection is a voice connection whose audio is sent by Lavalink.
type lavalinkConnection struct {
	adapter   *LavalinkAdapter
	guildID   snowflake.ID
	channelID snowflake.ID
}

func (c *lavalinkConnection) GuildID() snowflake.ID   { return c.guildID }
func (c *lavalinkConnection) ChannelID() snowflake.ID { return c.channelID }

func (c *lavalinkConnection) Disconnect(ctx context.Context) error {
	return c.adapter.leave(ctx, c.guildID)
}

// guildPlayers is the adapter side of a lavalinkStreamPlayer.
type guildPlayers interface {
	attach(guildID snowflake.ID, p *lavalinkStreamPlayer)
	detach(guildID snowflake.ID, p *lavalinkStreamPlayer)
	updateTrack(ctx context.Context, guildID snowflake.ID, opts ...lavalink.PlayerUpdateOpt) error
	clearTrack(ctx context.Context, guildID snowflake.ID) error
}

// lavalinkStreamPlayer plays one item on a guild's Lavalink player. Only
// Play sends player updates, so a stop always lands after the track it stops.
type lavalinkStreamPlayer struct {
	adapter guildPlayers
	item    *domain.PlayableItem
	opts    ports.PlayOptions

	eos       atomic.Bool
	mu        sync.Mutex
	err       error
	stopErr   error
	stop      chan struct{}
	stopOnce  sync.Once
	ended     chan struct{}
	endOnce   sync.Once
	startOnce sync.Once
	done      chan struct{}
}

func (p *lavalinkStreamPlayer) Play(ctx context.Context, conn ports.VoiceConnection) error {
	defer close(p.done)

	select {
	case <-p.stop:
		return nil
	default:
	}

	if p.item.Source.Encoded == "" {
		return errors.New("item has no Lavalink track")
	}

	guildID := conn.GuildID()
	p.adapter.attach(guildID, p)
	defer p.adapter.detach(guildID, p)

	opts := []lavalink.PlayerUpdateOpt{lavalink.WithEncodedTrack(p.item.Source.Encoded)}
	if p.opts.Offset > 0 {
		opts = append(opts, lavalink.WithPosition(lavalink.Duration(p.opts.Offset.Milliseconds())))
	}

	if err := p.adapter.updateTrack(ctx, guildID, opts...); err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = p.stopPlayer(guildID)
		return ctx.Err()
	case <-p.stop:
		if !p.hasEnded() {
			err := p.stopPlayer(guildID)
			p.mu.Lock()
			p.stopErr = err
			p.mu.Unlock()
		}
		return nil
	case <-p.ended:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.err
	}
}

// Stop signals Play to stop the Lavalink player and waits until it has.
func (p *lavalinkStreamPlayer) Stop(ctx context.Context) error {
	first := false
	p.stopOnce.Do(func() {
		first = true
		close(p.stop)
	})
	if !first {
		return nil
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopErr
}

func (p *lavalinkStreamPlayer) stopPlayer(guildID snowflake.ID) error {
	ctx, cancel := context.WithTimeout(context.Background(), voiceConnectionTimeout)
	defer cancel()

	if err := p.adapter.clearTrack(ctx, guildID); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}

func (p *lavalinkStreamPlayer) onStart() {
	p.startOnce.Do(func() {
		if p.opts.OnAudioStart != nil {
			p.opts.OnAudioStart()
		}
	})
}

func (p *lavalinkStreamPlayer) EndOfStream() bool {
	return p.eos.Load()
}

func (p *lavalinkStreamPlayer) hasEnded() bool {
	select {
	case <-p.ended:
		return true
	default:
		return false
	}
}

func (p *lavalinkStreamPlayer) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err == nil {
		p.err = err
	}
}

func (p *lavalinkStreamPlayer) onEnd(reason lavalink.TrackEndReason) {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		p.eos.Store(true)
	case lavalink.TrackEndReasonLoadFailed:
		p.setErr(errors.New("failed to load track"))
	}
	p.endOnce.Do(func() { close(p.ended) })
}

// Ensure LavalinkAdapter implements port interfaces.
var (
	_ ports.VoicePlatform       = (*LavalinkAdapter)(nil)
	_ ports.Searcher            = (*LavalinkAdapter)(nil)
	_ ports.StreamPlayerFactory = (*LavalinkAdapter)(nil)
)
