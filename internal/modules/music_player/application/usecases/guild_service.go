package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxSongDuration is the longest song that may be queued.
	DefaultMaxSongDuration = 15 * time.Minute

	// DefaultMinLiveDuration is the shortest known duration accepted as a live stream.
	DefaultMinLiveDuration = 10 * time.Minute

	// DefaultReconnectGrace is how long a dropped voice connection may take to come back.
	DefaultReconnectGrace = 10 * time.Second

	voiceLostTimeout = 30 * time.Second
)

// ServiceConfig holds the per-guild playback limits and timings.
type ServiceConfig struct {
	StateMachine    StateMachineConfig
	MaxSongDuration time.Duration
	MinLiveDuration time.Duration
	ReconnectGrace  time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxSongDuration <= 0 {
		c.MaxSongDuration = DefaultMaxSongDuration
	}
	if c.MinLiveDuration <= 0 {
		c.MinLiveDuration = DefaultMinLiveDuration
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = DefaultReconnectGrace
	}
	return c
}

// GuildServiceDeps are the collaborators shared by every guild.
type GuildServiceDeps struct {
	BotID      snowflake.ID
	Searcher   ports.Searcher
	Voice      ports.VoicePlatform
	Players    ports.StreamPlayerFactory
	VoiceState ports.VoiceStateProvider
	Options    domain.GuildOptionsRepository
	Publisher  ports.EventPublisher
	Config     ServiceConfig
}

// GuildPlaybackService is the command-level façade for one guild. Every
// operation holds the guild's lock for its whole duration.
type GuildPlaybackService struct {
	guildID snowflake.ID
	deps    GuildServiceDeps
	config  ServiceConfig

	gate    *semaphore.Weighted
	queue   *domain.Queue
	voice   *VoiceConnectionManager
	machine *PlaybackStateMachine

	optionsMu       sync.RWMutex
	options         domain.GuildOptions
	lastTextChannel snowflake.ID

	lostMu    sync.Mutex
	lostTimer *time.Timer
}

// NewGuildPlaybackService wires the queue, voice manager and state machine of a guild.
func NewGuildPlaybackService(
	guildID snowflake.ID,
	deps GuildServiceDeps,
	options domain.GuildOptions,
) *GuildPlaybackService {
	config := deps.Config.withDefaults()
	queue := domain.NewQueue()
	voice := NewVoiceConnectionManager(guildID, deps.Voice, nil)
	machine := NewPlaybackStateMachine(
		guildID,
		queue,
		voice,
		deps.Players,
		deps.Publisher,
		config.StateMachine,
	)
	voice.pauser = machine

	s := &GuildPlaybackService{
		guildID: guildID,
		deps:    deps,
		config:  config,
		gate:    semaphore.NewWeighted(1),
		queue:   queue,
		voice:   voice,
		machine: machine,
		options: options,
	}
	machine.SetIdleHandler(s.leaveIdle)

	return s
}

// GuildID returns the guild this service belongs to.
func (s *GuildPlaybackService) GuildID() snowflake.ID {
	return s.guildID
}

// Run drives the guild's playback loop until ctx is cancelled.
func (s *GuildPlaybackService) Run(ctx context.Context) {
	s.machine.Run(ctx)
}

// State returns the current playback state.
func (s *GuildPlaybackService) State() domain.PlaybackState {
	return s.machine.State()
}

// Options returns the guild's current options.
func (s *GuildPlaybackService) Options() domain.GuildOptions {
	s.optionsMu.RLock()
	defer s.optionsMu.RUnlock()

	return s.options
}

// NotificationChannel returns the designated channel, else the channel the
// last command came from.
func (s *GuildPlaybackService) NotificationChannel() snowflake.ID {
	s.optionsMu.RLock()
	defer s.optionsMu.RUnlock()

	if s.options.HasDesignatedChannel() {
		return s.options.DesignatedTextChannelID
	}
	return s.lastTextChannel
}

func (s *GuildPlaybackService) rememberTextChannel(channelID snowflake.ID) {
	if channelID == 0 {
		return
	}
	s.optionsMu.Lock()
	s.lastTextChannel = channelID
	s.optionsMu.Unlock()
}

func (s *GuildPlaybackService) lock(ctx context.Context) (func(), error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.gate.Release(1) }, nil
}

// QueueSong resolves a query and queues the result, joining the requester's
// voice channel if needed.
func (s *GuildPlaybackService) QueueSong(
	ctx context.Context,
	input QueueSongInput,
) (*QueueSongOutput, error) {
	if input.Requester.ID == 0 {
		return nil, ErrUnknownMember
	}
	query := domain.NewSearchQuery(input.Query)
	if !query.IsValid() {
		return nil, ErrEmptyQuery
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.rememberTextChannel(input.TextChannelID)

	options := s.Options()
	if !options.CanQueue(s.queue.CountRequestedBy(input.Requester.ID)) {
		return nil, fmt.Errorf("%w: you can queue at most %d songs",
			ErrSlowModeLimit, options.MaxSongsPerPerson)
	}

	var joinChannel snowflake.ID
	if !s.voice.IsConnected() {
		joinChannel, err = s.requesterChannel(input.Requester.ID)
		if err != nil {
			return nil, err
		}
	}

	result, err := s.deps.Searcher.Search(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("%w for %q: %w", ErrSearchFailed, query.Query, err)
	}
	if result.IsLive {
		return nil, ErrLiveNotQueueable
	}
	if result.Duration > s.config.MaxSongDuration {
		return nil, fmt.Errorf("%w: max %s",
			ErrDurationTooLong,
			domain.FormatDuration(s.config.MaxSongDuration),
		)
	}

	if joinChannel != 0 {
		if _, err := s.voice.Join(ctx, joinChannel); err != nil {
			return nil, err
		}
	}

	item := domain.NewPlayableItem(input.Requester, sourceFromResult(result))
	s.queue.Enqueue(item)
	position := s.queue.Count() - 1

	slog.Info("queued song",
		"guild", s.guildID,
		"title", item.Title(),
		"requester", input.Requester.ID,
		"position", position,
	)

	s.publish(domain.TrackEnqueuedEvent{
		GuildID:  s.guildID,
		Item:     item.Snapshot(),
		Position: position,
	})

	if _, err := s.machine.Submit(domain.ActionPlay).Wait(ctx); err != nil {
		slog.Warn("play request after queueing did not complete", "guild", s.guildID, "error", err)
	}

	return &QueueSongOutput{
		Item:            item.Snapshot(),
		Position:        position,
		JoinedChannelID: joinChannel,
	}, nil
}

// Play starts or resumes playback.
func (s *GuildPlaybackService) Play(ctx context.Context, input PlayInput) (*PlaybackOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.rememberTextChannel(input.TextChannelID)

	if s.queue.IsEmpty() && s.machine.LiveTarget() == nil {
		return nil, ErrNothingToPlay
	}

	if !s.voice.IsConnected() {
		channelID, err := s.requesterChannel(input.Requester.ID)
		if err != nil {
			return nil, err
		}
		if _, err := s.voice.Join(ctx, channelID); err != nil {
			return nil, err
		}
	}

	outcome, err := s.machine.Submit(domain.ActionPlay).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied {
		return nil, ErrAlreadyPlaying
	}

	return &PlaybackOutput{Item: outcome.Item.Snapshot(), State: outcome.State}, nil
}

// Pause stops the active player, keeping the current song at the front.
func (s *GuildPlaybackService) Pause(ctx context.Context) (*PlaybackOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	outcome, err := s.machine.Submit(domain.ActionPause).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied {
		return nil, ErrNotPlaying
	}

	return &PlaybackOutput{Item: outcome.Item.Snapshot(), State: outcome.State}, nil
}

// Skip drops the playing song and moves on.
func (s *GuildPlaybackService) Skip(ctx context.Context) (*SkipOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.skipLocked(ctx)
}

func (s *GuildPlaybackService) skipLocked(ctx context.Context) (*SkipOutput, error) {
	outcome, err := s.machine.Submit(domain.ActionSkip).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied {
		return nil, ErrNotPlaying
	}

	output := &SkipOutput{
		Skipped: outcome.Item.Snapshot(),
		State:   outcome.State,
	}
	if next := s.machine.NowPlaying(); next != nil {
		snapshot := next.Snapshot()
		output.Next = &snapshot
	}
	return output, nil
}

// SetLive replaces the live fallback stream.
func (s *GuildPlaybackService) SetLive(ctx context.Context, input SetLiveInput) (*SetLiveOutput, error) {
	query := domain.NewSearchQuery(input.URI)
	if !query.IsValid() {
		return nil, ErrEmptyQuery
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.rememberTextChannel(input.TextChannelID)

	result, err := s.deps.Searcher.Search(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLiveStream, err.Error())
	}
	if !result.IsLive && result.Duration != 0 && result.Duration < s.config.MinLiveDuration {
		return nil, fmt.Errorf("%w: not a live stream", ErrInvalidLiveStream)
	}

	item := domain.NewLiveItem(input.Requester, sourceFromResult(result))
	prev := s.machine.SetLiveTarget(item)
	if prev != nil {
		prev.Dispose()
	}

	slog.Info("set live stream", "guild", s.guildID, "title", item.Title(), "replaced", prev != nil)

	if !s.voice.IsConnected() {
		channelID, err := s.requesterChannel(input.Requester.ID)
		if err == nil {
			if _, err := s.voice.Join(ctx, channelID); err != nil {
				slog.Warn("failed to join voice for live stream", "guild", s.guildID, "error", err)
			}
		}
	}

	if s.voice.IsConnected() && s.machine.State() == domain.StateIdle {
		if _, err := s.machine.Submit(domain.ActionPlay).Wait(ctx); err != nil {
			return nil, err
		}
	}

	return &SetLiveOutput{Item: item.Snapshot(), Replaced: prev != nil}, nil
}

// RemoveSongAt removes the song at a 0-based queue position. Position 0 is
// the current song and is skipped rather than removed.
func (s *GuildPlaybackService) RemoveSongAt(ctx context.Context, index int) (*RemoveOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if index < 0 || index >= s.queue.Count() {
		return nil, ErrInvalidPosition
	}

	if index == 0 {
		return s.removeFrontLocked(ctx)
	}

	item := s.queue.RemoveAt(index)
	if item == nil {
		return nil, ErrInvalidPosition
	}
	item.Dispose()

	slog.Info("removed song", "guild", s.guildID, "title", item.Title(), "position", index)

	return &RemoveOutput{Removed: item.Snapshot()}, nil
}

func (s *GuildPlaybackService) removeFrontLocked(ctx context.Context) (*RemoveOutput, error) {
	// A stream about to hand over to the queue is settled first.
	if s.machine.State() == domain.StateStreaming {
		if _, err := s.machine.Submit(domain.ActionPlay).Wait(ctx); err != nil {
			return nil, err
		}
	}

	if s.machine.State() == domain.StatePlaying {
		skipped, err := s.skipLocked(ctx)
		if err != nil {
			return nil, err
		}
		return &RemoveOutput{Removed: skipped.Skipped, Skipped: true}, nil
	}

	// Idle or paused: nothing is streaming the front item.
	item := s.queue.RemoveAt(0)
	if item == nil {
		return nil, ErrInvalidPosition
	}
	item.Dispose()
	return &RemoveOutput{Removed: item.Snapshot()}, nil
}

// ClearQueue removes every queued song. Active playback is paused around the
// clear so a live fallback can take over.
func (s *GuildPlaybackService) ClearQueue(ctx context.Context) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if s.queue.IsEmpty() {
		return 0, ErrQueueEmpty
	}

	wasActive := s.machine.State().IsActive()
	if wasActive {
		if _, err := s.machine.Submit(domain.ActionPause).Wait(ctx); err != nil {
			return 0, err
		}
	}

	removed := s.queue.Clear()

	if wasActive {
		if _, err := s.machine.Submit(domain.ActionPlay).Wait(ctx); err != nil {
			return removed, err
		}
	}

	slog.Info("cleared queue", "guild", s.guildID, "removed", removed)

	s.publish(domain.QueueClearedEvent{GuildID: s.guildID, Removed: removed})

	return removed, nil
}

// JoinVoice moves the bot to a voice channel, resuming playback afterwards.
func (s *GuildPlaybackService) JoinVoice(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.rememberTextChannel(input.TextChannelID)

	channelID := input.ChannelID
	if channelID == 0 {
		channelID, err = s.requesterChannel(input.Requester.ID)
		if err != nil {
			return nil, err
		}
	}

	if s.voice.ChannelID() == channelID {
		return &JoinOutput{ChannelID: channelID, AlreadyConnected: true}, nil
	}

	wasActive, err := s.voice.Join(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if wasActive {
		if _, err := s.machine.Submit(domain.ActionPlay).Wait(ctx); err != nil {
			return nil, err
		}
	}

	return &JoinOutput{ChannelID: channelID}, nil
}

// LeaveVoice pauses playback and leaves the voice channel.
func (s *GuildPlaybackService) LeaveVoice(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.voice.Leave(ctx)
}

// GetQueueSnapshot returns a copy of the queue, front first.
func (s *GuildPlaybackService) GetQueueSnapshot(ctx context.Context) ([]domain.ItemSnapshot, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	items := s.queue.List()
	snapshots := make([]domain.ItemSnapshot, len(items))
	for i, item := range items {
		snapshots[i] = item.Snapshot()
	}
	return snapshots, nil
}

// NowPlaying returns the item being streamed.
func (s *GuildPlaybackService) NowPlaying(ctx context.Context) (*NowPlayingOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	item := s.machine.NowPlaying()
	if item == nil {
		return nil, ErrNotPlaying
	}
	return &NowPlayingOutput{Item: item.Snapshot(), State: s.machine.State()}, nil
}

// NextUp returns the song that will play after the current one.
func (s *GuildPlaybackService) NextUp(ctx context.Context) (*domain.ItemSnapshot, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	index := 0
	if s.machine.State() == domain.StatePlaying || s.machine.State() == domain.StatePaused {
		index = 1
	}

	item := s.queue.At(index)
	if item == nil {
		return nil, ErrNoNextSong
	}
	snapshot := item.Snapshot()
	return &snapshot, nil
}

// SetDesignatedChannel restricts the bot's replies to channelID. Zero lifts it.
func (s *GuildPlaybackService) SetDesignatedChannel(ctx context.Context, channelID snowflake.ID) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.updateOptions(ctx, func(o *domain.GuildOptions) {
		o.DesignatedTextChannelID = channelID
	})
}

// SetSlowMode caps queued songs per requester and trims the queue to fit.
// A limit of zero or less turns slow mode off.
func (s *GuildPlaybackService) SetSlowMode(ctx context.Context, limit int) (*SlowModeOutput, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if limit < 0 {
		limit = 0
	}

	if err := s.updateOptions(ctx, func(o *domain.GuildOptions) {
		o.MaxSongsPerPerson = limit
	}); err != nil {
		return nil, err
	}

	removed := s.queue.TrimPerRequester(limit)
	for _, item := range removed {
		item.Dispose()
	}

	slog.Info("set slow mode", "guild", s.guildID, "limit", limit, "removed", len(removed))

	return &SlowModeOutput{MaxSongsPerPerson: limit, Removed: len(removed)}, nil
}

func (s *GuildPlaybackService) updateOptions(ctx context.Context, mutate func(*domain.GuildOptions)) error {
	s.optionsMu.Lock()
	updated := s.options
	mutate(&updated)
	s.optionsMu.Unlock()

	if s.deps.Options != nil {
		if err := s.deps.Options.Save(ctx, s.guildID, updated); err != nil {
			return fmt.Errorf("failed to save guild options: %w", err)
		}
	}

	s.optionsMu.Lock()
	s.options = updated
	s.optionsMu.Unlock()

	return nil
}

// HandleVoiceStateChange reacts to the bot's own voice state. A disconnect
// only pauses playback if the connection has not come back within the grace
// period.
func (s *GuildPlaybackService) HandleVoiceStateChange(channelID snowflake.ID) {
	s.lostMu.Lock()
	defer s.lostMu.Unlock()

	if channelID != 0 {
		if s.lostTimer != nil {
			s.lostTimer.Stop()
			s.lostTimer = nil
		}
		return
	}

	if s.lostTimer != nil || !s.voice.IsConnected() {
		return
	}

	slog.Warn("voice connection dropped, waiting for reconnect",
		"guild", s.guildID,
		"grace", s.config.ReconnectGrace,
	)
	s.lostTimer = time.AfterFunc(s.config.ReconnectGrace, s.onVoiceLost)
}

func (s *GuildPlaybackService) onVoiceLost() {
	s.lostMu.Lock()
	s.lostTimer = nil
	s.lostMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), voiceLostTimeout)
	defer cancel()

	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	if s.deps.VoiceState != nil && s.deps.BotID != 0 {
		channelID, err := s.deps.VoiceState.GetUserVoiceChannel(s.guildID, s.deps.BotID)
		if err == nil && channelID != 0 {
			slog.Info("voice connection recovered", "guild", s.guildID, "channel", channelID)
			return
		}
	}

	if err := s.voice.Drop(ctx); err != nil {
		slog.Warn("failed to release lost voice connection", "guild", s.guildID, "error", err)
		return
	}
	slog.Warn("voice connection lost, playback paused", "guild", s.guildID)
}

// leaveIdle is the state machine's idle handler.
func (s *GuildPlaybackService) leaveIdle(ctx context.Context, idleFor time.Duration) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return
	}
	defer unlock()

	if s.machine.State().IsActive() || !s.voice.IsConnected() {
		return
	}

	if err := s.voice.Leave(ctx); err != nil {
		slog.Warn("failed to leave idle voice channel", "guild", s.guildID, "error", err)
		return
	}

	slog.Info("left voice channel after idling", "guild", s.guildID, "idle", idleFor)

	s.publish(domain.IdleDisconnectedEvent{GuildID: s.guildID, IdleFor: idleFor})
}

// Close leaves voice and cancels pending reconnect checks. The loop keeps
// running until its context is cancelled.
func (s *GuildPlaybackService) Close(ctx context.Context) error {
	s.lostMu.Lock()
	if s.lostTimer != nil {
		s.lostTimer.Stop()
		s.lostTimer = nil
	}
	s.lostMu.Unlock()

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if !s.voice.IsConnected() {
		return nil
	}
	return s.voice.Leave(ctx)
}

// RequesterChannel returns the voice channel the user is connected to, or
// ErrUserNotInVoice.
func (s *GuildPlaybackService) RequesterChannel(userID snowflake.ID) (snowflake.ID, error) {
	return s.requesterChannel(userID)
}

func (s *GuildPlaybackService) requesterChannel(userID snowflake.ID) (snowflake.ID, error) {
	if userID == 0 {
		return 0, ErrUnknownMember
	}
	if s.deps.VoiceState == nil {
		return 0, ErrUserNotInVoice
	}

	channelID, err := s.deps.VoiceState.GetUserVoiceChannel(s.guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up voice state: %w", err)
	}
	if channelID == 0 {
		return 0, ErrUserNotInVoice
	}
	return channelID, nil
}

func (s *GuildPlaybackService) publish(event domain.Event) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(event); err != nil {
		slog.Debug("failed to publish event", "guild", s.guildID, "error", err)
	}
}

func sourceFromResult(result *ports.SearchResult) domain.Source {
	return domain.Source{
		Title:      result.Title,
		URI:        result.URI,
		Duration:   result.Duration,
		IsLive:     result.IsLive,
		SourceName: result.SourceName,
		Encoded:    result.Encoded,
	}
}
