package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

const (
	// DefaultTickInterval is how often the playback loop runs.
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultIdleTimeout is how long the bot idles in voice before leaving.
	DefaultIdleTimeout = 5 * time.Minute

	// stopTimeout bounds how long a stream player may take to unwind.
	stopTimeout = 10 * time.Second
)

// StateMachineConfig tunes the playback loop.
type StateMachineConfig struct {
	TickInterval time.Duration
	IdleTimeout  time.Duration
}

// IdleHandler is called, on its own goroutine, once the machine has idled in
// voice past the timeout.
type IdleHandler func(ctx context.Context, idleFor time.Duration)

// activePlayback is the one stream player currently running.
type activePlayback struct {
	item   *domain.PlayableItem
	player ports.StreamPlayer
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done is closed

	progressMu sync.Mutex
	stopped    bool
}

// audioStarted starts the item's progress timer unless playback already ended.
func (a *activePlayback) audioStarted() {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()

	if !a.stopped {
		a.item.StartProgress()
	}
}

// finish freezes the item's progress timer for good.
func (a *activePlayback) finish() {
	a.progressMu.Lock()
	defer a.progressMu.Unlock()

	a.stopped = true
	a.item.StopProgress()
}

func (a *activePlayback) exited() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// PlaybackStateMachine drives one guild's playback. A single loop applies at
// most one request per tick and then checks the active player, so every
// state transition happens on the loop goroutine.
type PlaybackStateMachine struct {
	guildID   snowflake.ID
	queue     *domain.Queue
	requests  *RequestQueue
	voice     *VoiceConnectionManager
	players   ports.StreamPlayerFactory
	publisher ports.EventPublisher
	onIdle    IdleHandler

	tickInterval time.Duration
	idleTimeout  time.Duration
	now          func() time.Time

	mu        sync.Mutex
	state     domain.PlaybackState
	live      *domain.PlayableItem
	active    *activePlayback
	idleSince time.Time
	leaving   bool
}

// NewPlaybackStateMachine creates an idle state machine.
func NewPlaybackStateMachine(
	guildID snowflake.ID,
	queue *domain.Queue,
	voice *VoiceConnectionManager,
	players ports.StreamPlayerFactory,
	publisher ports.EventPublisher,
	config StateMachineConfig,
) *PlaybackStateMachine {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	return &PlaybackStateMachine{
		guildID:      guildID,
		queue:        queue,
		requests:     NewRequestQueue(),
		voice:        voice,
		players:      players,
		publisher:    publisher,
		tickInterval: config.TickInterval,
		idleTimeout:  config.IdleTimeout,
		now:          time.Now,
		state:        domain.StateIdle,
	}
}

// SetIdleHandler registers the idle auto-leave callback.
func (m *PlaybackStateMachine) SetIdleHandler(handler IdleHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onIdle = handler
}

// State returns the current playback state.
func (m *PlaybackStateMachine) State() domain.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// NowPlaying returns the item bound to the active player, or nil.
func (m *PlaybackStateMachine) NowPlaying() *domain.PlayableItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	return m.active.item
}

// LiveTarget returns the live fallback item, or nil.
func (m *PlaybackStateMachine) LiveTarget() *domain.PlayableItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.live
}

// SetLiveTarget replaces the live fallback and returns the previous one. A
// running stream of the previous target is swapped on the next tick.
func (m *PlaybackStateMachine) SetLiveTarget(item *domain.PlayableItem) *domain.PlayableItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.live
	m.live = item
	return prev
}

// Submit enqueues a request for the loop.
func (m *PlaybackStateMachine) Submit(action domain.Action) *Request {
	return m.requests.Submit(action)
}

// PauseActive implements PlaybackPauser.
func (m *PlaybackStateMachine) PauseActive(ctx context.Context) (bool, error) {
	outcome, err := m.Submit(domain.ActionPause).Wait(ctx)
	if err != nil {
		return false, err
	}
	return outcome.Applied, nil
}

// Run drives the loop until ctx is cancelled, then stops any active player
// and fails pending requests.
func (m *PlaybackStateMachine) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	defer m.shutdown(ctx)

	slog.Debug("playback loop started", "guild", m.guildID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

func (m *PlaybackStateMachine) shutdown(ctx context.Context) {
	m.requests.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopActive(ctx, domain.TrackEndStopped)
	m.setState(domain.StateIdle)

	slog.Debug("playback loop stopped", "guild", m.guildID)
}

// Tick applies at most one pending request and re-checks the active player.
// Panics are logged and swallowed so the loop keeps running.
func (m *PlaybackStateMachine) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in playback tick", "guild", m.guildID, "panic", r)
		}
	}()

	if req, ok := m.requests.TryDequeue(); ok {
		m.handleRequest(ctx, req)
	}
	m.evaluate(ctx)
}

func (m *PlaybackStateMachine) handleRequest(ctx context.Context, req *Request) {
	var outcome Outcome
	defer func() {
		outcome.State = m.state
		req.complete(outcome, nil)
		m.publish(domain.RequestProcessedEvent{
			GuildID: m.guildID,
			Action:  req.Action,
			Applied: outcome.Applied,
			Waited:  time.Since(req.SubmittedAt),
		})
	}()

	switch req.Action {
	case domain.ActionPlay:
		outcome = m.applyPlay(ctx)
	case domain.ActionPause:
		outcome = m.applyPause(ctx)
	case domain.ActionSkip:
		outcome = m.applySkip(ctx)
	}

	slog.Debug("processed playback request",
		"guild", m.guildID,
		"action", req.Action,
		"applied", outcome.Applied,
		"state", m.state,
	)
}

func (m *PlaybackStateMachine) applyPlay(ctx context.Context) Outcome {
	switch m.state {
	case domain.StatePlaying:
		return Outcome{}
	case domain.StateStreaming:
		if m.queue.IsEmpty() {
			return Outcome{}
		}
		m.stopActive(ctx, domain.TrackEndStopped)
		return m.startNext(ctx)
	default:
		return m.startNext(ctx)
	}
}

func (m *PlaybackStateMachine) applyPause(ctx context.Context) Outcome {
	if !m.state.IsActive() || m.active == nil {
		return Outcome{}
	}

	item := m.active.item
	m.stopActive(ctx, domain.TrackEndStopped)
	m.setState(domain.StatePaused)

	return Outcome{Applied: true, Item: item}
}

func (m *PlaybackStateMachine) applySkip(ctx context.Context) Outcome {
	if m.state != domain.StatePlaying || m.active == nil {
		return Outcome{}
	}

	item := m.active.item
	m.stopActive(ctx, domain.TrackEndSkipped)
	m.queue.Remove(item)
	item.Dispose()
	m.startNext(ctx)

	return Outcome{Applied: true, Item: item}
}

// startNext starts the front queue item, else the live target, else idles.
func (m *PlaybackStateMachine) startNext(ctx context.Context) Outcome {
	conn := m.voice.Connection()
	if conn == nil {
		if m.state != domain.StatePaused {
			m.setState(domain.StateIdle)
		}
		return Outcome{}
	}

	if item, ok := m.queue.TryPeekFront(); ok {
		m.startPlayer(ctx, conn, item, domain.StatePlaying)
		return Outcome{Applied: true, Item: item}
	}

	if m.live != nil {
		m.startPlayer(ctx, conn, m.live, domain.StateStreaming)
		return Outcome{Applied: true, Item: m.live}
	}

	m.setState(domain.StateIdle)
	return Outcome{}
}

func (m *PlaybackStateMachine) startPlayer(
	ctx context.Context,
	conn ports.VoiceConnection,
	item *domain.PlayableItem,
	state domain.PlaybackState,
) {
	if m.active != nil {
		m.stopActive(ctx, domain.TrackEndStopped)
	}

	var offset time.Duration
	if !item.IsLive() {
		offset = item.Elapsed()
	}

	playCtx, cancel := context.WithCancel(ctx)
	active := &activePlayback{
		item:   item,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	// Progress only counts once audio is actually going out.
	active.player = m.players.Create(item, ports.PlayOptions{
		Offset:       offset,
		OnAudioStart: active.audioStarted,
	})

	go func() {
		defer close(active.done)
		if err := active.player.Play(playCtx, conn); err != nil && !errors.Is(err, context.Canceled) {
			active.err = err
		}
	}()

	m.active = active
	m.setState(state)

	slog.Info("started playback",
		"guild", m.guildID,
		"title", item.Title(),
		"state", state,
		"offset", offset,
	)

	m.publish(domain.PlaybackStartedEvent{
		GuildID: m.guildID,
		Item:    item.Snapshot(),
		State:   state,
	})
}

// stopActive stops the active player and waits for it to unwind.
func (m *PlaybackStateMachine) stopActive(ctx context.Context, reason domain.TrackEndReason) {
	active := m.active
	if active == nil {
		return
	}
	m.active = nil

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	if err := active.player.Stop(stopCtx); err != nil {
		slog.Warn("failed to stop stream player", "guild", m.guildID, "error", err)
	}
	select {
	case <-active.done:
	case <-stopCtx.Done():
		slog.Warn("stream player did not unwind in time",
			"guild", m.guildID,
			"title", active.item.Title(),
		)
	}
	active.cancel()
	active.finish()

	m.publish(domain.PlaybackEndedEvent{
		GuildID: m.guildID,
		Item:    active.item.Snapshot(),
		Reason:  reason,
	})
}

func (m *PlaybackStateMachine) evaluate(ctx context.Context) {
	switch m.state {
	case domain.StatePlaying:
		m.checkPlaying(ctx)
	case domain.StateStreaming:
		m.checkStreaming(ctx)
	default:
		m.checkIdle(ctx)
	}
}

func (m *PlaybackStateMachine) checkPlaying(ctx context.Context) {
	active := m.active
	if active == nil {
		m.startNext(ctx)
		return
	}
	if !active.player.EndOfStream() && !active.exited() {
		return
	}

	item := active.item
	active.finish()

	reason := domain.TrackEndFinished
	if !active.player.EndOfStream() || item.EndedEarly() {
		reason = domain.TrackEndFailed
	}

	m.stopActive(ctx, reason)

	if reason == domain.TrackEndFailed {
		var playErr error
		if active.exited() {
			playErr = active.err
		}
		slog.Error("playback failure",
			"guild", m.guildID,
			"title", item.Title(),
			"elapsed", item.Elapsed(),
			"duration", item.Duration(),
			"error", playErr,
		)
	}

	m.queue.Remove(item)
	item.Dispose()
	m.startNext(ctx)
}

func (m *PlaybackStateMachine) checkStreaming(ctx context.Context) {
	active := m.active

	switch {
	case !m.queue.IsEmpty():
		// Queued songs take over from the live fallback.
		m.stopActive(ctx, domain.TrackEndStopped)
		m.startNext(ctx)

	case active == nil || active.item != m.live:
		m.stopActive(ctx, domain.TrackEndStopped)
		m.startNext(ctx)

	case active.player.EndOfStream() || active.exited():
		m.stopActive(ctx, domain.TrackEndFinished)
		var playErr error
		if active.exited() {
			playErr = active.err
		}
		slog.Warn("live stream ended",
			"guild", m.guildID,
			"title", active.item.Title(),
			"error", playErr,
		)
		m.setState(domain.StateIdle)
	}
}

func (m *PlaybackStateMachine) checkIdle(ctx context.Context) {
	if m.voice.Connection() == nil {
		m.idleSince = time.Time{}
		return
	}
	if m.idleSince.IsZero() {
		m.idleSince = m.now()
		return
	}
	if m.leaving || m.onIdle == nil {
		return
	}

	idleFor := m.now().Sub(m.idleSince)
	if idleFor <= m.idleTimeout {
		return
	}

	m.leaving = true
	m.idleSince = time.Time{}
	handler := m.onIdle

	go func() {
		defer func() {
			m.mu.Lock()
			m.leaving = false
			m.mu.Unlock()
		}()
		handler(ctx, idleFor)
	}()
}

func (m *PlaybackStateMachine) setState(state domain.PlaybackState) {
	m.state = state
	if state.IsActive() {
		m.idleSince = time.Time{}
	}
}

func (m *PlaybackStateMachine) publish(event domain.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(event); err != nil {
		slog.Debug("failed to publish playback event", "guild", m.guildID, "error", err)
	}
}
