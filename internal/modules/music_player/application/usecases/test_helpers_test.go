package usecases

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

func mockItem(title string, requesterID snowflake.ID) *domain.PlayableItem {
	return domain.NewPlayableItem(
		domain.Requester{ID: requesterID, Name: "user"},
		domain.Source{Title: title, URI: "https://example.com/" + title, SourceName: "youtube"},
	)
}

func mockLiveItem(title string) *domain.PlayableItem {
	return domain.NewLiveItem(
		domain.Requester{ID: 1, Name: "user"},
		domain.Source{Title: title, URI: "https://twitch.tv/" + title, IsLive: true, SourceName: "twitch"},
	)
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type mockConnection struct {
	guildID       snowflake.ID
	channelID     snowflake.ID
	disconnectErr error
	disconnected  atomic.Bool
}

func (c *mockConnection) GuildID() snowflake.ID   { return c.guildID }
func (c *mockConnection) ChannelID() snowflake.ID { return c.channelID }

func (c *mockConnection) Disconnect(_ context.Context) error {
	c.disconnected.Store(true)
	return c.disconnectErr
}

type mockPlatform struct {
	mu          sync.Mutex
	connectErr  error
	connections []*mockConnection
}

func (p *mockPlatform) Connect(
	_ context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connectErr != nil {
		return nil, p.connectErr
	}
	conn := &mockConnection{guildID: guildID, channelID: channelID}
	p.connections = append(p.connections, conn)
	return conn, nil
}

func (p *mockPlatform) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.connections)
}

func (p *mockPlatform) lastConnection() *mockConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.connections) == 0 {
		return nil
	}
	return p.connections[len(p.connections)-1]
}

// stubPlayer blocks in Play until it is stopped, cancelled, finished or failed.
type stubPlayer struct {
	item    *domain.PlayableItem
	opts    ports.PlayOptions
	factory *mockPlayerFactory

	eos     atomic.Bool
	stopped atomic.Bool
	once    sync.Once
	stop    chan struct{}
	finish  chan struct{}
	fail    chan error
	started chan struct{}
}

func newStubPlayer(item *domain.PlayableItem, opts ports.PlayOptions, factory *mockPlayerFactory) *stubPlayer {
	return &stubPlayer{
		item:    item,
		opts:    opts,
		factory: factory,
		stop:    make(chan struct{}),
		finish:  make(chan struct{}, 1),
		fail:    make(chan error, 1),
		started: make(chan struct{}),
	}
}

func (p *stubPlayer) Play(ctx context.Context, _ ports.VoiceConnection) error {
	p.factory.playStarted()
	defer p.factory.playEnded()

	close(p.started)
	if p.opts.OnAudioStart != nil && !p.factory.holdAudio.Load() {
		p.opts.OnAudioStart()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return nil
	case err := <-p.fail:
		return err
	case <-p.finish:
		return nil
	}
}

func (p *stubPlayer) Stop(_ context.Context) error {
	p.stopped.Store(true)
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *stubPlayer) EndOfStream() bool {
	return p.eos.Load()
}

// finishStream simulates the source running out.
func (p *stubPlayer) finishStream() {
	p.eos.Store(true)
	p.finish <- struct{}{}
}

// crash simulates the player exiting without reaching the end of the source.
func (p *stubPlayer) crash(err error) {
	p.fail <- err
}

type mockPlayerFactory struct {
	mu          sync.Mutex
	players     []*stubPlayer
	panicOnNext bool

	// playing counts Play calls that have not returned; overlaps counts
	// Play calls that began while another was still running.
	playing  atomic.Int32
	overlaps atomic.Int32

	// holdAudio keeps players from reporting audio on their own.
	holdAudio atomic.Bool
}

func (f *mockPlayerFactory) playStarted() {
	if f.playing.Add(1) > 1 {
		f.overlaps.Add(1)
	}
}

func (f *mockPlayerFactory) playEnded() {
	f.playing.Add(-1)
}

func (f *mockPlayerFactory) Create(item *domain.PlayableItem, opts ports.PlayOptions) ports.StreamPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicOnNext {
		f.panicOnNext = false
		panic("player construction failed")
	}
	player := newStubPlayer(item, opts, f)
	f.players = append(f.players, player)
	return player
}

func (f *mockPlayerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.players)
}

func (f *mockPlayerFactory) last() *stubPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.players) == 0 {
		return nil
	}
	return f.players[len(f.players)-1]
}

type mockVoiceStateProvider struct {
	mu       sync.Mutex
	channels map[snowflake.ID]snowflake.ID // userID -> channelID
	err      error
}

func newMockVoiceStateProvider() *mockVoiceStateProvider {
	return &mockVoiceStateProvider{channels: make(map[snowflake.ID]snowflake.ID)}
}

func (m *mockVoiceStateProvider) set(userID, channelID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.channels[userID] = channelID
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(_, userID snowflake.ID) (snowflake.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	return m.channels[userID], nil
}

type mockSearcher struct {
	mu      sync.Mutex
	results map[string]*ports.SearchResult
	err     error
	calls   []string
}

func newMockSearcher() *mockSearcher {
	return &mockSearcher{results: make(map[string]*ports.SearchResult)}
}

func (m *mockSearcher) add(query string, result *ports.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[query] = result
}

func (m *mockSearcher) Search(_ context.Context, query string) (*ports.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, query)
	if m.err != nil {
		return nil, m.err
	}
	result, ok := m.results[query]
	if !ok {
		return nil, errors.New("no matches")
	}
	return result, nil
}

type mockOptionsRepository struct {
	mu      sync.Mutex
	options map[snowflake.ID]domain.GuildOptions
	saveErr error
	saves   int
}

func newMockOptionsRepository() *mockOptionsRepository {
	return &mockOptionsRepository{options: make(map[snowflake.ID]domain.GuildOptions)}
}

func (m *mockOptionsRepository) Get(_ context.Context, guildID snowflake.ID) (domain.GuildOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.options[guildID], nil
}

func (m *mockOptionsRepository) Save(_ context.Context, guildID snowflake.ID, options domain.GuildOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.options[guildID] = options
	return nil
}

type mockEventPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockEventPublisher) Publish(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

func eventsOf[T domain.Event](m *mockEventPublisher) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []T
	for _, event := range m.events {
		if e, ok := event.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

// machineFixture is a state machine on a connected voice manager, driven by
// explicit Tick calls.
type machineFixture struct {
	queue     *domain.Queue
	platform  *mockPlatform
	voice     *VoiceConnectionManager
	players   *mockPlayerFactory
	publisher *mockEventPublisher
	machine   *PlaybackStateMachine
}

func newMachineFixture(t *testing.T, connected bool) *machineFixture {
	t.Helper()

	f := &machineFixture{
		queue:     domain.NewQueue(),
		platform:  &mockPlatform{},
		players:   &mockPlayerFactory{},
		publisher: &mockEventPublisher{},
	}
	f.voice = NewVoiceConnectionManager(snowflake.ID(1), f.platform, nil)
	if connected {
		if _, err := f.voice.Join(context.Background(), snowflake.ID(10)); err != nil {
			t.Fatalf("failed to join: %v", err)
		}
	}
	f.machine = NewPlaybackStateMachine(
		snowflake.ID(1),
		f.queue,
		f.voice,
		f.players,
		f.publisher,
		StateMachineConfig{},
	)
	return f
}

// submit enqueues a request and runs one tick to apply it.
func (f *machineFixture) submit(t *testing.T, action domain.Action) Outcome {
	t.Helper()

	req := f.machine.Submit(action)
	f.machine.Tick(context.Background())

	outcome, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("request %s failed: %v", action, err)
	}
	return outcome
}

// serviceFixture is a GuildPlaybackService with a running playback loop.
type serviceFixture struct {
	platform   *mockPlatform
	players    *mockPlayerFactory
	voiceState *mockVoiceStateProvider
	searcher   *mockSearcher
	options    *mockOptionsRepository
	publisher  *mockEventPublisher
	service    *GuildPlaybackService
}

const (
	testGuildID   = snowflake.ID(1)
	testChannelID = snowflake.ID(10)
	testBotID     = snowflake.ID(99)
)

func newServiceFixture(t *testing.T, opts ...func(*GuildServiceDeps)) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		platform:   &mockPlatform{},
		players:    &mockPlayerFactory{},
		voiceState: newMockVoiceStateProvider(),
		searcher:   newMockSearcher(),
		options:    newMockOptionsRepository(),
		publisher:  &mockEventPublisher{},
	}
	deps := f.deps()
	for _, opt := range opts {
		opt(&deps)
	}
	f.service = NewGuildPlaybackService(testGuildID, deps, domain.GuildOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.service.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return f
}

func (f *serviceFixture) deps() GuildServiceDeps {
	return GuildServiceDeps{
		BotID:      testBotID,
		Searcher:   f.searcher,
		Voice:      f.platform,
		Players:    f.players,
		VoiceState: f.voiceState,
		Options:    f.options,
		Publisher:  f.publisher,
		Config: ServiceConfig{
			StateMachine:   StateMachineConfig{TickInterval: time.Millisecond},
			ReconnectGrace: 20 * time.Millisecond,
		},
	}
}

// addSong registers a searchable song of the given length.
func (f *serviceFixture) addSong(query string, duration time.Duration) {
	f.searcher.add(query, &ports.SearchResult{
		Title:      query,
		URI:        "https://youtube.com/watch?v=" + query,
		Duration:   duration,
		SourceName: "youtube",
	})
}

func (f *serviceFixture) queueSong(t *testing.T, userID snowflake.ID, query string) *QueueSongOutput {
	t.Helper()

	f.voiceState.set(userID, testChannelID)
	output, err := f.service.QueueSong(context.Background(), QueueSongInput{
		Requester: domain.Requester{ID: userID, Name: "user"},
		Query:     query,
	})
	if err != nil {
		t.Fatalf("QueueSong(%q) failed: %v", query, err)
	}
	return output
}
