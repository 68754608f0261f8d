package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"golang.org/x/sync/errgroup"
)

// GuildRegistry lazily creates one GuildPlaybackService per guild and runs
// its playback loop until shutdown.
type GuildRegistry struct {
	deps GuildServiceDeps

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	mu       sync.Mutex
	services map[snowflake.ID]*GuildPlaybackService
	closed   bool
}

// NewGuildRegistry creates an empty registry.
func NewGuildRegistry(deps GuildServiceDeps) *GuildRegistry {
	ctx, cancel := context.WithCancel(context.Background())

	return &GuildRegistry{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		services: make(map[snowflake.ID]*GuildPlaybackService),
	}
}

// Get returns the guild's service, creating it and starting its loop on first use.
func (r *GuildRegistry) Get(ctx context.Context, guildID snowflake.ID) (*GuildPlaybackService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if service, ok := r.services[guildID]; ok {
		return service, nil
	}

	var options domain.GuildOptions
	if r.deps.Options != nil {
		loaded, err := r.deps.Options.Get(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("failed to load guild options: %w", err)
		}
		options = loaded
	}

	service := NewGuildPlaybackService(guildID, r.deps, options)
	r.services[guildID] = service

	r.loops.Add(1)
	go func() {
		defer r.loops.Done()
		service.Run(r.ctx)
	}()

	slog.Info("created guild player", "guild", guildID)

	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.Publish(domain.GuildActivatedEvent{GuildID: guildID}); err != nil {
			slog.Debug("failed to publish guild activation", "guild", guildID, "error", err)
		}
	}

	return service, nil
}

// Lookup returns the guild's service without creating it.
func (r *GuildRegistry) Lookup(guildID snowflake.ID) (*GuildPlaybackService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	service, ok := r.services[guildID]
	return service, ok
}

// NotificationChannel implements ports.NotificationChannelResolver.
func (r *GuildRegistry) NotificationChannel(guildID snowflake.ID) snowflake.ID {
	service, ok := r.Lookup(guildID)
	if !ok {
		return 0
	}
	return service.NotificationChannel()
}

// Len returns the number of guilds with a player.
func (r *GuildRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.services)
}

// Shutdown leaves every voice channel, then stops all playback loops.
func (r *GuildRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	services := make([]*GuildPlaybackService, 0, len(r.services))
	for _, service := range r.services {
		services = append(services, service)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range services {
		g.Go(func() error {
			if err := service.Close(gctx); err != nil {
				return fmt.Errorf("guild %s: %w", service.GuildID(), err)
			}
			return nil
		})
	}
	closeErr := g.Wait()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("stopped guild players", "count", len(services))

	return closeErr
}
