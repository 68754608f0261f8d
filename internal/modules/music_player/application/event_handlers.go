package application

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// NotificationEventHandler posts playback notices to each guild's
// notification channel.
type NotificationEventHandler struct {
	subscriber       ports.EventSubscriber
	notifier         ports.NotificationSender
	channels         ports.NotificationChannelResolver
	userInfoProvider ports.UserInfoProvider
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	subscriber ports.EventSubscriber,
	notifier ports.NotificationSender,
	channels ports.NotificationChannelResolver,
	userInfoProvider ports.UserInfoProvider,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		subscriber:       subscriber,
		notifier:         notifier,
		channels:         channels,
		userInfoProvider: userInfoProvider,
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() error {
	err := h.subscriber.Subscribe(
		reflect.TypeFor[domain.PlaybackStartedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handlePlaybackStarted(ctx, e.(domain.PlaybackStartedEvent))
		},
	)
	if err != nil {
		return err
	}

	err = h.subscriber.Subscribe(
		reflect.TypeFor[domain.PlaybackEndedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handlePlaybackEnded(ctx, e.(domain.PlaybackEndedEvent))
		},
	)
	if err != nil {
		return err
	}

	err = h.subscriber.Subscribe(
		reflect.TypeFor[domain.IdleDisconnectedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handleIdleDisconnected(ctx, e.(domain.IdleDisconnectedEvent))
		},
	)
	if err != nil {
		return err
	}

	slog.Debug("notification event handlers properly registered")

	return nil
}

func (h *NotificationEventHandler) handlePlaybackStarted(
	_ context.Context,
	event domain.PlaybackStartedEvent,
) {
	channelID := h.channels.NotificationChannel(event.GuildID)
	if channelID == 0 {
		slog.Debug("no notification channel, skipping now playing", "guild", event.GuildID)
		return
	}

	info := &ports.NowPlayingInfo{
		Item:      event.Item,
		Streaming: event.State == domain.StateStreaming,
	}
	if h.userInfoProvider != nil {
		userInfo, err := h.userInfoProvider.GetUserInfo(event.GuildID, event.Item.Requester.ID)
		if err != nil {
			slog.Warn("failed to fetch requester info for now playing",
				"guild", event.GuildID,
				"requester", event.Item.Requester.ID,
				"error", err,
			)
		} else {
			info.RequesterAvatarURL = userInfo.AvatarURL
			if info.Item.Requester.Name == "" {
				info.Item.Requester.Name = userInfo.DisplayName
			}
		}
	}

	if err := h.notifier.SendNowPlaying(channelID, info); err != nil {
		slog.Error("failed to send now playing notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handlePlaybackEnded(
	_ context.Context,
	event domain.PlaybackEndedEvent,
) {
	if event.Reason != domain.TrackEndFailed {
		return
	}

	channelID := h.channels.NotificationChannel(event.GuildID)
	if channelID == 0 {
		return
	}

	message := fmt.Sprintf("Playback of **%s** failed, moving on.", event.Item.Title)
	if err := h.notifier.SendError(channelID, message); err != nil {
		slog.Warn("failed to send playback failure notice",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handleIdleDisconnected(
	_ context.Context,
	event domain.IdleDisconnectedEvent,
) {
	channelID := h.channels.NotificationChannel(event.GuildID)
	if channelID == 0 {
		return
	}

	message := fmt.Sprintf(
		"Left the voice channel after %s of inactivity.",
		event.IdleFor.Truncate(time.Minute),
	)
	if err := h.notifier.SendInfo(channelID, message); err != nil {
		slog.Warn("failed to send idle notice",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

// MetricsEventHandler records playback events as metrics.
type MetricsEventHandler struct {
	subscriber ports.EventSubscriber
	metrics    ports.PlaybackMetrics
}

// NewMetricsEventHandler creates a new MetricsEventHandler.
func NewMetricsEventHandler(
	subscriber ports.EventSubscriber,
	metrics ports.PlaybackMetrics,
) *MetricsEventHandler {
	return &MetricsEventHandler{
		subscriber: subscriber,
		metrics:    metrics,
	}
}

// Start registers event handlers with the subscriber.
func (h *MetricsEventHandler) Start() error {
	handlers := map[reflect.Type]func(context.Context, domain.Event){
		reflect.TypeFor[domain.RequestProcessedEvent](): func(ctx context.Context, e domain.Event) {
			event := e.(domain.RequestProcessedEvent)
			h.metrics.RequestProcessed(ctx, event.Action, event.Applied, event.Waited)
		},
		reflect.TypeFor[domain.PlaybackStartedEvent](): func(ctx context.Context, e domain.Event) {
			event := e.(domain.PlaybackStartedEvent)
			h.metrics.TrackStarted(ctx, event.State, event.Item.SourceName)
		},
		reflect.TypeFor[domain.PlaybackEndedEvent](): func(ctx context.Context, e domain.Event) {
			h.metrics.TrackEnded(ctx, e.(domain.PlaybackEndedEvent).Reason)
		},
		reflect.TypeFor[domain.IdleDisconnectedEvent](): func(ctx context.Context, _ domain.Event) {
			h.metrics.IdleDisconnected(ctx)
		},
		reflect.TypeFor[domain.GuildActivatedEvent](): func(ctx context.Context, _ domain.Event) {
			h.metrics.GuildActivated(ctx)
		},
	}

	for eventType, handler := range handlers {
		if err := h.subscriber.Subscribe(eventType, handler); err != nil {
			return err
		}
	}

	slog.Debug("metrics event handlers properly registered")

	return nil
}
