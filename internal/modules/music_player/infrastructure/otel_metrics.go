package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"github.com/sglre6355/deejay/internal/observe"
)

// OTelPlaybackMetrics records playback activity on the OpenTelemetry instruments.
type OTelPlaybackMetrics struct {
	metrics *observe.Metrics
}

// NewOTelPlaybackMetrics creates a new OTelPlaybackMetrics.
func NewOTelPlaybackMetrics(metrics *observe.Metrics) *OTelPlaybackMetrics {
	return &OTelPlaybackMetrics{metrics: metrics}
}

func (m *OTelPlaybackMetrics) RequestProcessed(
	ctx context.Context,
	action domain.Action,
	applied bool,
	waited time.Duration,
) {
	m.metrics.RecordRequest(ctx, strings.ToLower(action.String()), applied, waited)
}

func (m *OTelPlaybackMetrics) TrackStarted(
	ctx context.Context,
	state domain.PlaybackState,
	source string,
) {
	m.metrics.RecordTrackStarted(
		ctx,
		strings.ToLower(state.String()),
		string(domain.ParseTrackSource(source)),
	)
}

func (m *OTelPlaybackMetrics) TrackEnded(ctx context.Context, reason domain.TrackEndReason) {
	m.metrics.RecordTrackEnded(ctx, string(reason))
}

func (m *OTelPlaybackMetrics) IdleDisconnected(ctx context.Context) {
	m.metrics.RecordIdleDisconnect(ctx)
}

func (m *OTelPlaybackMetrics) GuildActivated(ctx context.Context) {
	m.metrics.AddActiveGuilds(ctx, 1)
}

var _ ports.PlaybackMetrics = (*OTelPlaybackMetrics)(nil)
