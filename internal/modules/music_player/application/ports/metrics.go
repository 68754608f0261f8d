package ports

import (
	"context"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// PlaybackMetrics records playback activity.
type PlaybackMetrics interface {
	RequestProcessed(ctx context.Context, action domain.Action, applied bool, waited time.Duration)
	TrackStarted(ctx context.Context, state domain.PlaybackState, source string)
	TrackEnded(ctx context.Context, reason domain.TrackEndReason)
	IdleDisconnected(ctx context.Context)
	GuildActivated(ctx context.Context)
}
