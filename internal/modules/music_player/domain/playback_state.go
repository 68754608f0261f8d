package domain

// PlaybackState is the state of a guild's playback state machine.
type PlaybackState int

const (
	StateIdle      PlaybackState = iota // Nothing playing
	StatePlaying                        // Streaming the front queue item
	StateStreaming                      // Streaming the live fallback target
	StatePaused                         // Stopped by request, front item kept
)

// String returns a human-readable representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// IsActive reports whether a stream player is running in this state.
func (s PlaybackState) IsActive() bool {
	return s == StatePlaying || s == StateStreaming
}
