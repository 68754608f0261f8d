package domain

import "strings"

// TrackSource represents the origin platform of an item.
type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceTwitch     TrackSource = "twitch"
	TrackSourceOther      TrackSource = "other"
)

// ParseTrackSource converts a Lavalink source name or yt-dlp extractor name
// to a TrackSource.
func ParseTrackSource(name string) TrackSource {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "youtube"):
		return TrackSourceYouTube
	case strings.HasPrefix(name, "soundcloud"):
		return TrackSourceSoundCloud
	case strings.HasPrefix(name, "twitch"):
		return TrackSourceTwitch
	default:
		return TrackSourceOther
	}
}

// Color returns the embed accent color for the platform.
func (s TrackSource) Color() int {
	switch s {
	case TrackSourceYouTube:
		return 0xFF0000
	case TrackSourceSoundCloud:
		return 0xFF5500
	case TrackSourceTwitch:
		return 0x9146FF
	default:
		return 0x5865F2
	}
}
