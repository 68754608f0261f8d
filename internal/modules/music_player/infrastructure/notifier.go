package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorRed  = 0xE74C3C
	colorGrey = 0x95A5A6
)

// MessageSender is the part of a Discord session the Notifier needs.
type MessageSender interface {
	ChannelMessageSendEmbed(
		channelID string,
		embed *discordgo.MessageEmbed,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Notifier sends notifications to Discord channels.
type Notifier struct {
	sender     MessageSender
	httpClient *http.Client
}

// NewNotifier creates a new Notifier.
func NewNotifier(sender MessageSender) *Notifier {
	return &Notifier{
		sender: sender,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendNowPlaying sends a "Now Playing" embed to the channel.
func (n *Notifier) SendNowPlaying(channelID snowflake.ID, info *ports.NowPlayingInfo) error {
	embed := NowPlayingEmbed(info.Item, info.Streaming)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text:    fmt.Sprintf("Requested by %s", requesterName(info.Item.Requester)),
		IconURL: info.RequesterAvatarURL,
	}

	source := domain.ParseTrackSource(info.Item.SourceName)
	if thumbnailURL := n.getBestThumbnail(source, info.Item.URI); thumbnailURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{
			URL: thumbnailURL,
		}
	}

	_, err := n.sender.ChannelMessageSendEmbed(channelID.String(), embed)
	return err
}

// SendInfo sends a plain informational embed to the channel.
func (n *Notifier) SendInfo(channelID snowflake.ID, message string) error {
	embed := &discordgo.MessageEmbed{
		Description: message,
		Color:       colorGrey,
	}

	_, err := n.sender.ChannelMessageSendEmbed(channelID.String(), embed)
	return err
}

// SendError sends an error message embed to the channel.
func (n *Notifier) SendError(channelID snowflake.ID, message string) error {
	embed := &discordgo.MessageEmbed{
		Title:       "Error",
		Description: message,
		Color:       colorRed,
	}

	_, err := n.sender.ChannelMessageSendEmbed(channelID.String(), embed)
	return err
}

// NowPlayingEmbed renders an item as a "Now Playing" embed. It is shared with
// the show command.
func NowPlayingEmbed(item domain.ItemSnapshot, streaming bool) *discordgo.MessageEmbed {
	source := domain.ParseTrackSource(item.SourceName)

	author := "Now Playing"
	if streaming {
		author = "Now Streaming"
	}

	progress := item.FormattedDuration()
	if !item.Live {
		progress = domain.FormatDuration(item.Elapsed) + " / " + progress
	}

	return &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name: author,
		},
		Title:     item.Title,
		URL:       item.URI,
		Color:     source.Color(),
		Timestamp: item.EnqueuedAt.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Duration",
				Value:  progress,
				Inline: true,
			},
			{
				Name:   "Requested by",
				Value:  requesterName(item.Requester),
				Inline: true,
			},
		},
	}
}

func requesterName(r domain.Requester) string {
	if r.Name != "" {
		return r.Name
	}
	return "Unknown"
}

// getBestThumbnail attempts to find the best quality thumbnail for the item.
// Only YouTube exposes predictable thumbnail URLs.
func (n *Notifier) getBestThumbnail(source domain.TrackSource, uri string) string {
	if source != domain.TrackSourceYouTube {
		return ""
	}
	videoID := youTubeVideoID(uri)
	if videoID == "" {
		return ""
	}
	return n.getYouTubeThumbnail(videoID)
}

// getYouTubeThumbnail tries to find the highest quality YouTube thumbnail available.
func (n *Notifier) getYouTubeThumbnail(videoID string) string {
	qualities := []string{"maxresdefault", "sddefault", "hqdefault", "mqdefault"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, quality := range qualities {
		thumbnailURL := fmt.Sprintf("https://img.youtube.com/vi/%s/%s.jpg", videoID, quality)
		if n.urlExists(ctx, thumbnailURL) {
			return thumbnailURL
		}
	}

	return ""
}

// youTubeVideoID extracts the video id from watch and short links.
func youTubeVideoID(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return id
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return rest
		}
	}
	return ""
}

// urlExists checks if a URL returns a successful response using a HEAD request.
func (n *Notifier) urlExists(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Ensure Notifier implements ports.NotificationSender.
var _ ports.NotificationSender = (*Notifier)(nil)
