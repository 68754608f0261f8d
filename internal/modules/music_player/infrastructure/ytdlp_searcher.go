package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// ytdlpPrintTemplate selects the metadata printed per entry, tab separated.
const ytdlpPrintTemplate = "%(title)s\t%(webpage_url)s\t%(duration)s\t%(is_live)s\t%(extractor_key)s"

// YtdlpSearcher resolves queries and stream URLs with yt-dlp.
type YtdlpSearcher struct{}

// NewYtdlpSearcher creates a new YtdlpSearcher.
func NewYtdlpSearcher() *YtdlpSearcher {
	return &YtdlpSearcher{}
}

// Search resolves a free-text query (first YouTube match) or a URL.
func (s *YtdlpSearcher) Search(ctx context.Context, query string) (*ports.SearchResult, error) {
	q := domain.NewSearchQuery(query)
	if !q.IsValid() {
		return nil, errors.New("empty query")
	}

	res, err := ytdlp.New().
		Print(ytdlpPrintTemplate).
		NoPlaylist().
		PlaylistItems("1").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", q.YtdlpTarget())
	if err != nil {
		return nil, ytdlpError(res, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		return parseYtdlpLine(line)
	}
	return nil, errors.New("no matches found")
}

// StreamURL returns a direct media URL for the item's best audio format.
func (s *YtdlpSearcher) StreamURL(ctx context.Context, item *domain.PlayableItem) (string, error) {
	res, err := ytdlp.New().
		Format("bestaudio/best").
		Print("%(url)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", item.Source.URI)
	if err != nil {
		return "", ytdlpError(res, err)
	}

	url := strings.TrimSpace(res.Stdout)
	if i := strings.IndexByte(url, '\n'); i >= 0 {
		url = url[:i]
	}
	if url == "" {
		return "", errors.New("empty URL returned from yt-dlp")
	}
	return url, nil
}

// ytdlpError keeps the last stderr line, which is what yt-dlp reports the
// failure on.
func ytdlpError(res *ytdlp.Result, err error) error {
	if res == nil {
		return err
	}
	stderr := strings.TrimSpace(res.Stderr)
	if stderr == "" {
		return err
	}
	lines := strings.Split(stderr, "\n")
	msg := strings.TrimPrefix(strings.TrimSpace(lines[len(lines)-1]), "ERROR: ")
	return errors.New(msg)
}

// parseYtdlpLine parses one line printed with ytdlpPrintTemplate.
func parseYtdlpLine(line string) (*ports.SearchResult, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 5 {
		return nil, fmt.Errorf("unexpected yt-dlp output %q", line)
	}

	// Titles may contain tabs; the trailing fields never do.
	n := len(parts)
	result := &ports.SearchResult{
		Title:      strings.Join(parts[:n-4], "\t"),
		URI:        parts[n-4],
		IsLive:     parts[n-2] == "True",
		SourceName: strings.ToLower(parts[n-1]),
	}

	if seconds, err := strconv.ParseFloat(parts[n-3], 64); err == nil && !result.IsLive {
		result.Duration = time.Duration(seconds * float64(time.Second))
	}

	return result, nil
}

var (
	_ ports.Searcher    = (*YtdlpSearcher)(nil)
	_ StreamURLResolver = (*YtdlpSearcher)(nil)
)
