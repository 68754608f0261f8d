package infrastructure

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"layeh.com/gopus"
)

// PCM layout produced by ffmpeg and consumed by the Opus encoder.
const (
	channels      = 2
	sampleRate    = 48000
	frameSize     = 960 // 20ms at 48kHz
	maxOpusBytes  = frameSize * channels * 2
	defaultFFmpeg = "ffmpeg"
)

// StreamURLResolver turns an item into a URL ffmpeg can read.
type StreamURLResolver interface {
	StreamURL(ctx context.Context, item *domain.PlayableItem) (string, error)
}

// FFmpegPlayerFactory creates stream players that transcode with ffmpeg and
// encode with libopus.
type FFmpegPlayerFactory struct {
	ffmpegPath string
	resolver   StreamURLResolver
}

// NewFFmpegPlayerFactory creates a new FFmpegPlayerFactory. An empty path uses
// ffmpeg from PATH.
func NewFFmpegPlayerFactory(ffmpegPath string, resolver StreamURLResolver) *FFmpegPlayerFactory {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpeg
	}
	return &FFmpegPlayerFactory{ffmpegPath: ffmpegPath, resolver: resolver}
}

// Create returns a player bound to item, starting at opts.Offset.
func (f *FFmpegPlayerFactory) Create(item *domain.PlayableItem, opts ports.PlayOptions) ports.StreamPlayer {
	return &ffmpegStreamPlayer{
		ffmpegPath: f.ffmpegPath,
		resolver:   f.resolver,
		item:       item,
		opts:       opts,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// frameEncoder is the part of *gopus.Encoder used by the stream loop.
type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

type ffmpegStreamPlayer struct {
	ffmpegPath string
	resolver   StreamURLResolver
	item       *domain.PlayableItem
	opts       ports.PlayOptions

	eos      atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

func (p *ffmpegStreamPlayer) Play(ctx context.Context, conn ports.VoiceConnection) error {
	p.started.Store(true)
	defer close(p.done)

	select {
	case <-p.stop:
		return nil
	default:
	}

	sink, ok := conn.(ports.OpusSink)
	if !ok {
		return errors.New("voice connection does not accept Opus audio")
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-playCtx.Done():
		}
	}()

	url, err := p.resolver.StreamURL(playCtx, p.item)
	if err != nil {
		return p.result(ctx, fmt.Errorf("failed to resolve stream: %w", err))
	}

	cmd := exec.CommandContext(playCtx, p.ffmpegPath, ffmpegArgs(url, p.opts.Offset.Seconds())...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("encoder error: %w", err)
	}

	if err := sink.Speaking(true); err != nil {
		slog.Warn("failed to set speaking", "guild", conn.GuildID(), "error", err)
	}
	defer func() { _ = sink.Speaking(false) }()

	streamErr := streamOpus(playCtx, stdout, encoder, sink.OpusFrames(), p.opts.OnAudioStart)
	waitErr := cmd.Wait()

	if playCtx.Err() != nil {
		return p.result(ctx, nil)
	}
	if streamErr != nil {
		return streamErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", waitErr, bytes.TrimSpace(stderr.Bytes()))
	}

	p.eos.Store(true)
	return nil
}

// result maps an interrupted run to nil when Stop caused it.
func (p *ffmpegStreamPlayer) result(ctx context.Context, err error) error {
	select {
	case <-p.stop:
		return nil
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *ffmpegStreamPlayer) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })

	if !p.started.Load() {
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ffmpegStreamPlayer) EndOfStream() bool {
	return p.eos.Load()
}

// ffmpegArgs builds the command line decoding url to s16le PCM on stdout.
func ffmpegArgs(url string, offsetSeconds float64) []string {
	args := make([]string, 0, 24)
	if offsetSeconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offsetSeconds, 'f', 3, 64))
	}
	return append(args,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
		"-vn",
		"-af", "loudnorm=I=-14:LRA=11:TP=-1,volume=0.35",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)
}

// streamOpus reads 20ms PCM frames from r, encodes them and sends them to
// frames until r is exhausted or ctx is done. A trailing partial frame is
// padded with silence. onFirstFrame, if set, runs once the first frame is sent.
func streamOpus(
	ctx context.Context,
	r io.Reader,
	enc frameEncoder,
	frames chan<- []byte,
	onFirstFrame func(),
) error {
	sent := false
	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		n, err := io.ReadFull(r, pcmBuf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		clear(pcmBuf[n:])

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, encErr := enc.Encode(intBuf, frameSize, maxOpusBytes)
		if encErr != nil {
			return fmt.Errorf("encode error: %w", encErr)
		}

		if ctx.Err() != nil {
			return nil
		}
		select {
		case frames <- opus:
		case <-ctx.Done():
			return nil
		}
		if !sent {
			sent = true
			if onFirstFrame != nil {
				onFirstFrame()
			}
		}

		if err != nil {
			return nil
		}
	}
}

var _ ports.StreamPlayerFactory = (*FFmpegPlayerFactory)(nil)
