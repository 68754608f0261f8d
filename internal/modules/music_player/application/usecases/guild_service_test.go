package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/ports"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

func TestGuildPlaybackService_QueueSong(t *testing.T) {
	ctx := context.Background()

	t.Run("joins and starts playing", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("first", 3*time.Minute)
		f.addSong("second", 3*time.Minute)

		out := f.queueSong(t, 5, "first")

		if out.Position != 0 || out.JoinedChannelID != testChannelID {
			t.Errorf("unexpected output: %+v", out)
		}
		if f.service.State() != domain.StatePlaying {
			t.Errorf("expected playing, got %s", f.service.State())
		}

		out = f.queueSong(t, 5, "second")
		if out.Position != 1 || out.JoinedChannelID != 0 {
			t.Errorf("unexpected output for second song: %+v", out)
		}
		if f.platform.connectCount() != 1 {
			t.Errorf("expected one voice connect, got %d", f.platform.connectCount())
		}
		if got := eventsOf[domain.TrackEnqueuedEvent](f.publisher); len(got) != 2 {
			t.Errorf("expected two TrackEnqueuedEvents, got %d", len(got))
		}
	})

	tests := []struct {
		name    string
		userID  snowflake.ID
		query   string
		setup   func(*serviceFixture)
		wantErr error
	}{
		{
			name:    "unknown member",
			userID:  0,
			query:   "song",
			wantErr: ErrUnknownMember,
		},
		{
			name:    "empty query",
			userID:  5,
			query:   "   ",
			wantErr: ErrEmptyQuery,
		},
		{
			name:   "requester not in voice",
			userID: 5,
			query:  "song",
			setup: func(f *serviceFixture) {
				f.addSong("song", time.Minute)
			},
			wantErr: ErrUserNotInVoice,
		},
		{
			name:   "search failure",
			userID: 5,
			query:  "missing",
			setup: func(f *serviceFixture) {
				f.voiceState.set(5, testChannelID)
			},
			wantErr: ErrSearchFailed,
		},
		{
			name:   "live stream",
			userID: 5,
			query:  "radio",
			setup: func(f *serviceFixture) {
				f.voiceState.set(5, testChannelID)
				f.searcher.add("radio", &ports.SearchResult{Title: "radio", IsLive: true})
			},
			wantErr: ErrLiveNotQueueable,
		},
		{
			name:   "too long",
			userID: 5,
			query:  "concert",
			setup: func(f *serviceFixture) {
				f.voiceState.set(5, testChannelID)
				f.addSong("concert", 2*time.Hour)
			},
			wantErr: ErrDurationTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.service.QueueSong(ctx, QueueSongInput{
				Requester: domain.Requester{ID: tt.userID},
				Query:     tt.query,
			})

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			snapshot, _ := f.service.GetQueueSnapshot(ctx)
			if len(snapshot) != 0 {
				t.Error("expected nothing to be queued")
			}
		})
	}
}

func TestGuildPlaybackService_SlowMode(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	for _, q := range []string{"a1", "a2", "a3", "b1", "b2"} {
		f.addSong(q, 3*time.Minute)
	}

	f.queueSong(t, 1, "a1")
	f.queueSong(t, 1, "a2")
	f.queueSong(t, 2, "b1")
	f.queueSong(t, 1, "a3")
	f.queueSong(t, 2, "b2")

	out, err := f.service.SetSlowMode(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Removed != 3 {
		t.Errorf("expected 3 songs trimmed, got %d", out.Removed)
	}

	snapshot, _ := f.service.GetQueueSnapshot(ctx)
	if len(snapshot) != 2 || snapshot[0].Title != "a1" || snapshot[1].Title != "b1" {
		t.Errorf("unexpected queue after trim: %+v", snapshot)
	}

	f.voiceState.set(1, testChannelID)
	_, err = f.service.QueueSong(ctx, QueueSongInput{Requester: domain.Requester{ID: 1}, Query: "a2"})
	if !errors.Is(err, ErrSlowModeLimit) {
		t.Errorf("expected ErrSlowModeLimit, got %v", err)
	}

	saved, _ := f.options.Get(ctx, testGuildID)
	if saved.MaxSongsPerPerson != 1 {
		t.Errorf("expected slow mode to be persisted, got %+v", saved)
	}

	if _, err := f.service.SetSlowMode(ctx, 0); err != nil {
		t.Fatalf("unexpected error disabling slow mode: %v", err)
	}
	if _, err := f.service.QueueSong(ctx, QueueSongInput{Requester: domain.Requester{ID: 1}, Query: "a2"}); err != nil {
		t.Errorf("expected queueing to work with slow mode off, got %v", err)
	}
}

func TestGuildPlaybackService_SlowModeSaveFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.options.saveErr = errors.New("disk full")

	if _, err := f.service.SetSlowMode(context.Background(), 2); err == nil {
		t.Fatal("expected save error")
	}
	if f.service.Options().SlowModeEnabled() {
		t.Error("expected options to stay unchanged after a failed save")
	}
}

func TestGuildPlaybackService_PausePlay(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	requester := domain.Requester{ID: 5}

	if _, err := f.service.Pause(ctx); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
	if _, err := f.service.Play(ctx, PlayInput{Requester: requester}); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("expected ErrNothingToPlay, got %v", err)
	}

	f.addSong("song", 3*time.Minute)
	f.queueSong(t, 5, "song")

	out, err := f.service.Pause(ctx)
	if err != nil {
		t.Fatalf("unexpected pause error: %v", err)
	}
	if out.State != domain.StatePaused || out.Item.Title != "song" {
		t.Errorf("unexpected pause output: %+v", out)
	}
	if _, err := f.service.Pause(ctx); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected second pause to fail with ErrNotPlaying, got %v", err)
	}

	out, err = f.service.Play(ctx, PlayInput{Requester: requester})
	if err != nil {
		t.Fatalf("unexpected play error: %v", err)
	}
	if out.State != domain.StatePlaying {
		t.Errorf("expected playing, got %s", out.State)
	}
	if _, err := f.service.Play(ctx, PlayInput{Requester: requester}); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("expected ErrAlreadyPlaying, got %v", err)
	}
}

func TestGuildPlaybackService_Skip(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	if _, err := f.service.Skip(ctx); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}

	f.addSong("a", 3*time.Minute)
	f.addSong("b", 3*time.Minute)
	f.queueSong(t, 5, "a")
	f.queueSong(t, 5, "b")

	out, err := f.service.Skip(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Skipped.Title != "a" || out.Next == nil || out.Next.Title != "b" {
		t.Errorf("unexpected skip output: %+v", out)
	}

	out, err = f.service.Skip(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Next != nil || out.State != domain.StateIdle {
		t.Errorf("expected idle after skipping the last song, got %+v", out)
	}
}

func TestGuildPlaybackService_AutoAdvance(t *testing.T) {
	f := newServiceFixture(t)
	f.addSong("a", 3*time.Minute)
	f.addSong("b", 3*time.Minute)
	f.queueSong(t, 5, "a")
	f.queueSong(t, 5, "b")

	f.players.last().finishStream()

	waitFor(t, "second song to start", func() bool {
		return f.players.count() == 2
	})
	if f.players.last().item.Title() != "b" {
		t.Errorf("expected b to be playing, got %s", f.players.last().item.Title())
	}
}

func TestGuildPlaybackService_RemoveSongAt(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid position", func(t *testing.T) {
		f := newServiceFixture(t)
		for _, index := range []int{-1, 0, 3} {
			if _, err := f.service.RemoveSongAt(ctx, index); !errors.Is(err, ErrInvalidPosition) {
				t.Errorf("index %d: expected ErrInvalidPosition, got %v", index, err)
			}
		}
	})

	t.Run("removes a waiting song once", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.addSong("b", 3*time.Minute)
		f.queueSong(t, 5, "a")
		f.queueSong(t, 5, "b")

		out, err := f.service.RemoveSongAt(ctx, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Removed.Title != "b" || out.Skipped {
			t.Errorf("unexpected output: %+v", out)
		}
		if _, err := f.service.RemoveSongAt(ctx, 1); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("expected removing again to fail, got %v", err)
		}
		if f.service.State() != domain.StatePlaying {
			t.Error("expected playback to be unaffected")
		}
	})

	t.Run("removing the playing song skips it", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.addSong("b", 3*time.Minute)
		f.queueSong(t, 5, "a")
		f.queueSong(t, 5, "b")

		out, err := f.service.RemoveSongAt(ctx, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Removed.Title != "a" || !out.Skipped {
			t.Errorf("unexpected output: %+v", out)
		}
		now, err := f.service.NowPlaying(ctx)
		if err != nil || now.Item.Title != "b" {
			t.Errorf("expected b to be playing, got %+v (%v)", now, err)
		}
	})

	t.Run("removing the paused front song", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")
		_, _ = f.service.Pause(ctx)

		out, err := f.service.RemoveSongAt(ctx, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Skipped {
			t.Error("expected a paused song to be removed without skipping")
		}
		snapshot, _ := f.service.GetQueueSnapshot(ctx)
		if len(snapshot) != 0 {
			t.Errorf("expected empty queue, got %d", len(snapshot))
		}
	})
}

func TestGuildPlaybackService_ClearQueue(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	if _, err := f.service.ClearQueue(ctx); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}

	f.searcher.add("radio", &ports.SearchResult{Title: "radio", IsLive: true})
	f.addSong("a", 3*time.Minute)
	f.addSong("b", 3*time.Minute)
	f.queueSong(t, 5, "a")
	f.queueSong(t, 5, "b")
	if _, err := f.service.SetLive(ctx, SetLiveInput{Requester: domain.Requester{ID: 5}, URI: "radio"}); err != nil {
		t.Fatalf("unexpected SetLive error: %v", err)
	}

	removed, err := f.service.ClearQueue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if f.service.State() != domain.StateStreaming {
		t.Errorf("expected the live stream to take over, got %s", f.service.State())
	}
	if got := eventsOf[domain.QueueClearedEvent](f.publisher); len(got) != 1 || got[0].Removed != 2 {
		t.Errorf("unexpected QueueClearedEvents: %+v", got)
	}
}

func TestGuildPlaybackService_SetLive(t *testing.T) {
	ctx := context.Background()
	requester := domain.Requester{ID: 5}

	t.Run("rejects short videos", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("clip", 3*time.Minute)

		_, err := f.service.SetLive(ctx, SetLiveInput{Requester: requester, URI: "clip"})
		if !errors.Is(err, ErrInvalidLiveStream) {
			t.Errorf("expected ErrInvalidLiveStream, got %v", err)
		}
	})

	t.Run("rejects unresolvable links", func(t *testing.T) {
		f := newServiceFixture(t)

		_, err := f.service.SetLive(ctx, SetLiveInput{Requester: requester, URI: "nothing"})
		if !errors.Is(err, ErrInvalidLiveStream) {
			t.Errorf("expected ErrInvalidLiveStream, got %v", err)
		}
	})

	t.Run("streams when idle and replaces the previous target", func(t *testing.T) {
		f := newServiceFixture(t)
		f.voiceState.set(5, testChannelID)
		f.searcher.add("radio", &ports.SearchResult{Title: "radio", IsLive: true})
		f.addSong("long-mix", 2*time.Hour)

		out, err := f.service.SetLive(ctx, SetLiveInput{Requester: requester, URI: "radio"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Replaced || f.service.State() != domain.StateStreaming {
			t.Errorf("unexpected first SetLive result: %+v, state %s", out, f.service.State())
		}
		first := f.players.last()

		out, err = f.service.SetLive(ctx, SetLiveInput{Requester: requester, URI: "long-mix"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.Replaced {
			t.Error("expected previous target to be replaced")
		}
		if !first.item.Disposed() {
			t.Error("expected previous live target to be disposed")
		}
		waitFor(t, "replacement stream", func() bool {
			return f.players.last().item.Title() == "long-mix"
		})
	})
}

func TestGuildPlaybackService_Queries(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	if _, err := f.service.NowPlaying(ctx); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
	if _, err := f.service.NextUp(ctx); !errors.Is(err, ErrNoNextSong) {
		t.Errorf("expected ErrNoNextSong, got %v", err)
	}

	f.addSong("a", 3*time.Minute)
	f.addSong("b", 4*time.Minute)
	f.queueSong(t, 5, "a")

	if _, err := f.service.NextUp(ctx); !errors.Is(err, ErrNoNextSong) {
		t.Errorf("expected ErrNoNextSong with one song playing, got %v", err)
	}

	f.queueSong(t, 5, "b")

	now, err := f.service.NowPlaying(ctx)
	if err != nil || now.Item.Title != "a" {
		t.Errorf("unexpected now playing: %+v (%v)", now, err)
	}
	next, err := f.service.NextUp(ctx)
	if err != nil || next.Title != "b" {
		t.Errorf("unexpected next up: %+v (%v)", next, err)
	}
	if next.FormattedDuration() != "04:00" {
		t.Errorf("expected 04:00, got %s", next.FormattedDuration())
	}
}

func TestGuildPlaybackService_JoinLeave(t *testing.T) {
	ctx := context.Background()
	requester := domain.Requester{ID: 5}

	t.Run("requester not in voice", func(t *testing.T) {
		f := newServiceFixture(t)
		if _, err := f.service.JoinVoice(ctx, JoinInput{Requester: requester}); !errors.Is(err, ErrUserNotInVoice) {
			t.Errorf("expected ErrUserNotInVoice, got %v", err)
		}
	})

	t.Run("leave when not connected", func(t *testing.T) {
		f := newServiceFixture(t)
		if err := f.service.LeaveVoice(ctx); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("moving resumes playback", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")

		out, err := f.service.JoinVoice(ctx, JoinInput{Requester: requester})
		if err != nil || !out.AlreadyConnected {
			t.Errorf("expected already connected, got %+v (%v)", out, err)
		}

		out, err = f.service.JoinVoice(ctx, JoinInput{Requester: requester, ChannelID: 20})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.ChannelID != 20 || out.AlreadyConnected {
			t.Errorf("unexpected output: %+v", out)
		}
		if f.service.State() != domain.StatePlaying {
			t.Errorf("expected playback to resume, got %s", f.service.State())
		}
		if f.players.count() != 2 {
			t.Errorf("expected a new player after moving, got %d", f.players.count())
		}
	})

	t.Run("leave pauses playback", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")

		if err := f.service.LeaveVoice(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.service.State() != domain.StatePaused {
			t.Errorf("expected paused, got %s", f.service.State())
		}
		if !f.platform.lastConnection().disconnected.Load() {
			t.Error("expected voice connection to be closed")
		}
	})
}

func TestGuildPlaybackService_VoiceLoss(t *testing.T) {
	t.Run("pauses after the grace period", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")

		f.service.HandleVoiceStateChange(0)

		waitFor(t, "playback to pause", func() bool {
			return f.service.State() == domain.StatePaused
		})
		if f.service.voice.IsConnected() {
			t.Error("expected lost connection to be released")
		}
	})

	t.Run("reconnect within grace keeps playing", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")

		f.service.HandleVoiceStateChange(0)
		f.service.HandleVoiceStateChange(testChannelID)
		time.Sleep(50 * time.Millisecond)

		if f.service.State() != domain.StatePlaying {
			t.Errorf("expected playback to continue, got %s", f.service.State())
		}
	})

	t.Run("bot still in voice keeps playing", func(t *testing.T) {
		f := newServiceFixture(t)
		f.addSong("a", 3*time.Minute)
		f.queueSong(t, 5, "a")
		f.voiceState.set(testBotID, testChannelID)

		f.service.HandleVoiceStateChange(0)
		time.Sleep(50 * time.Millisecond)

		if f.service.State() != domain.StatePlaying {
			t.Errorf("expected playback to continue, got %s", f.service.State())
		}
	})
}

func TestGuildPlaybackService_IdleLeave(t *testing.T) {
	f := newServiceFixture(t, func(d *GuildServiceDeps) {
		d.Config.StateMachine.IdleTimeout = 20 * time.Millisecond
	})
	f.voiceState.set(5, testChannelID)

	if _, err := f.service.JoinVoice(context.Background(), JoinInput{Requester: domain.Requester{ID: 5}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, "idle disconnect", func() bool {
		return len(eventsOf[domain.IdleDisconnectedEvent](f.publisher)) == 1
	})
	if f.service.voice.IsConnected() {
		t.Error("expected the bot to leave voice")
	}
}

func TestGuildPlaybackService_NotificationChannel(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.addSong("a", 3*time.Minute)
	f.voiceState.set(5, testChannelID)

	_, err := f.service.QueueSong(ctx, QueueSongInput{
		Requester:     domain.Requester{ID: 5},
		Query:         "a",
		TextChannelID: 300,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.service.NotificationChannel(); got != 300 {
		t.Errorf("expected last command channel 300, got %d", got)
	}

	if err := f.service.SetDesignatedChannel(ctx, 400); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.service.NotificationChannel(); got != 400 {
		t.Errorf("expected designated channel 400, got %d", got)
	}
}
