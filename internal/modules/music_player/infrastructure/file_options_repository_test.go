package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

func TestFileOptionsRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "guilds.yaml")

	repo, err := NewFileOptionsRepository(path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.Count() != 0 {
		t.Errorf("expected a missing file to load as empty, got %d", repo.Count())
	}

	want := domain.GuildOptions{DesignatedTextChannelID: 987654321012345678, MaxSongsPerPerson: 2}
	if err := repo.Save(ctx, 1234, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	if !strings.Contains(string(data), "1234") {
		t.Errorf("expected guild id in file, got:\n%s", data)
	}

	reloaded, err := NewFileOptionsRepository(path, 0)
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	got, _ := reloaded.Get(ctx, 1234)
	if got != want {
		t.Errorf("expected %+v after reload, got %+v", want, got)
	}
}

func TestFileOptionsRepository_Autosave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "guilds.yaml")

	repo, err := NewFileOptionsRepository(path, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = repo.Close() }()

	_ = repo.Save(ctx, 7, domain.GuildOptions{MaxSongsPerPerson: 1})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected autosave to write the file")
}

func TestFileOptionsRepository_InvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "guilds: [unterminated"},
		{name: "bad guild id", content: "guilds:\n  not-a-number:\n    max_songs_per_person: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "guilds.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			if _, err := NewFileOptionsRepository(path, 0); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestFileOptionsRepository_CloseWithoutChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")

	repo, err := NewFileOptionsRepository(path, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be written without changes")
	}
}
