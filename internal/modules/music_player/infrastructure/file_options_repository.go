package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"gopkg.in/yaml.v3"
)

// optionsFile is the on-disk layout, keyed by guild id.
type optionsFile struct {
	Guilds map[string]domain.GuildOptions `yaml:"guilds"`
}

// FileOptionsRepository keeps options in memory and writes them to a YAML
// file periodically and on Close.
type FileOptionsRepository struct {
	*MemoryOptionsRepository

	path  string
	dirty atomic.Bool

	writeMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewFileOptionsRepository loads path if it exists and starts autosaving
// every interval. An interval of zero disables autosave.
func NewFileOptionsRepository(path string, interval time.Duration) (*FileOptionsRepository, error) {
	r := &FileOptionsRepository{
		MemoryOptionsRepository: NewMemoryOptionsRepository(),
		path:                    path,
		stop:                    make(chan struct{}),
		done:                    make(chan struct{}),
	}

	if err := r.Load(); err != nil {
		return nil, err
	}

	if interval > 0 {
		go r.autosave(interval)
	} else {
		close(r.done)
	}

	return r, nil
}

// Load replaces the in-memory options with the file contents. A missing file
// is treated as empty.
func (r *FileOptionsRepository) Load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read guild options: %w", err)
	}

	var file optionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse guild options %s: %w", r.path, err)
	}

	options := make(map[snowflake.ID]domain.GuildOptions, len(file.Guilds))
	for key, value := range file.Guilds {
		guildID, err := snowflake.Parse(key)
		if err != nil {
			return fmt.Errorf("invalid guild id %q in %s: %w", key, r.path, err)
		}
		options[guildID] = value
	}
	r.replace(options)

	slog.Info("loaded guild options", "path", r.path, "guilds", len(options))

	return nil
}

// Save stores the options and marks the file for the next write.
func (r *FileOptionsRepository) Save(
	ctx context.Context,
	guildID snowflake.ID,
	options domain.GuildOptions,
) error {
	if err := r.MemoryOptionsRepository.Save(ctx, guildID, options); err != nil {
		return err
	}
	r.dirty.Store(true)
	return nil
}

// SaveAll writes every guild's options to the file atomically.
func (r *FileOptionsRepository) SaveAll() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.dirty.Store(false)

	snapshot := r.snapshot()
	file := optionsFile{Guilds: make(map[string]domain.GuildOptions, len(snapshot))}
	for guildID, options := range snapshot {
		file.Guilds[strconv.FormatUint(uint64(guildID), 10)] = options
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		r.dirty.Store(true)
		return fmt.Errorf("failed to encode guild options: %w", err)
	}

	if err := writeFileAtomic(r.path, data); err != nil {
		r.dirty.Store(true)
		return fmt.Errorf("failed to write guild options: %w", err)
	}

	slog.Debug("saved guild options", "path", r.path, "guilds", len(snapshot))

	return nil
}

func (r *FileOptionsRepository) autosave(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if !r.dirty.Load() {
				continue
			}
			if err := r.SaveAll(); err != nil {
				slog.Error("failed to autosave guild options", "error", err)
			}
		}
	}
}

// Close stops autosaving and writes pending changes.
func (r *FileOptionsRepository) Close() error {
	r.once.Do(func() { close(r.stop) })
	<-r.done

	if !r.dirty.Load() {
		return nil
	}
	return r.SaveAll()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Ensure FileOptionsRepository implements GuildOptionsRepository.
var _ domain.GuildOptionsRepository = (*FileOptionsRepository)(nil)
