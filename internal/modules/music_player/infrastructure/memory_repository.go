package infrastructure

import (
	"context"
	"maps"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
)

// MemoryOptionsRepository is an in-memory implementation of GuildOptionsRepository.
// Guilds that were never saved get the zero options.
type MemoryOptionsRepository struct {
	mu      sync.RWMutex
	options map[snowflake.ID]domain.GuildOptions
}

// NewMemoryOptionsRepository creates a new MemoryOptionsRepository.
func NewMemoryOptionsRepository() *MemoryOptionsRepository {
	return &MemoryOptionsRepository{
		options: make(map[snowflake.ID]domain.GuildOptions),
	}
}

// Get returns the options for the given guild.
func (r *MemoryOptionsRepository) Get(
	_ context.Context,
	guildID snowflake.ID,
) (domain.GuildOptions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.options[guildID], nil
}

// Save stores the options for the given guild.
func (r *MemoryOptionsRepository) Save(
	_ context.Context,
	guildID snowflake.ID,
	options domain.GuildOptions,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if options == (domain.GuildOptions{}) {
		delete(r.options, guildID)
		return nil
	}
	r.options[guildID] = options
	return nil
}

// Count returns the number of guilds with non-default options.
func (r *MemoryOptionsRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.options)
}

// snapshot returns a copy of every stored entry.
func (r *MemoryOptionsRepository) snapshot() map[snowflake.ID]domain.GuildOptions {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.options)
}

// replace swaps the stored entries for loaded ones.
func (r *MemoryOptionsRepository) replace(options map[snowflake.ID]domain.GuildOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.options = options
}

// Ensure MemoryOptionsRepository implements GuildOptionsRepository.
var _ domain.GuildOptionsRepository = (*MemoryOptionsRepository)(nil)
