package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Event is implemented by everything published on the playback event bus.
type Event interface {
	Guild() snowflake.ID
}

// TrackEndReason represents why a stream player stopped.
type TrackEndReason string

const (
	// TrackEndFinished means the source was exhausted.
	TrackEndFinished TrackEndReason = "finished"
	// TrackEndFailed means the player ended early or errored.
	TrackEndFailed TrackEndReason = "failed"
	// TrackEndSkipped means a skip request removed the item.
	TrackEndSkipped TrackEndReason = "skipped"
	// TrackEndStopped means playback was paused or superseded.
	TrackEndStopped TrackEndReason = "stopped"
)

// ShouldAdvanceQueue returns true if this end reason removes the item from the queue.
func (r TrackEndReason) ShouldAdvanceQueue() bool {
	return r == TrackEndFinished || r == TrackEndFailed || r == TrackEndSkipped
}

// TrackEnqueuedEvent is published when an item is added to the queue.
type TrackEnqueuedEvent struct {
	GuildID  snowflake.ID
	Item     ItemSnapshot
	Position int
}

// PlaybackStartedEvent is published when a stream player starts.
type PlaybackStartedEvent struct {
	GuildID snowflake.ID
	Item    ItemSnapshot
	State   PlaybackState
}

// PlaybackEndedEvent is published when a stream player stops for any reason.
type PlaybackEndedEvent struct {
	GuildID snowflake.ID
	Item    ItemSnapshot
	Reason  TrackEndReason
}

// RequestProcessedEvent is published after the loop applies a request.
type RequestProcessedEvent struct {
	GuildID snowflake.ID
	Action  Action
	Applied bool
	Waited  time.Duration
}

// IdleDisconnectedEvent is published when the bot leaves voice after idling.
type IdleDisconnectedEvent struct {
	GuildID snowflake.ID
	IdleFor time.Duration
}

// QueueClearedEvent is published when the queue is emptied on request.
type QueueClearedEvent struct {
	GuildID snowflake.ID
	Removed int
}

// GuildActivatedEvent is published when a guild's player is first created.
type GuildActivatedEvent struct {
	GuildID snowflake.ID
}

func (e TrackEnqueuedEvent) Guild() snowflake.ID    { return e.GuildID }
func (e PlaybackStartedEvent) Guild() snowflake.ID  { return e.GuildID }
func (e PlaybackEndedEvent) Guild() snowflake.ID    { return e.GuildID }
func (e RequestProcessedEvent) Guild() snowflake.ID { return e.GuildID }
func (e IdleDisconnectedEvent) Guild() snowflake.ID { return e.GuildID }
func (e QueueClearedEvent) Guild() snowflake.ID     { return e.GuildID }
func (e GuildActivatedEvent) Guild() snowflake.ID   { return e.GuildID }
