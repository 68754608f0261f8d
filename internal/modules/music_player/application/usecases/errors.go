package usecases

import "errors"

// Errors returned by the music player use cases. Their text is shown to users.
var (
	// ErrNotConnected is returned when an operation requires the bot to be in a voice channel.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrUnknownMember is returned when the requesting user cannot be resolved to a guild member.
	ErrUnknownMember = errors.New("could not resolve the requesting member")

	// ErrNotPlaying is returned when no song is currently playing.
	ErrNotPlaying = errors.New("no songs are currently playing")

	// ErrAlreadyPlaying is returned when play is requested while already playing.
	ErrAlreadyPlaying = errors.New("already playing")

	// ErrNothingToPlay is returned when play is requested with no queue and no live stream.
	ErrNothingToPlay = errors.New("no songs in queue")

	// ErrQueueEmpty is returned when the queue is empty.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrNoNextSong is returned when nothing follows the current song.
	ErrNoNextSong = errors.New("no other songs in queue")

	// ErrInvalidPosition is returned when no song exists at the given queue position.
	ErrInvalidPosition = errors.New("no song at that position")

	// ErrEmptyQuery is returned when a search query or link is blank.
	ErrEmptyQuery = errors.New("a search query or link is required")

	// ErrSearchFailed wraps errors from the search backend.
	ErrSearchFailed = errors.New("search failed")

	// ErrSlowModeLimit is returned when the requester already has the maximum number of songs queued.
	ErrSlowModeLimit = errors.New("slow mode limit reached")

	// ErrDurationTooLong is returned when a song exceeds the maximum duration.
	ErrDurationTooLong = errors.New("duration too long")

	// ErrLiveNotQueueable is returned when a live stream is queued like a song.
	ErrLiveNotQueueable = errors.New("live streams cannot be queued, use /stream instead")

	// ErrInvalidLiveStream is returned when a live stream link resolves to something else.
	ErrInvalidLiveStream = errors.New("invalid live stream link")

	// ErrPlaybackStopped is returned for requests submitted after the playback loop exited.
	ErrPlaybackStopped = errors.New("playback loop has stopped")

	// ErrRegistryClosed is returned when a guild player is requested during shutdown.
	ErrRegistryClosed = errors.New("music player is shutting down")
)
