package playback

import "errors"

var (
	// ErrNoSource is returned when Play is called with no source set.
	ErrNoSource = errors.New("playback: no source set")

	// ErrUnsupportedFormat is returned for a source the decoder cannot
	// handle.
	ErrUnsupportedFormat = errors.New("playback: unsupported audio format")

	// ErrPlaybackFailed wraps decode and device errors surfaced during
	// playback.
	ErrPlaybackFailed = errors.New("playback: playback failed")

	// ErrAlreadyPlaying is returned when Play is called while a
	// playback is in progress.
	ErrAlreadyPlaying = errors.New("playback: already playing")
)
