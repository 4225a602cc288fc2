package playback

import "errors"

var (
	// ErrTrackUnavailableOffline is returned when a track has no cached
	// copy and the network is unreachable.
	ErrTrackUnavailableOffline = errors.New("track unavailable offline")

	// ErrNoNext is returned by Next at the end of the queue with repeat off.
	ErrNoNext = errors.New("no next track")

	// ErrNoPrevious is returned by Previous at the start of the queue with
	// repeat off.
	ErrNoPrevious = errors.New("no previous track")

	// ErrNotLoaded is returned by playback controls when no track is loaded.
	ErrNotLoaded = errors.New("no track loaded")
)
