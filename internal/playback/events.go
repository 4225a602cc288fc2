package playback

import (
	"time"

	"github.com/lcourbon/cadence/internal/buffer"
	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/quality"
)

// StateChange is emitted when playback state changes.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when playback moves to a different track.
//
// Emitted by:
//   - PlayAt/Next/Previous: when navigating with playback control
//   - crossfade handoff and natural track end: automatic advancement
//
// NOT emitted by:
//   - Pause/Stop: state changes do not emit TrackChange
//
// The caller should handle all track-related side effects (notifications,
// artwork, scrobbling) in response to this event.
type TrackChange struct {
	Previous      *playlist.Track
	Current       *playlist.Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when the queue contents change.
type QueueChange struct {
	Tracks []playlist.Track
	Index  int
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	RepeatMode playlist.RepeatMode
	Shuffle    bool
}

// PositionChange is emitted when a seek occurs.
type PositionChange struct {
	Position time.Duration
}

// BufferChange is emitted when the stream buffer monitor reports a new
// status for the playing track.
type BufferChange struct {
	Status buffer.Status
}

// QualityChange is emitted when the active streaming quality switches.
type QualityChange struct {
	Profile quality.Profile
	Reason  quality.SwitchReason
}

// ErrorEvent is emitted when an error occurs during playback.
type ErrorEvent struct {
	Operation string // e.g., "load", "play", "seek"
	TrackID   string // track id if applicable
	Err       error
}
