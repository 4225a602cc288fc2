package playback

import (
	"time"

	"github.com/lcourbon/cadence/internal/buffer"
	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/quality"
)

// PlayerState is a snapshot of the whole player. The service is the single
// writer; every other component reports facts into it through the service's
// callbacks and never mutates it directly.
type PlayerState struct {
	State         State
	CurrentTrack  *playlist.Track
	IsPlaying     bool
	Position      time.Duration
	Duration      time.Duration
	Volume        float64
	Muted         bool
	Shuffle       bool
	RepeatMode    playlist.RepeatMode
	Queue         []playlist.Track
	QueuePosition int
	IsOffline     bool
	BufferStatus  buffer.Status
	ActiveQuality quality.Profile
	Crossfade     CrossfadeSettings
}

// CrossfadeSettings holds the crossfade configuration in effect.
type CrossfadeSettings struct {
	Enabled  bool
	Duration time.Duration
}
