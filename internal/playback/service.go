package playback

import (
	"time"

	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/quality"
)

// Service defines the playback engine contract.
type Service interface {
	// Playback control
	Play() error
	Pause() error
	Stop() error
	Toggle() error
	Next() error
	Previous() error
	Seek(delta time.Duration) error
	SeekTo(position time.Duration) error

	// Queue navigation (loads and plays the track at index)
	PlayAt(index int) error

	// Queue manipulation
	AddTracks(tracks ...playlist.Track)
	ReplaceTracks(tracks ...playlist.Track)
	ClearQueue()

	// State queries
	State() State
	IsPlaying() bool
	Position() time.Duration
	Duration() time.Duration
	CurrentTrack() *playlist.Track
	Snapshot() PlayerState

	// Queue queries
	QueueTracks() []playlist.Track
	QueueIndex() int
	QueueLen() int

	// Volume control
	Volume() float64
	SetVolume(v float64) error
	Muted() bool
	SetMuted(muted bool) error
	ToggleMute() error

	// Mode control
	RepeatMode() playlist.RepeatMode
	SetRepeatMode(mode playlist.RepeatMode)
	CycleRepeatMode() playlist.RepeatMode
	Shuffle() bool
	SetShuffle(enabled bool)
	ToggleShuffle() bool

	// Connectivity and quality
	SetOnline(online bool)
	Online() bool
	ActiveQuality() quality.Profile

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}
