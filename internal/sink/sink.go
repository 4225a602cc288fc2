// Package sink defines the contract with the platform audio output. The
// engine treats the sink as a black box that turns a byte source into
// audible playback and reports facts back through typed callbacks.
package sink

import (
	"errors"
	"time"
)

// ErrDecodeRejected is returned by Load when the sink refuses the byte
// source. The engine surfaces it without retrying; retrying the same
// bytes cannot succeed.
var ErrDecodeRejected = errors.New("sink rejected byte source")

// Source is what the sink is asked to play: raw bytes for offline
// playback or a URI for progressive streaming. Exactly one of Data/URI
// is set.
type Source struct {
	TrackID string
	URI     string
	Data    []byte
	Format  string
}

// Range is a buffered interval in seconds, as the sink reports it.
type Range struct {
	Start, End float64
}

// Sink is the platform audio output. Implementations live outside the
// engine; tests use the Mock.
type Sink interface {
	Load(src Source) error
	Play() error
	Pause() error
	Stop() error
	SeekTo(pos time.Duration) error
	SetVolume(v float64) error

	Position() time.Duration
	Duration() time.Duration
	BufferedRanges() []Range

	// Event registration. Callbacks fire on the sink's notification
	// thread; the engine serializes them onto its own loop.
	OnTimeUpdate(fn func(pos time.Duration))
	OnStall(fn func())
	OnResumed(fn func())
	OnEnded(fn func())
	OnError(fn func(err error))
}
