package sink

import (
	"sync"
	"time"
)

// Mock is a test double for Sink.
type Mock struct {
	mu       sync.Mutex
	loaded   *Source
	playing  bool
	position time.Duration
	duration time.Duration
	volume   float64
	buffered []Range

	loadErr  error
	loadURIs []string
	loadData [][]byte

	onTime   func(time.Duration)
	onStall  func()
	onResume func()
	onEnded  func()
	onError  func(error)
}

// NewMock creates a mock sink.
func NewMock() *Mock {
	return &Mock{volume: 1}
}

func (m *Mock) Load(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = &src
	if src.URI != "" {
		m.loadURIs = append(m.loadURIs, src.URI)
	}
	if src.Data != nil {
		m.loadData = append(m.loadData, src.Data)
	}
	m.position = 0
	return nil
}

func (m *Mock) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	return nil
}

func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.position = 0
	return nil
}

func (m *Mock) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
	return nil
}

func (m *Mock) SetVolume(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
	return nil
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) BufferedRanges() []Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffered
}

func (m *Mock) OnTimeUpdate(fn func(time.Duration)) { m.mu.Lock(); m.onTime = fn; m.mu.Unlock() }
func (m *Mock) OnStall(fn func())                   { m.mu.Lock(); m.onStall = fn; m.mu.Unlock() }
func (m *Mock) OnResumed(fn func())                 { m.mu.Lock(); m.onResume = fn; m.mu.Unlock() }
func (m *Mock) OnEnded(fn func())                   { m.mu.Lock(); m.onEnded = fn; m.mu.Unlock() }
func (m *Mock) OnError(fn func(error))              { m.mu.Lock(); m.onError = fn; m.mu.Unlock() }

// Test helpers

// SetLoadError makes subsequent Load calls fail with err.
func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetDuration sets the reported track duration.
func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// SetBuffered sets the reported buffered intervals.
func (m *Mock) SetBuffered(ranges []Range) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = ranges
}

// Loaded returns the last loaded source, or nil.
func (m *Mock) Loaded() *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// LoadedURIs returns every URI source loaded, in order.
func (m *Mock) LoadedURIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadURIs...)
}

// LoadedData returns every byte source loaded, in order.
func (m *Mock) LoadedData() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.loadData...)
}

// IsPlaying reports the mock playback flag.
func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Volume returns the last set volume.
func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// SimulateTimeUpdate advances the playhead and fires the callback.
func (m *Mock) SimulateTimeUpdate(pos time.Duration) {
	m.mu.Lock()
	m.position = pos
	fn := m.onTime
	m.mu.Unlock()
	if fn != nil {
		fn(pos)
	}
}

// SimulateStall fires the stall callback.
func (m *Mock) SimulateStall() {
	m.mu.Lock()
	fn := m.onStall
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SimulateResumed fires the resumed callback.
func (m *Mock) SimulateResumed() {
	m.mu.Lock()
	fn := m.onResume
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SimulateEnded fires the natural end-of-media callback.
func (m *Mock) SimulateEnded() {
	m.mu.Lock()
	m.playing = false
	fn := m.onEnded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SimulateError fires the sink error callback.
func (m *Mock) SimulateError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Verify Mock implements Sink at compile time.
var _ Sink = (*Mock)(nil)
