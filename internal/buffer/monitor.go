// Package buffer watches how much playable data is buffered ahead of the
// playhead, prefetches the upcoming window, and flags stalls.
package buffer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lcourbon/cadence/internal/bandwidth"
	"github.com/lcourbon/cadence/internal/fetch"
)

// Status is the derived view of buffer state, recomputed each tick.
type Status struct {
	BufferedAheadSeconds   float64
	TotalSeconds           float64
	IsStalling             bool
	EstimatedBandwidthKbps float64
}

// Percentage returns total buffered time over track duration.
func (s Status) Percentage(totalBufferedSeconds float64) float64 {
	if s.TotalSeconds <= 0 {
		return 0
	}
	return totalBufferedSeconds / s.TotalSeconds
}

// Range is a buffered interval in seconds.
type Range struct {
	Start, End float64
}

// Playhead exposes the sink-side facts the monitor needs: where playback
// is and which intervals the sink reports as buffered.
type Playhead interface {
	Position() time.Duration
	BufferedRanges() []Range
}

// RangeFetcher is the network dependency for prefetching.
type RangeFetcher interface {
	FetchRange(ctx context.Context, uri string, start, end int64) ([]byte, error)
}

// Source describes the active online track being buffered.
type Source struct {
	TrackID     string
	URI         string
	Duration    time.Duration
	TotalBytes  int64
	BitrateKbps int // active profile bitrate, maps seconds to bytes
}

// Config holds the monitor tunables.
type Config struct {
	TickInterval     time.Duration // default 1s
	PreloadSeconds   float64       // prefetch horizon, default 30
	MinBufferSeconds float64       // health denominator, default 10
	ChunkSizeBytes   int64         // prefetch segment size, default 1MiB
	MaxConcurrent    int           // parallel prefetch requests, default 3
	// StallDowngradeThreshold is the stall count in a session beyond
	// which a quality downgrade is requested. Empirical, not law.
	StallDowngradeThreshold int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		TickInterval:            time.Second,
		PreloadSeconds:          30,
		MinBufferSeconds:        10,
		ChunkSizeBytes:          1 << 20,
		MaxConcurrent:           3,
		StallDowngradeThreshold: 2,
	}
}

// Monitor runs the periodic buffering loop for the active online track.
type Monitor struct {
	cfg       Config
	fetcher   RangeFetcher
	estimator *bandwidth.Estimator
	playhead  Playhead
	log       *slog.Logger

	mu         sync.Mutex
	source     *Source
	status     Status
	stallCount int
	fetched    map[int64]bool // chunk start offsets already requested

	onStatus    func(Status)
	onDowngrade func()
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, fetcher RangeFetcher, estimator *bandwidth.Estimator, playhead Playhead, log *slog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.PreloadSeconds <= 0 {
		cfg.PreloadSeconds = def.PreloadSeconds
	}
	if cfg.MinBufferSeconds <= 0 {
		cfg.MinBufferSeconds = def.MinBufferSeconds
	}
	if cfg.ChunkSizeBytes <= 0 {
		cfg.ChunkSizeBytes = def.ChunkSizeBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.StallDowngradeThreshold <= 0 {
		cfg.StallDowngradeThreshold = def.StallDowngradeThreshold
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		cfg:       cfg,
		fetcher:   fetcher,
		estimator: estimator,
		playhead:  playhead,
		log:       log,
		fetched:   make(map[int64]bool),
	}
}

// OnStatus registers the per-tick status callback.
func (m *Monitor) OnStatus(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// OnDowngradeRequest registers the callback fired when repeated stalls
// warrant a quality downgrade.
func (m *Monitor) OnDowngradeRequest(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDowngrade = fn
}

// SetSource switches the monitor to a new active track, resetting stall
// accounting and the prefetch ledger. A nil source idles the monitor.
func (m *Monitor) SetSource(src *Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
	m.stallCount = 0
	m.status = Status{}
	m.fetched = make(map[int64]bool)
}

// Run drives the monitor loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick recomputes the buffer status and prefetches the upcoming window
// when it has fallen below the preload horizon. Exposed so the playback
// loop (and tests) can drive the monitor without wall-clock time.
func (m *Monitor) Tick(ctx context.Context) Status {
	m.mu.Lock()
	src := m.source
	stalling := m.status.IsStalling
	m.mu.Unlock()
	if src == nil {
		return Status{}
	}

	pos := m.playhead.Position().Seconds()
	ahead := bufferedAhead(m.playhead.BufferedRanges(), pos)

	status := Status{
		BufferedAheadSeconds: ahead,
		TotalSeconds:         src.Duration.Seconds(),
		IsStalling:           stalling,
	}
	if m.estimator != nil {
		status.EstimatedBandwidthKbps = m.estimator.Estimate()
	}

	m.mu.Lock()
	m.status = status
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(status)
	}

	if ahead < m.cfg.PreloadSeconds {
		m.prefetch(ctx, src, pos+ahead)
	}
	return status
}

// Status returns the last computed status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Health returns buffered-ahead time relative to the configured minimum,
// capped at 1. Gates prefetch urgency and quality upgrades.
func (m *Monitor) Health() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.status.BufferedAheadSeconds / m.cfg.MinBufferSeconds
	if h > 1 {
		h = 1
	}
	return h
}

// HandleStall records a sink-reported stall. Beyond the configured stall
// threshold a quality downgrade is requested.
func (m *Monitor) HandleStall() {
	m.mu.Lock()
	m.status.IsStalling = true
	m.stallCount++
	count := m.stallCount
	fn := m.onDowngrade
	m.mu.Unlock()

	m.log.Debug("playback stall", "count", count)
	if count > m.cfg.StallDowngradeThreshold && fn != nil {
		fn()
	}
}

// HandleResume clears the stall flag after the sink recovers.
func (m *Monitor) HandleResume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.IsStalling = false
}

// StallCount returns stalls seen for the current source.
func (m *Monitor) StallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stallCount
}

// prefetch covers [fromSeconds, fromSeconds+preload) with fixed-size
// range requests, at most MaxConcurrent in flight, skipping chunks
// already requested for this source.
func (m *Monitor) prefetch(ctx context.Context, src *Source, fromSeconds float64) {
	bytesPerSecond := float64(src.BitrateKbps) * 1000 / 8
	if bytesPerSecond <= 0 || src.TotalBytes <= 0 {
		return
	}

	start := int64(fromSeconds * bytesPerSecond)
	end := int64((fromSeconds + m.cfg.PreloadSeconds) * bytesPerSecond)
	if end > src.TotalBytes {
		end = src.TotalBytes
	}
	if start >= end {
		return
	}

	// Align to chunk boundaries so the fetched ledger stays stable.
	start -= start % m.cfg.ChunkSizeBytes

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)
	for offset := start; offset < end; offset += m.cfg.ChunkSizeBytes {
		m.mu.Lock()
		seen := m.fetched[offset]
		if !seen {
			m.fetched[offset] = true
		}
		m.mu.Unlock()
		if seen {
			continue
		}

		chunkEnd := offset + m.cfg.ChunkSizeBytes
		if chunkEnd > src.TotalBytes {
			chunkEnd = src.TotalBytes
		}
		g.Go(func() error {
			_, err := m.fetcher.FetchRange(ctx, src.URI, offset, chunkEnd)
			if err != nil && !errors.Is(err, fetch.ErrCancelled) {
				m.mu.Lock()
				delete(m.fetched, offset) // retry on a later tick
				m.mu.Unlock()
				m.log.Debug("prefetch failed", "track", src.TrackID, "offset", offset, "err", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

// bufferedAhead returns contiguous buffered seconds ahead of pos.
func bufferedAhead(ranges []Range, pos float64) float64 {
	for _, r := range ranges {
		if pos >= r.Start && pos <= r.End {
			return r.End - pos
		}
	}
	return 0
}
