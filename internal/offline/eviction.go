package offline

import (
	"log/slog"
	"sort"
	"time"
)

// Eviction score weights. Expired records always outrank orphaned ones,
// which outrank anything scored by age alone.
const (
	scoreExpired  = 1000
	scoreOrphaned = 800
)

// EvictorConfig holds the cleanup watermarks.
type EvictorConfig struct {
	// HighWaterMark is the usage ratio above which AutoCleanup acts.
	HighWaterMark float64
	// TargetMark is the usage ratio AutoCleanup drives the store down to.
	TargetMark float64
}

// DefaultEvictorConfig returns the stock watermarks.
func DefaultEvictorConfig() EvictorConfig {
	return EvictorConfig{HighWaterMark: 0.9, TargetMark: 0.8}
}

// Evictor computes deletion priority over cached tracks and reclaims
// space through the store. It never errors: it does as much as it can and
// reports how much it reclaimed.
type Evictor struct {
	store *Store
	cfg   EvictorConfig
	log   *slog.Logger
	now   func() time.Time // test seam
}

// NewEvictor creates an Evictor over the given store.
func NewEvictor(store *Store, cfg EvictorConfig, log *slog.Logger) *Evictor {
	if cfg.HighWaterMark <= 0 {
		cfg = DefaultEvictorConfig()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Evictor{store: store, cfg: cfg, log: log, now: time.Now}
}

type scored struct {
	rec   Record
	score float64
}

// FreeSpace deletes the highest-scoring records until at least
// bytesNeeded bytes are reclaimed or no records remain. Returns the bytes
// actually reclaimed; overshoot from record granularity is expected.
func (e *Evictor) FreeSpace(bytesNeeded int64) int64 {
	if bytesNeeded <= 0 {
		return 0
	}

	candidates := e.rank()
	var reclaimed int64
	for _, c := range candidates {
		if reclaimed >= bytesNeeded {
			break
		}
		if err := e.store.Delete(c.rec.TrackID); err != nil {
			e.log.Warn("evict failed", "track", c.rec.TrackID, "err", err)
			continue
		}
		reclaimed += c.rec.SizeBytes
		e.log.Debug("evicted", "track", c.rec.TrackID, "bytes", c.rec.SizeBytes, "score", c.score)
	}
	return reclaimed
}

// AutoCleanup runs when usage exceeds the high-water mark: first removes
// all expired and orphaned records unconditionally, then, if usage is
// still above the target mark, deletes oldest-first until under target.
// Safe to call with nothing to evict.
func (e *Evictor) AutoCleanup() int64 {
	quota := e.store.Quota()
	if quota.Usage() <= e.cfg.HighWaterMark {
		return 0
	}

	now := e.now()
	records, err := e.store.ListAll()
	if err != nil {
		e.log.Warn("auto cleanup list failed", "err", err)
		return 0
	}

	var reclaimed int64
	remaining := records[:0]
	for _, rec := range records {
		if rec.Expired(now) || e.orphaned(rec) {
			if err := e.store.Delete(rec.TrackID); err != nil {
				e.log.Warn("evict failed", "track", rec.TrackID, "err", err)
				remaining = append(remaining, rec)
				continue
			}
			reclaimed += rec.SizeBytes
			continue
		}
		remaining = append(remaining, rec)
	}

	quota, err = e.store.RefreshQuota()
	if err != nil || quota.Usage() <= e.cfg.TargetMark {
		return reclaimed
	}

	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].DownloadedAt.Before(remaining[j].DownloadedAt)
	})
	target := int64(e.cfg.TargetMark * float64(quota.TotalBytes))
	used := quota.UsedBytes
	for _, rec := range remaining {
		if used <= target {
			break
		}
		if err := e.store.Delete(rec.TrackID); err != nil {
			e.log.Warn("evict failed", "track", rec.TrackID, "err", err)
			continue
		}
		used -= rec.SizeBytes
		reclaimed += rec.SizeBytes
	}
	return reclaimed
}

// rank scores every record for deletion, highest priority first.
func (e *Evictor) rank() []scored {
	records, err := e.store.ListAll()
	if err != nil {
		e.log.Warn("rank records failed", "err", err)
		return nil
	}

	now := e.now()
	out := make([]scored, 0, len(records))
	for _, rec := range records {
		s := rec.AgeDays(now)
		if rec.Expired(now) {
			s += scoreExpired
		} else if e.orphaned(rec) {
			s += scoreOrphaned
		}
		out = append(out, scored{rec: rec, score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func (e *Evictor) orphaned(rec Record) bool {
	present, err := e.store.HasAudio(rec.TrackID)
	return err == nil && !present
}
