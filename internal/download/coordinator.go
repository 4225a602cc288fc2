package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lcourbon/cadence/internal/fetch"
	"github.com/lcourbon/cadence/internal/offline"
)

// FullFetcher is the network dependency: a whole-resource fetch with
// byte-granularity progress callbacks.
type FullFetcher interface {
	FetchFull(ctx context.Context, uri string, progress fetch.ProgressFunc) ([]byte, error)
}

// Request names a track to download at a given quality.
type Request struct {
	TrackID       string
	SourceURI     string
	Quality       string
	EstimatedSize int64
	Priority      int // higher runs first, 0 = FIFO
}

// Config holds the coordinator tunables.
type Config struct {
	MaxConcurrent int           // worker limit, default 3
	AutoCleanup   bool          // evict before failing on low storage
	MaxTrackAge   time.Duration // expiry stamped on stored records, 0 = never
	// ProgressPersistInterval bounds ledger write amplification; progress
	// rows are written at most this often per task. Default 1s.
	ProgressPersistInterval time.Duration
}

// Coordinator runs the download queue. Scheduling is self-sustaining: a
// finishing worker re-invokes the scheduling step, so the queue drains
// without external prodding.
type Coordinator struct {
	cfg     Config
	fetcher FullFetcher
	store   *offline.Store
	evictor *offline.Evictor
	ledger  *Ledger
	log     *slog.Logger

	onProgress func(Task)
	onState    func(Task)

	mu      sync.Mutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
	active  int
	wg      sync.WaitGroup
}

// NewCoordinator creates a Coordinator. ledger may be nil, in which case
// tasks live only in memory.
func NewCoordinator(cfg Config, fetcher FullFetcher, store *offline.Store, evictor *offline.Evictor, ledger *Ledger, log *slog.Logger) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.ProgressPersistInterval <= 0 {
		cfg.ProgressPersistInterval = time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		evictor: evictor,
		ledger:  ledger,
		log:     log,
		tasks:   make(map[string]*Task),
		cancels: make(map[string]context.CancelFunc),
	}
	c.restore()
	return c
}

// OnProgress registers the progress callback. Progress and completion for
// a single track are strictly ordered; no ordering is guaranteed across
// tracks.
func (c *Coordinator) OnProgress(fn func(Task)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// OnStateChange registers the task state change callback.
func (c *Coordinator) OnStateChange(fn func(Task)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Enqueue adds a download request. A request for a track already Pending,
// Downloading or Downloaded is silently absorbed. When the estimated size
// does not fit the quota, auto-cleanup (if enabled) evicts first;
// otherwise the enqueue fails with ErrInsufficientStorage.
func (c *Coordinator) Enqueue(req Request) error {
	c.mu.Lock()
	if existing, ok := c.tasks[req.TrackID]; ok && existing.State != StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.ensureStorage(req.EstimatedSize); err != nil {
		return err
	}

	task := &Task{
		TrackID:    req.TrackID,
		SourceURI:  req.SourceURI,
		Quality:    req.Quality,
		State:      StatePending,
		Priority:   req.Priority,
		SizeBytes:  req.EstimatedSize,
		EnqueuedAt: time.Now(),
	}

	c.mu.Lock()
	if existing, ok := c.tasks[req.TrackID]; ok && existing.State != StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.tasks[req.TrackID] = task
	c.mu.Unlock()

	c.persist(*task)
	c.notifyState(*task)
	c.schedule()
	return nil
}

// Retry re-queues a Failed task. Retrying a download is an explicit
// caller action, never automatic.
func (c *Coordinator) Retry(trackID string) error {
	c.mu.Lock()
	task, ok := c.tasks[trackID]
	if !ok || task.State != StateFailed {
		c.mu.Unlock()
		return fmt.Errorf("no failed task for %s", trackID)
	}
	task.State = StatePending
	task.ProgressPercent = 0
	snapshot := *task
	c.mu.Unlock()

	c.persist(snapshot)
	c.notifyState(snapshot)
	c.schedule()
	return nil
}

// Cancel aborts an in-flight or pending download and forgets the task.
// Cancellation is not a failure and leaves no Failed record behind.
func (c *Coordinator) Cancel(trackID string) {
	c.mu.Lock()
	cancel := c.cancels[trackID]
	delete(c.tasks, trackID)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.ledger != nil {
		if err := c.ledger.Delete(trackID); err != nil {
			c.log.Warn("forget cancelled task", "track", trackID, "err", err)
		}
	}
}

// Task returns a snapshot of the task for a track, or nil.
func (c *Coordinator) Task(trackID string) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if task, ok := c.tasks[trackID]; ok {
		snapshot := *task
		return &snapshot
	}
	return nil
}

// Tasks returns a snapshot of all known tasks.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Task, 0, len(c.tasks))
	for _, task := range c.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

// Wait blocks until all in-flight workers finish. Test and shutdown hook.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels every in-flight download and waits for workers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, cancel := range c.cancels {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()
}

// ensureStorage checks the estimate against available quota, evicting
// first when auto-cleanup is on.
func (c *Coordinator) ensureStorage(estimated int64) error {
	if estimated <= 0 || c.store == nil {
		return nil
	}
	quota := c.store.Quota()
	missing := estimated - quota.AvailableBytes()
	if missing <= 0 {
		return nil
	}
	if !c.cfg.AutoCleanup || c.evictor == nil {
		return fmt.Errorf("%w: need %d bytes, %d available", offline.ErrInsufficientStorage, estimated, quota.AvailableBytes())
	}

	c.evictor.FreeSpace(missing)
	quota, err := c.store.RefreshQuota()
	if err != nil {
		return err
	}
	if estimated > quota.AvailableBytes() {
		return fmt.Errorf("%w: need %d bytes, %d available after cleanup", offline.ErrInsufficientStorage, estimated, quota.AvailableBytes())
	}
	return nil
}

// schedule starts workers for pending tasks while below the concurrency
// limit. Higher priority first, FIFO within a priority.
func (c *Coordinator) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.active < c.cfg.MaxConcurrent {
		task := c.nextPendingLocked()
		if task == nil {
			return
		}
		task.State = StateDownloading
		ctx, cancel := context.WithCancel(context.Background())
		c.cancels[task.TrackID] = cancel
		c.active++
		snapshot := *task

		c.wg.Add(1)
		go c.run(ctx, snapshot)
	}
}

func (c *Coordinator) nextPendingLocked() *Task {
	var best *Task
	for _, task := range c.tasks {
		if task.State != StatePending {
			continue
		}
		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.EnqueuedAt.Before(best.EnqueuedAt)) {
			best = task
		}
	}
	return best
}

func (c *Coordinator) run(ctx context.Context, task Task) {
	defer c.wg.Done()

	c.persist(task)
	c.notifyState(task)

	lastPersist := time.Now()
	data, err := c.fetcher.FetchFull(ctx, task.SourceURI, func(written, total int64) {
		percent := 0.0
		if total > 0 {
			percent = float64(written) / float64(total) * 100
		}
		c.mu.Lock()
		live, ok := c.tasks[task.TrackID]
		if ok {
			live.ProgressPercent = percent
		}
		c.mu.Unlock()
		if !ok {
			return
		}

		task.ProgressPercent = percent
		c.notifyProgress(task)
		if time.Since(lastPersist) >= c.cfg.ProgressPersistInterval {
			lastPersist = time.Now()
			c.persist(task)
		}
	})

	c.mu.Lock()
	delete(c.cancels, task.TrackID)
	c.active--
	c.mu.Unlock()

	switch {
	case errors.Is(err, fetch.ErrCancelled):
		// Intentional abort: the task was already forgotten by Cancel.
		c.log.Debug("download cancelled", "track", task.TrackID)
	case err != nil:
		c.fail(task, err)
	default:
		c.complete(task, data)
	}

	c.schedule()
}

func (c *Coordinator) complete(task Task, data []byte) {
	rec := offline.Record{
		TrackID:      task.TrackID,
		Quality:      task.Quality,
		DownloadedAt: time.Now(),
	}
	if c.cfg.MaxTrackAge > 0 {
		rec.ExpiresAt = rec.DownloadedAt.Add(c.cfg.MaxTrackAge)
	}
	if err := c.store.Put(rec, data); err != nil {
		c.fail(task, err)
		return
	}

	c.mu.Lock()
	if live, ok := c.tasks[task.TrackID]; ok {
		live.State = StateDownloaded
		live.ProgressPercent = 100
		live.SizeBytes = int64(len(data))
		task = *live
	}
	c.mu.Unlock()

	c.persist(task)
	c.notifyState(task)
	c.log.Info("download complete", "track", task.TrackID, "bytes", len(data))
}

func (c *Coordinator) fail(task Task, err error) {
	c.mu.Lock()
	if live, ok := c.tasks[task.TrackID]; ok {
		live.State = StateFailed
		live.Attempt++
		task = *live
	}
	c.mu.Unlock()

	c.persist(task)
	c.notifyState(task)
	c.log.Warn("download failed", "track", task.TrackID, "attempt", task.Attempt, "err", err)
}

// restore loads persisted tasks, demoting interrupted downloads back to
// pending, and resumes the queue.
func (c *Coordinator) restore() {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.ResetInterrupted(); err != nil {
		c.log.Warn("reset interrupted tasks", "err", err)
		return
	}
	tasks, err := c.ledger.List()
	if err != nil {
		c.log.Warn("restore tasks", "err", err)
		return
	}
	c.mu.Lock()
	for i := range tasks {
		task := tasks[i]
		c.tasks[task.TrackID] = &task
	}
	c.mu.Unlock()
	c.schedule()
}

func (c *Coordinator) persist(task Task) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.Save(task); err != nil {
		c.log.Warn("persist task", "track", task.TrackID, "err", err)
	}
}

func (c *Coordinator) notifyProgress(task Task) {
	c.mu.Lock()
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		fn(task)
	}
}

func (c *Coordinator) notifyState(task Task) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(task)
	}
}
