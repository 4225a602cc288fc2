package download

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dbutil "github.com/lcourbon/cadence/internal/db"
	"github.com/lcourbon/cadence/internal/fetch"
	"github.com/lcourbon/cadence/internal/offline"
)

// fakeFetcher serves canned payloads with progress callbacks, tracking
// peak concurrency.
type fakeFetcher struct {
	mu          sync.Mutex
	payloads    map[string][]byte
	errs        map[string]error
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
	block       chan struct{} // when set, fetches wait on it
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string][]byte),
		errs:     make(map[string]error),
	}
}

func (f *fakeFetcher) FetchFull(ctx context.Context, uri string, progress fetch.ProgressFunc) ([]byte, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxInFlight)
		if current <= prev || atomic.CompareAndSwapInt32(&f.maxInFlight, prev, current) {
			break
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, fetch.ErrCancelled
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fetch.ErrCancelled
		}
	}

	f.mu.Lock()
	err := f.errs[uri]
	data := f.payloads[uri]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if progress != nil {
		total := int64(len(data))
		progress(total/2, total)
		progress(total, total)
	}
	return data, nil
}

func testStore(t *testing.T, total int64) *offline.Store {
	t.Helper()
	s, err := offline.Open(filepath.Join(t.TempDir(), "offline.db"), offline.FixedQuota(total))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	conn, err := dbutil.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	ledger, err := NewLedger(conn)
	if err != nil {
		t.Fatal(err)
	}
	return ledger
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCoordinator_DownloadLandsInStore(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.payloads["uri://t1"] = []byte("track-one-bytes")

	c := NewCoordinator(Config{}, fetcher, store, nil, testLedger(t), nil)

	if err := c.Enqueue(Request{TrackID: "t1", SourceURI: "uri://t1", Quality: "high"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	c.Wait()

	data, err := store.Get("t1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "track-one-bytes" {
		t.Errorf("stored bytes = %q, want track-one-bytes", data)
	}

	task := c.Task("t1")
	if task == nil || task.State != StateDownloaded {
		t.Errorf("task = %+v, want Downloaded", task)
	}
	if task.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", task.ProgressPercent)
	}
}

func TestCoordinator_DuplicateEnqueueIsAbsorbed(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.payloads["uri://t1"] = []byte("bytes")

	c := NewCoordinator(Config{}, fetcher, store, nil, nil, nil)

	if err := c.Enqueue(Request{TrackID: "t1", SourceURI: "uri://t1"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Enqueue(Request{TrackID: "t1", SourceURI: "uri://t1"}); err != nil {
		t.Fatalf("duplicate Enqueue() error = %v, want silent no-op", err)
	}

	if got := len(c.Tasks()); got != 1 {
		t.Errorf("task count = %d, want exactly 1", got)
	}

	close(fetcher.block)
	c.Wait()
}

func TestCoordinator_ConcurrencyLimit(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.delay = 50 * time.Millisecond
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		fetcher.payloads["uri://"+id] = []byte(id)
	}

	c := NewCoordinator(Config{MaxConcurrent: 3}, fetcher, store, nil, nil, nil)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := c.Enqueue(Request{TrackID: id, SourceURI: "uri://" + id}); err != nil {
			t.Fatal(err)
		}
	}
	c.Wait()

	if peak := atomic.LoadInt32(&fetcher.maxInFlight); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if task := c.Task(id); task == nil || task.State != StateDownloaded {
			t.Errorf("task %s = %+v, want Downloaded", id, task)
		}
	}
}

func TestCoordinator_FailureIsTerminalUntilRetry(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.errs["uri://bad"] = fetch.ErrTransferFailed

	c := NewCoordinator(Config{}, fetcher, store, nil, testLedger(t), nil)
	if err := c.Enqueue(Request{TrackID: "bad", SourceURI: "uri://bad"}); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	task := c.Task("bad")
	if task == nil || task.State != StateFailed {
		t.Fatalf("task = %+v, want Failed", task)
	}
	if task.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1 (no auto-retry)", task.Attempt)
	}

	// Explicit retry after fixing the source.
	fetcher.mu.Lock()
	delete(fetcher.errs, "uri://bad")
	fetcher.payloads["uri://bad"] = []byte("recovered")
	fetcher.mu.Unlock()

	if err := c.Retry("bad"); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	c.Wait()

	if task := c.Task("bad"); task == nil || task.State != StateDownloaded {
		t.Errorf("task after retry = %+v, want Downloaded", task)
	}
}

func TestCoordinator_InsufficientStorageFailsFast(t *testing.T) {
	store := testStore(t, 1000)
	fetcher := newFakeFetcher()

	c := NewCoordinator(Config{AutoCleanup: false}, fetcher, store, nil, nil, nil)

	err := c.Enqueue(Request{TrackID: "big", SourceURI: "uri://big", EstimatedSize: 5000})
	if !errors.Is(err, offline.ErrInsufficientStorage) {
		t.Errorf("Enqueue() error = %v, want ErrInsufficientStorage", err)
	}
	if c.Task("big") != nil {
		t.Error("rejected enqueue should leave no task behind")
	}
}

func TestCoordinator_AutoCleanupEvictsThenDownloads(t *testing.T) {
	// 40MB free of a 100MB budget, an expired 20MB record present, and a
	// 50MB download requested: cleanup must free >= 10MB first.
	const mb = int64(1 << 20)
	store := testStore(t, 100*mb)
	evictor := offline.NewEvictor(store, offline.DefaultEvictorConfig(), nil)

	expired := offline.Record{
		TrackID:      "stale",
		Quality:      "high",
		DownloadedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt:    time.Now().Add(-time.Hour),
	}
	if err := store.Put(expired, make([]byte, 20*mb)); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(offline.Record{TrackID: "keep", DownloadedAt: time.Now()}, make([]byte, 40*mb)); err != nil {
		t.Fatal(err)
	}

	fetcher := newFakeFetcher()
	fetcher.payloads["uri://new"] = make([]byte, 50*mb)

	c := NewCoordinator(Config{AutoCleanup: true}, fetcher, store, evictor, nil, nil)
	if err := c.Enqueue(Request{TrackID: "new", SourceURI: "uri://new", EstimatedSize: 50 * mb}); err != nil {
		t.Fatalf("Enqueue() error = %v, want eviction to make room", err)
	}
	c.Wait()

	if rec, _ := store.GetRecord("stale"); rec != nil {
		t.Error("expired record should have been evicted")
	}
	if task := c.Task("new"); task == nil || task.State != StateDownloaded {
		t.Errorf("task = %+v, want Downloaded", task)
	}
}

func TestCoordinator_ProgressBeforeCompletion(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.payloads["uri://t"] = make([]byte, 1000)

	c := NewCoordinator(Config{}, fetcher, store, nil, nil, nil)

	var mu sync.Mutex
	var events []string
	c.OnProgress(func(task Task) {
		mu.Lock()
		events = append(events, "progress")
		mu.Unlock()
	})
	c.OnStateChange(func(task Task) {
		mu.Lock()
		events = append(events, task.State)
		mu.Unlock()
	})

	if err := c.Enqueue(Request{TrackID: "t", SourceURI: "uri://t"}); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 || events[len(events)-1] != StateDownloaded {
		t.Fatalf("events = %v, want completion last", events)
	}
	sawProgress := false
	for _, e := range events {
		if e == StateDownloaded && !sawProgress {
			t.Fatal("completion arrived before any progress event")
		}
		if e == "progress" {
			sawProgress = true
		}
	}
}

func TestCoordinator_RestoreResumesInterrupted(t *testing.T) {
	ledger := testLedger(t)
	interrupted := Task{
		TrackID:    "resume-me",
		SourceURI:  "uri://resume-me",
		Quality:    "high",
		State:      StateDownloading,
		EnqueuedAt: time.Now(),
	}
	if err := ledger.Save(interrupted); err != nil {
		t.Fatal(err)
	}

	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.payloads["uri://resume-me"] = []byte("resumed")

	c := NewCoordinator(Config{}, fetcher, store, nil, ledger, nil)
	waitFor(t, time.Second, func() bool {
		task := c.Task("resume-me")
		return task != nil && task.State == StateDownloaded
	})
	c.Wait()

	data, err := store.Get("resume-me")
	if err != nil || string(data) != "resumed" {
		t.Errorf("store bytes = %q, %v; want resumed", data, err)
	}
}

func TestCoordinator_CancelLeavesNoFailedTask(t *testing.T) {
	store := testStore(t, 1<<20)
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.payloads["uri://t"] = []byte("bytes")
	defer close(fetcher.block)

	c := NewCoordinator(Config{}, fetcher, store, nil, testLedger(t), nil)
	if err := c.Enqueue(Request{TrackID: "t", SourceURI: "uri://t"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		task := c.Task("t")
		return task != nil && task.State == StateDownloading
	})

	c.Cancel("t")
	c.Wait()

	if task := c.Task("t"); task != nil {
		t.Errorf("task after cancel = %+v, want forgotten", task)
	}
}

func TestLedger_Roundtrip(t *testing.T) {
	ledger := testLedger(t)

	task := Task{
		TrackID:    "t1",
		SourceURI:  "uri://t1",
		Quality:    "normal",
		State:      StateDownloaded,
		Priority:   2,
		SizeBytes:  1234,
		EnqueuedAt: time.Now().Truncate(time.Second),
	}
	if err := ledger.Save(task); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.Get("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Quality != "normal" || got.SizeBytes != 1234 || got.Priority != 2 {
		t.Errorf("Get() = %+v, want saved task", got)
	}

	if err := ledger.ClearCompleted(); err != nil {
		t.Fatal(err)
	}
	if got, _ := ledger.Get("t1"); got != nil {
		t.Error("ClearCompleted should remove downloaded tasks")
	}
}
