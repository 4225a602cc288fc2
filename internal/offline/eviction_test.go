package offline

import (
	"testing"
	"time"
)

func TestFreeSpace_ReclaimsAtLeastRequested(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.Put(testRecord(id, 24*time.Hour), make([]byte, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	before := s.Quota().UsedBytes

	reclaimed := e.FreeSpace(2500)
	if reclaimed < 2500 {
		t.Errorf("FreeSpace(2500) reclaimed %d, want >= 2500", reclaimed)
	}

	after := s.Quota().UsedBytes
	if before-after < 2500 {
		t.Errorf("used bytes decreased by %d, want >= 2500", before-after)
	}
}

func TestFreeSpace_NothingToEvictIsNoop(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	if got := e.FreeSpace(500); got != 0 {
		t.Errorf("FreeSpace on empty store = %d, want 0", got)
	}
	if got := e.FreeSpace(0); got != 0 {
		t.Errorf("FreeSpace(0) = %d, want 0", got)
	}
}

func TestFreeSpace_ExpiredRecordsGoFirst(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	fresh := testRecord("fresh", time.Hour)
	if err := s.Put(fresh, make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}

	expired := testRecord("expired", 2*time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.Put(expired, make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}

	old := testRecord("old", 90*24*time.Hour)
	if err := s.Put(old, make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}

	e.FreeSpace(1)

	if rec, _ := s.GetRecord("expired"); rec != nil {
		t.Error("expired record should be evicted first")
	}
	if rec, _ := s.GetRecord("fresh"); rec == nil {
		t.Error("fresh record should survive")
	}
	if rec, _ := s.GetRecord("old"); rec == nil {
		t.Error("old-but-valid record should outrank expired only")
	}
}

func TestFreeSpace_OlderBeforeNewer(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	if err := s.Put(testRecord("newer", 24*time.Hour), make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("older", 30*24*time.Hour), make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}

	e.FreeSpace(1)

	if rec, _ := s.GetRecord("older"); rec != nil {
		t.Error("older record should be evicted before newer")
	}
	if rec, _ := s.GetRecord("newer"); rec == nil {
		t.Error("newer record should survive")
	}
}

func TestAutoCleanup_BelowHighWaterIsNoop(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	if err := s.Put(testRecord("a", time.Hour), make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}

	if got := e.AutoCleanup(); got != 0 {
		t.Errorf("AutoCleanup() below high water = %d, want 0", got)
	}
	if rec, _ := s.GetRecord("a"); rec == nil {
		t.Error("record should survive cleanup below high water")
	}
}

func TestAutoCleanup_PurgesExpiredThenOldest(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	expired := testRecord("expired", 48*time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if err := s.Put(expired, make([]byte, 3000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("oldest", 50*24*time.Hour), make([]byte, 3000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("newest", time.Hour), make([]byte, 3500)); err != nil {
		t.Fatal(err)
	}
	// Usage: 9500/10000 = 95%, above the 90% high-water mark.

	reclaimed := e.AutoCleanup()
	if reclaimed == 0 {
		t.Fatal("AutoCleanup() above high water should reclaim")
	}

	if rec, _ := s.GetRecord("expired"); rec != nil {
		t.Error("expired record must be purged unconditionally")
	}
	// After purging expired: 6500/10000 = 65%, below the 80% target, so
	// the age pass must not run.
	if rec, _ := s.GetRecord("oldest"); rec == nil {
		t.Error("oldest record should survive once under target")
	}
	if rec, _ := s.GetRecord("newest"); rec == nil {
		t.Error("newest record should survive")
	}
}

func TestAutoCleanup_AgePassDrivesUnderTarget(t *testing.T) {
	s := openTestStore(t, 10000)
	e := NewEvictor(s, DefaultEvictorConfig(), nil)

	// No expired records; 95% usage forces the oldest-first pass.
	if err := s.Put(testRecord("oldest", 40*24*time.Hour), make([]byte, 3000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("middle", 20*24*time.Hour), make([]byte, 3000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("newest", time.Hour), make([]byte, 3500)); err != nil {
		t.Fatal(err)
	}

	e.AutoCleanup()

	if rec, _ := s.GetRecord("oldest"); rec != nil {
		t.Error("oldest record should be deleted by the age pass")
	}
	q := s.Quota()
	if q.Usage() > 0.8 {
		t.Errorf("usage after cleanup = %.2f, want <= 0.80", q.Usage())
	}
}
