package playback

import (
	"path/filepath"
	"testing"

	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/state"
)

func openStateManager(t *testing.T) *state.Manager {
	t.Helper()

	mgr, err := state.OpenAt(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	return mgr
}

func TestRestoreQueue_EmptyStateLeavesQueueUntouched(t *testing.T) {
	mgr := openStateManager(t)
	q := playlist.NewQueue()

	RestoreQueue(mgr, q)

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if q.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex() = %d, want -1", q.CurrentIndex())
	}
}

func TestRestoreQueue_RoundTrip(t *testing.T) {
	mgr := openStateManager(t)

	saved := state.QueueState{
		CurrentIndex: 1,
		RepeatMode:   int(playlist.RepeatAll),
		Shuffle:      false,
		Tracks:       []playlist.Track{testTrack("t1"), testTrack("t2"), testTrack("t3")},
	}
	if err := mgr.SaveQueueNow(saved); err != nil {
		t.Fatalf("SaveQueueNow failed: %v", err)
	}

	q := playlist.NewQueue()
	RestoreQueue(mgr, q)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	cur := q.Current()
	if cur == nil || cur.ID != "t2" {
		t.Errorf("Current() = %v, want t2", cur)
	}
	if q.RepeatMode() != playlist.RepeatAll {
		t.Errorf("RepeatMode() = %v, want RepeatAll", q.RepeatMode())
	}
	if q.Shuffle() {
		t.Error("Shuffle() = true, want false")
	}
}

func TestRestoreQueue_ShufflePreservesCurrentTrack(t *testing.T) {
	mgr := openStateManager(t)

	saved := state.QueueState{
		CurrentIndex: 2,
		Shuffle:      true,
		Tracks: []playlist.Track{
			testTrack("t1"), testTrack("t2"), testTrack("t3"),
			testTrack("t4"), testTrack("t5"),
		},
	}
	if err := mgr.SaveQueueNow(saved); err != nil {
		t.Fatalf("SaveQueueNow failed: %v", err)
	}

	q := playlist.NewQueue()
	RestoreQueue(mgr, q)

	if !q.Shuffle() {
		t.Error("Shuffle() = false, want true")
	}
	cur := q.Current()
	if cur == nil || cur.ID != "t3" {
		t.Errorf("Current() = %v, want t3", cur)
	}
}

func TestRestoreOptions_AppliesSavedSettings(t *testing.T) {
	mgr := openStateManager(t)

	err := mgr.SavePlayer(state.PlayerState{Volume: 0.4, PreferredQuality: "high"})
	if err != nil {
		t.Fatalf("SavePlayer failed: %v", err)
	}

	opts := Options{Volume: 1.0, PreferredQuality: "auto"}
	RestoreOptions(mgr, &opts)

	if opts.Volume != 0.4 {
		t.Errorf("Volume = %v, want 0.4", opts.Volume)
	}
	if opts.PreferredQuality != "high" {
		t.Errorf("PreferredQuality = %q, want high", opts.PreferredQuality)
	}
}

func TestPersistSession_FlushSavesQueueAndPlayer(t *testing.T) {
	mgr := openStateManager(t)
	svc := newTestEngine(t, Deps{}, Options{Online: true},
		testTrack("t1"), testTrack("t2"), testTrack("t3"))

	stop := PersistSession(svc, mgr, nil)

	if err := svc.PlayAt(1); err != nil {
		t.Fatalf("PlayAt failed: %v", err)
	}
	if err := svc.SetVolume(0.6); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}
	svc.SetRepeatMode(playlist.RepeatAll)

	stop()

	qs, err := mgr.GetQueue()
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if len(qs.Tracks) != 3 {
		t.Fatalf("saved %d tracks, want 3", len(qs.Tracks))
	}
	if qs.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", qs.CurrentIndex)
	}
	if playlist.RepeatMode(qs.RepeatMode) != playlist.RepeatAll {
		t.Errorf("RepeatMode = %d, want RepeatAll", qs.RepeatMode)
	}

	ps, err := mgr.GetPlayer()
	if err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if ps.Volume != 0.6 {
		t.Errorf("Volume = %v, want 0.6", ps.Volume)
	}
	if ps.LastTrackID != "t2" {
		t.Errorf("LastTrackID = %q, want t2", ps.LastTrackID)
	}
}

func TestPersistSession_StopIsIdempotent(t *testing.T) {
	mgr := openStateManager(t)
	svc := newTestEngine(t, Deps{}, Options{Online: true}, testTrack("t1"))

	stop := PersistSession(svc, mgr, nil)
	stop()
	stop()
}
