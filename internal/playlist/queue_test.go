package playlist

import (
	"testing"
	"time"
)

func makeTracks(ids ...string) []Track {
	tracks := make([]Track, len(ids))
	for i, id := range ids {
		tracks[i] = Track{
			ID:        id,
			SourceURI: "https://cdn.example.com/" + id,
			Title:     "Track " + id,
			Duration:  3 * time.Minute,
		}
	}
	return tracks
}

func TestNewQueue_Empty(t *testing.T) {
	q := NewQueue()

	if !q.IsEmpty() {
		t.Error("new queue should be empty")
	}
	if q.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex() = %d, want -1", q.CurrentIndex())
	}
	if q.Current() != nil {
		t.Error("Current() should be nil on empty queue")
	}
}

func TestQueue_AddSetsInitialPosition(t *testing.T) {
	q := NewQueue()
	q.Add(makeTracks("a", "b")...)

	if q.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex() = %d, want 0", q.CurrentIndex())
	}
	if got := q.Current(); got == nil || got.ID != "a" {
		t.Errorf("Current() = %v, want track a", got)
	}
}

func TestQueue_Next_RepeatOff_StopsAtBoundary(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c")...)
	q.SetRepeatMode(RepeatOff)
	q.JumpTo(2)

	track, ok := q.Next()
	if ok || track != nil {
		t.Errorf("Next() at last index = (%v, %v), want (nil, false)", track, ok)
	}
	if q.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex() = %d, want unchanged 2", q.CurrentIndex())
	}
}

func TestQueue_Next_RepeatAll_Wraps(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c")...)
	q.SetRepeatMode(RepeatAll)

	for i := 0; i < 3; i++ {
		if _, ok := q.Next(); !ok {
			t.Fatalf("Next() call %d failed", i+1)
		}
	}
	if q.CurrentIndex() != 0 {
		t.Errorf("after 3x Next() from 0, CurrentIndex() = %d, want 0 (wrap)", q.CurrentIndex())
	}
}

func TestQueue_Next_RepeatOne_ReplaysSameIndex(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b")...)
	q.SetRepeatMode(RepeatOne)
	q.JumpTo(1)

	track, ok := q.Next()
	if !ok || track == nil || track.ID != "b" {
		t.Errorf("Next() with RepeatOne = %v, want track b again", track)
	}
	if q.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", q.CurrentIndex())
	}
}

func TestQueue_Previous_RepeatOff_StopsAtStart(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b")...)

	if _, ok := q.Previous(); ok {
		t.Error("Previous() at index 0 should report no previous")
	}
}

func TestQueue_Previous_RepeatAll_WrapsBackwards(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c")...)
	q.SetRepeatMode(RepeatAll)

	track, ok := q.Previous()
	if !ok || track.ID != "c" {
		t.Errorf("Previous() from 0 = %v, want track c", track)
	}
}

func TestQueue_ShuffleTogglePreservesCurrentTrack(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c", "d", "e")...)
	q.JumpTo(2)
	want := q.Current().ID

	q.SetShuffle(true)
	if got := q.Current(); got == nil || got.ID != want {
		t.Fatalf("after shuffle on, Current() = %v, want %s", got, want)
	}

	q.SetShuffle(false)
	if got := q.Current(); got == nil || got.ID != want {
		t.Fatalf("after shuffle off, Current() = %v, want %s", got, want)
	}
	if q.CurrentIndex() != 2 {
		t.Errorf("canonical position = %d, want 2", q.CurrentIndex())
	}
}

func TestQueue_ShuffleViewIsPermutation(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c", "d", "e", "f")...)
	q.SetShuffle(true)

	seen := map[string]bool{}
	for _, tr := range q.ViewTracks() {
		seen[tr.ID] = true
	}
	if len(seen) != 6 {
		t.Errorf("shuffle view has %d distinct tracks, want 6", len(seen))
	}

	// Canonical order must be untouched.
	canonical := q.Tracks()
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if canonical[i].ID != id {
			t.Fatalf("canonical order mutated: got %s at %d, want %s", canonical[i].ID, i, id)
		}
	}
}

func TestQueue_ShuffleWalksAllTracks(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c", "d")...)
	q.SetShuffle(true)
	q.SetRepeatMode(RepeatOff)

	seen := map[string]bool{q.Current().ID: true}
	for {
		track, ok := q.Next()
		if !ok {
			break
		}
		seen[track.ID] = true
	}
	if len(seen) != 4 {
		t.Errorf("walked %d distinct tracks, want 4", len(seen))
	}
}

func TestQueue_RemoveAt(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b", "c")...)
	q.JumpTo(2)

	if !q.RemoveAt(0) {
		t.Fatal("RemoveAt(0) failed")
	}
	if got := q.Current(); got == nil || got.ID != "c" {
		t.Errorf("Current() after removal = %v, want c", got)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestQueue_RemoveCurrentClampsPosition(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b")...)
	q.JumpTo(1)

	if !q.RemoveAt(1) {
		t.Fatal("RemoveAt(1) failed")
	}
	if q.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex() = %d, want 0", q.CurrentIndex())
	}
}

func TestQueue_CycleRepeatMode(t *testing.T) {
	q := NewQueue()

	modes := []RepeatMode{RepeatAll, RepeatOne, RepeatOff}
	for _, want := range modes {
		if got := q.CycleRepeatMode(); got != want {
			t.Errorf("CycleRepeatMode() = %v, want %v", got, want)
		}
	}
}

func TestQueue_ClearResetsPosition(t *testing.T) {
	q := NewQueue()
	q.Replace(makeTracks("a", "b")...)
	q.Clear()

	if q.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex() after Clear = %d, want -1", q.CurrentIndex())
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty after Clear")
	}
}
