package playback

import (
	"log/slog"
	"sync"

	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/state"
)

// RestoreQueue fills q from the saved session. Missing or unreadable
// state leaves the queue untouched. Call before handing the queue to New.
func RestoreQueue(mgr *state.Manager, q *playlist.Queue) {
	saved, err := mgr.GetQueue()
	if err != nil || saved == nil || len(saved.Tracks) == 0 {
		return
	}
	q.Add(saved.Tracks...)
	if saved.CurrentIndex >= 0 && saved.CurrentIndex < q.Len() {
		q.JumpTo(saved.CurrentIndex)
	}
	q.SetRepeatMode(playlist.RepeatMode(saved.RepeatMode))
	q.SetShuffle(saved.Shuffle)
}

// RestoreOptions layers the saved player settings on top of opts.
func RestoreOptions(mgr *state.Manager, opts *Options) {
	saved, err := mgr.GetPlayer()
	if err != nil || saved == nil {
		return
	}
	opts.Volume = saved.Volume
	if saved.PreferredQuality != "" {
		opts.PreferredQuality = saved.PreferredQuality
	}
}

// PersistSession watches svc and saves the queue and player state as
// they change. Saving is best effort: failures are logged and playback
// is never interrupted. The returned stop function detaches the watcher
// and flushes a final snapshot.
func PersistSession(svc Service, mgr *state.Manager, log *slog.Logger) (stop func()) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	sub := svc.Subscribe()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-sub.Done:
				return
			case <-sub.QueueChanged:
				saveQueue(svc, mgr, log, false)
			case <-sub.ModeChanged:
				saveQueue(svc, mgr, log, false)
			case <-sub.TrackChanged:
				saveQueue(svc, mgr, log, false)
				savePlayer(svc, mgr, log)
			case <-sub.StateChanged:
				savePlayer(svc, mgr, log)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			saveQueue(svc, mgr, log, true)
			savePlayer(svc, mgr, log)
		})
	}
}

func queueSnapshot(svc Service) state.QueueState {
	snap := svc.Snapshot()
	return state.QueueState{
		CurrentIndex: snap.QueuePosition,
		RepeatMode:   int(snap.RepeatMode),
		Shuffle:      snap.Shuffle,
		Tracks:       snap.Queue,
	}
}

func saveQueue(svc Service, mgr *state.Manager, log *slog.Logger, flush bool) {
	qs := queueSnapshot(svc)
	if flush {
		if err := mgr.SaveQueueNow(qs); err != nil {
			log.Warn("failed to save queue state", "err", err)
		}
		return
	}
	mgr.SaveQueue(qs)
}

func savePlayer(svc Service, mgr *state.Manager, log *slog.Logger) {
	cur, err := mgr.GetPlayer()
	if err != nil || cur == nil {
		cur = &state.PlayerState{Volume: 1.0, PreferredQuality: "auto"}
	}
	snap := svc.Snapshot()
	cur.Volume = snap.Volume
	cur.Muted = snap.Muted
	if snap.CurrentTrack != nil {
		cur.LastTrackID = snap.CurrentTrack.ID
		cur.LastPositionSeconds = snap.Position.Seconds()
	}
	if err := mgr.SavePlayer(*cur); err != nil {
		log.Warn("failed to save player state", "err", err)
	}
}
