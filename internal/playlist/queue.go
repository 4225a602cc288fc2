package playlist

import "math/rand/v2"

// RepeatMode defines how navigation behaves at queue boundaries.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "Off"
	case RepeatAll:
		return "All"
	case RepeatOne:
		return "One"
	default:
		return "Unknown"
	}
}

// Queue wraps a Playlist with a play position, shuffle view and repeat
// mode. The canonical track order never changes when shuffle toggles; the
// shuffle view is a derived permutation over it.
type Queue struct {
	playlist *Playlist
	order    []int // view index -> canonical index; identity when not shuffled
	pos      int   // index into order, -1 if nothing playing
	shuffle  bool
	repeat   RepeatMode
}

// NewQueue creates a new empty queue.
func NewQueue() *Queue {
	return &Queue{
		playlist: NewPlaylist(),
		pos:      -1,
	}
}

// Current returns the currently playing track, or nil if none.
func (q *Queue) Current() *Track {
	if q.pos < 0 || q.pos >= len(q.order) {
		return nil
	}
	return q.playlist.Track(q.order[q.pos])
}

// CurrentIndex returns the play position in view order (-1 if none).
func (q *Queue) CurrentIndex() int {
	return q.pos
}

// Next advances the position according to the repeat mode and returns the
// new current track. Returns (nil, false) at the end boundary with
// RepeatOff; the position is left unchanged in that case.
func (q *Queue) Next() (*Track, bool) {
	if q.playlist.Len() == 0 || q.pos < 0 {
		return nil, false
	}
	switch q.repeat {
	case RepeatOne:
		return q.Current(), true
	case RepeatAll:
		q.pos = (q.pos + 1) % len(q.order)
		return q.Current(), true
	default:
		if q.pos+1 >= len(q.order) {
			return nil, false
		}
		q.pos++
		return q.Current(), true
	}
}

// Previous moves the position backwards according to the repeat mode.
// Returns (nil, false) at the start boundary with RepeatOff.
func (q *Queue) Previous() (*Track, bool) {
	if q.playlist.Len() == 0 || q.pos < 0 {
		return nil, false
	}
	switch q.repeat {
	case RepeatOne:
		return q.Current(), true
	case RepeatAll:
		q.pos = (q.pos - 1 + len(q.order)) % len(q.order)
		return q.Current(), true
	default:
		if q.pos == 0 {
			return nil, false
		}
		q.pos--
		return q.Current(), true
	}
}

// HasNext reports whether Next would advance.
func (q *Queue) HasNext() bool {
	if q.playlist.Len() == 0 || q.pos < 0 {
		return false
	}
	if q.repeat != RepeatOff {
		return true
	}
	return q.pos+1 < len(q.order)
}

// PeekNext returns the track Next would land on without moving the
// position. Returns nil when there is no next track.
func (q *Queue) PeekNext() *Track {
	if q.playlist.Len() == 0 || q.pos < 0 {
		return nil
	}
	switch q.repeat {
	case RepeatOne:
		return q.Current()
	case RepeatAll:
		return q.playlist.Track(q.order[(q.pos+1)%len(q.order)])
	default:
		if q.pos+1 >= len(q.order) {
			return nil
		}
		return q.playlist.Track(q.order[q.pos+1])
	}
}

// JumpTo sets the position to the given view index.
// Returns the track at that position, or nil if invalid.
func (q *Queue) JumpTo(index int) *Track {
	if index < 0 || index >= len(q.order) {
		return nil
	}
	q.pos = index
	return q.Current()
}

// Add appends tracks without changing playback. Added tracks go to the end
// of the view order as well.
func (q *Queue) Add(tracks ...Track) {
	base := q.playlist.Len()
	q.playlist.Add(tracks...)
	for i := range tracks {
		q.order = append(q.order, base+i)
	}
	if q.pos < 0 && q.playlist.Len() > 0 {
		q.pos = 0
	}
}

// Replace clears the queue, adds tracks, and sets the position to 0.
// A fresh shuffle permutation is drawn when shuffle is on.
func (q *Queue) Replace(tracks ...Track) *Track {
	q.playlist.Clear()
	q.order = q.order[:0]
	q.pos = -1
	if len(tracks) == 0 {
		return nil
	}
	q.playlist.Add(tracks...)
	q.order = identity(len(tracks))
	if q.shuffle {
		rand.Shuffle(len(q.order), func(i, j int) {
			q.order[i], q.order[j] = q.order[j], q.order[i]
		})
	}
	q.pos = 0
	return q.Current()
}

// RemoveAt removes the track at the given view index, adjusting the
// position and permutation. Returns false if the index is invalid.
func (q *Queue) RemoveAt(index int) bool {
	if index < 0 || index >= len(q.order) {
		return false
	}
	canonical := q.order[index]
	if !q.playlist.Remove(canonical) {
		return false
	}

	q.order = append(q.order[:index], q.order[index+1:]...)
	for i, c := range q.order {
		if c > canonical {
			q.order[i] = c - 1
		}
	}

	if q.pos > index {
		q.pos--
	} else if q.pos == index && q.pos >= len(q.order) {
		q.pos = len(q.order) - 1
	}
	return true
}

// Clear removes all tracks and resets playback.
func (q *Queue) Clear() {
	q.playlist.Clear()
	q.order = q.order[:0]
	q.pos = -1
}

// Tracks returns all tracks in canonical order.
func (q *Queue) Tracks() []Track {
	return q.playlist.Tracks()
}

// ViewTracks returns all tracks in the current view order.
func (q *Queue) ViewTracks() []Track {
	out := make([]Track, 0, len(q.order))
	for _, c := range q.order {
		if t := q.playlist.Track(c); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return q.playlist.Len()
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.playlist.Len() == 0
}

// Shuffle returns whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// SetShuffle toggles the shuffle view. Enabling draws a Fisher-Yates
// permutation of the canonical order and remaps the position to the
// current track's slot in it. Disabling restores canonical order and
// re-locates the position by track identity, so playback continuity
// survives the toggle.
func (q *Queue) SetShuffle(enabled bool) {
	if enabled == q.shuffle {
		return
	}
	current := q.Current()
	q.shuffle = enabled

	n := q.playlist.Len()
	q.order = identity(n)
	if enabled {
		rand.Shuffle(n, func(i, j int) {
			q.order[i], q.order[j] = q.order[j], q.order[i]
		})
	}

	if current == nil {
		if n > 0 && q.pos >= 0 {
			q.pos = 0
		}
		return
	}
	q.pos = q.locate(current.ID)
}

// ToggleShuffle flips shuffle and returns the new value.
func (q *Queue) ToggleShuffle() bool {
	q.SetShuffle(!q.shuffle)
	return q.shuffle
}

// RepeatMode returns the current repeat mode.
func (q *Queue) RepeatMode() RepeatMode {
	return q.repeat
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.repeat = mode
}

// CycleRepeatMode advances Off -> All -> One -> Off and returns the new mode.
func (q *Queue) CycleRepeatMode() RepeatMode {
	switch q.repeat {
	case RepeatOff:
		q.repeat = RepeatAll
	case RepeatAll:
		q.repeat = RepeatOne
	default:
		q.repeat = RepeatOff
	}
	return q.repeat
}

// locate returns the view index of the track with the given id, or 0.
func (q *Queue) locate(id string) int {
	for view, canonical := range q.order {
		if t := q.playlist.Track(canonical); t != nil && t.ID == id {
			return view
		}
	}
	return 0
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
