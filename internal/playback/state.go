package playback

// State represents the playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded and playable.
func (s State) IsActive() bool {
	return s == StateReady || s == StatePlaying || s == StatePaused
}
