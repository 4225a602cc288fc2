package playback

import "testing"

func TestState_String(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateLoading, "Loading"},
		{StateReady, "Ready"},
		{StatePlaying, "Playing"},
		{StatePaused, "Paused"},
		{StateEnded, "Ended"},
		{StateErrored, "Errored"},
		{State(99), "Unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}

func TestState_IsActive(t *testing.T) {
	active := []State{StateReady, StatePlaying, StatePaused}
	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%v.IsActive() = false, want true", s)
		}
	}
	inactive := []State{StateIdle, StateLoading, StateEnded, StateErrored}
	for _, s := range inactive {
		if s.IsActive() {
			t.Errorf("%v.IsActive() = true, want false", s)
		}
	}
}
