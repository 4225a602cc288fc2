package playback

import (
	"testing"
	"time"
)

func TestSubscription_NonBlockingWhenFull(t *testing.T) {
	sub := newSubscription()

	// Fill the buffer and keep sending; sends must never block.
	for i := 0; i < eventBufferSize*2; i++ {
		sub.sendState(StateChange{Previous: StateIdle, Current: StatePlaying})
	}

	if len(sub.stateCh) != eventBufferSize {
		t.Errorf("buffered events = %d, want %d", len(sub.stateCh), eventBufferSize)
	}
}

func TestSubscription_DeliversInOrder(t *testing.T) {
	sub := newSubscription()

	sub.sendPosition(1 * time.Second)
	sub.sendPosition(2 * time.Second)
	sub.sendPosition(3 * time.Second)

	for want := 1; want <= 3; want++ {
		e := <-sub.PositionChanged
		if e.Position != time.Duration(want)*time.Second {
			t.Errorf("position = %v, want %ds", e.Position, want)
		}
	}
}

func TestSubscription_CloseSignalsDone(t *testing.T) {
	sub := newSubscription()
	sub.close()

	select {
	case <-sub.Done:
	default:
		t.Error("Done not closed")
	}
}
