package playback

import (
	"time"

	"github.com/lcourbon/cadence/internal/buffer"
	"github.com/lcourbon/cadence/internal/sink"
)

// SinkPlayhead adapts a sink to the buffer monitor's playhead view.
type SinkPlayhead struct {
	Sink sink.Sink
}

func (p SinkPlayhead) Position() time.Duration {
	return p.Sink.Position()
}

func (p SinkPlayhead) BufferedRanges() []buffer.Range {
	rs := p.Sink.BufferedRanges()
	out := make([]buffer.Range, len(rs))
	for i, r := range rs {
		out[i] = buffer.Range{Start: r.Start, End: r.End}
	}
	return out
}

// Verify SinkPlayhead implements the monitor's playhead contract.
var _ buffer.Playhead = SinkPlayhead{}
