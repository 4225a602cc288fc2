// Package bandwidth maintains a rolling estimate of observed network
// throughput, fed by completed transfers.
package bandwidth

import "sync"

// NetworkClass is a coarse hint about the current connection, used only
// when no samples have been observed yet.
type NetworkClass int

const (
	ClassUnknown NetworkClass = iota
	ClassSlow2G
	Class2G
	Class3G
	Class4G
)

// Default estimates in kbps per network class, used before any sample exists.
var classDefaults = map[NetworkClass]float64{
	ClassUnknown: 1000,
	ClassSlow2G:  50,
	Class2G:      100,
	Class3G:      500,
	Class4G:      2000,
}

const sampleCapacity = 10

// Estimator keeps a bounded ring of throughput samples and produces a
// recency-weighted estimate. Safe for concurrent use: fetch workers record
// samples while the playback loop reads the estimate.
type Estimator struct {
	mu      sync.Mutex
	samples []float64 // oldest first, len <= sampleCapacity
	class   NetworkClass
}

// New creates an Estimator with the given network-class hint.
func New(class NetworkClass) *Estimator {
	return &Estimator{
		samples: make([]float64, 0, sampleCapacity),
		class:   class,
	}
}

// RecordSample appends a throughput observation in kbps, dropping the
// oldest sample once the ring is full. Non-positive rates are ignored.
func (e *Estimator) RecordSample(rateKbps float64) {
	if rateKbps <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) == sampleCapacity {
		copy(e.samples, e.samples[1:])
		e.samples = e.samples[:sampleCapacity-1]
	}
	e.samples = append(e.samples, rateKbps)
}

// Estimate returns the current bandwidth estimate in kbps: a linearly
// recency-weighted mean where sample i (0 = oldest) has weight i+1.
// With no samples it falls back to the network-class default.
func (e *Estimator) Estimate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) == 0 {
		return classDefaults[e.class]
	}
	var weighted, weights float64
	for i, s := range e.samples {
		w := float64(i + 1)
		weighted += s * w
		weights += w
	}
	return weighted / weights
}

// SampleCount returns the number of samples currently held.
func (e *Estimator) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}
