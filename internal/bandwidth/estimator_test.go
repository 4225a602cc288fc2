package bandwidth

import "testing"

func TestEstimate_NoSamples_UsesClassDefault(t *testing.T) {
	tests := []struct {
		name  string
		class NetworkClass
		want  float64
	}{
		{"unknown", ClassUnknown, 1000},
		{"slow 2g", ClassSlow2G, 50},
		{"3g", Class3G, 500},
		{"4g", Class4G, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.class)
			if got := e.Estimate(); got != tt.want {
				t.Errorf("Estimate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimate_SingleSample(t *testing.T) {
	e := New(ClassUnknown)
	e.RecordSample(800)

	if got := e.Estimate(); got != 800 {
		t.Errorf("Estimate() = %v, want 800", got)
	}
}

func TestEstimate_WeightsRecentSamplesMore(t *testing.T) {
	e := New(ClassUnknown)
	e.RecordSample(100)
	e.RecordSample(1000)

	// weights: 100*1 + 1000*2 over 3 = 700
	if got := e.Estimate(); got != 700 {
		t.Errorf("Estimate() = %v, want 700", got)
	}
}

func TestRecordSample_RingDropsOldest(t *testing.T) {
	e := New(ClassUnknown)
	for i := 0; i < 15; i++ {
		e.RecordSample(float64(100 + i))
	}

	if got := e.SampleCount(); got != 10 {
		t.Fatalf("SampleCount() = %d, want 10", got)
	}

	// Oldest five (100..104) dropped; estimate must be within remaining range.
	est := e.Estimate()
	if est < 105 || est > 114 {
		t.Errorf("Estimate() = %v, want within [105, 114]", est)
	}
}

func TestEstimate_AlwaysWithinSampleBounds(t *testing.T) {
	sequences := [][]float64{
		{500},
		{100, 200, 300},
		{1000, 50, 1000, 50},
		{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
		{2000, 1, 300, 870, 44, 900},
	}

	for _, seq := range sequences {
		e := New(ClassUnknown)
		for _, s := range seq {
			e.RecordSample(s)
		}
		// Bounds over the retained window only.
		start := 0
		if len(seq) > sampleCapacity {
			start = len(seq) - sampleCapacity
		}
		lo, hi := seq[start], seq[start]
		for _, s := range seq[start:] {
			lo = min(lo, s)
			hi = max(hi, s)
		}
		if est := e.Estimate(); est < lo || est > hi {
			t.Errorf("Estimate() = %v outside [%v, %v] for %v", est, lo, hi, seq)
		}
	}
}

func TestRecordSample_IgnoresNonPositive(t *testing.T) {
	e := New(ClassUnknown)
	e.RecordSample(0)
	e.RecordSample(-50)

	if got := e.SampleCount(); got != 0 {
		t.Errorf("SampleCount() = %d, want 0", got)
	}
}
