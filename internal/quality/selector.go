package quality

import (
	"sync"
	"time"
)

const historyCapacity = 20

// SwitchReason explains why a profile switch was requested.
type SwitchReason string

const (
	ReasonBandwidth SwitchReason = "bandwidth"
	ReasonStall     SwitchReason = "stall"
	ReasonUpgrade   SwitchReason = "upgrade"
	ReasonUser      SwitchReason = "user"
)

// Switch records one accepted profile change.
type Switch struct {
	At      time.Time
	Profile Profile
	Reason  SwitchReason
}

// SelectorConfig holds the tunable selection thresholds. The tier
// thresholds and headroom values are empirical, not hard law.
type SelectorConfig struct {
	// TierThresholdsKbps maps bandwidth to a rung on the profile ladder:
	// below the first value the lowest tier is picked, below the second the
	// next, and so on; at or above the last value the highest tier wins.
	TierThresholdsKbps []float64

	// MinSwitchInterval is the cool-down between accepted switches.
	MinSwitchInterval time.Duration

	// UpgradeHeadroom is the maximum fraction of the bandwidth estimate a
	// candidate bitrate may use for an upgrade to be allowed.
	UpgradeHeadroom float64

	// UpgradeBufferHealth is the minimum buffer health (0..1) required
	// before an upgrade is considered.
	UpgradeBufferHealth float64
}

// DefaultSelectorConfig returns the stock thresholds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		TierThresholdsKbps:  []float64{200, 500, 1000},
		MinSwitchInterval:   5 * time.Second,
		UpgradeHeadroom:     2.0 / 3.0,
		UpgradeBufferHealth: 0.8,
	}
}

// Selector picks quality profiles and enforces the switch cool-down.
type Selector struct {
	mu         sync.Mutex
	cfg        SelectorConfig
	lastSwitch time.Time
	history    []Switch
	now        func() time.Time // test seam
}

// NewSelector creates a Selector with the given config.
func NewSelector(cfg SelectorConfig) *Selector {
	if len(cfg.TierThresholdsKbps) == 0 {
		cfg.TierThresholdsKbps = DefaultSelectorConfig().TierThresholdsKbps
	}
	if cfg.MinSwitchInterval <= 0 {
		cfg.MinSwitchInterval = DefaultSelectorConfig().MinSwitchInterval
	}
	return &Selector{cfg: cfg, now: time.Now}
}

// Select returns the profile to use for the given bandwidth estimate.
// An explicit preference naming a known profile always wins; otherwise the
// bandwidth is mapped onto the ladder via the tier thresholds. The profile
// list must be ordered ascending by bitrate.
func (s *Selector) Select(profiles []Profile, bandwidthKbps float64, preference string) Profile {
	if len(profiles) == 0 {
		return Profile{}
	}
	if preference != "" && preference != "auto" {
		if p := ByLabel(profiles, preference); p != nil {
			return *p
		}
	}

	tier := len(s.cfg.TierThresholdsKbps)
	for i, threshold := range s.cfg.TierThresholdsKbps {
		if bandwidthKbps < threshold {
			tier = i
			break
		}
	}
	if tier >= len(profiles) {
		tier = len(profiles) - 1
	}
	return profiles[tier]
}

// ConsiderSwitch requests a change from current to candidate. Switches
// inside the cool-down window are silently dropped. Returns true when the
// switch was accepted and recorded.
func (s *Selector) ConsiderSwitch(current, candidate Profile, reason SwitchReason) bool {
	if current.Label == candidate.Label {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastSwitch.IsZero() && now.Sub(s.lastSwitch) < s.cfg.MinSwitchInterval {
		return false
	}
	s.lastSwitch = now

	if len(s.history) == historyCapacity {
		copy(s.history, s.history[1:])
		s.history = s.history[:historyCapacity-1]
	}
	s.history = append(s.history, Switch{At: now, Profile: candidate, Reason: reason})
	return true
}

// ShouldUpgrade reports whether moving to candidate is justified by the
// current buffer health and bandwidth estimate: the buffer must be healthy
// and the candidate must leave headroom below the estimate.
func (s *Selector) ShouldUpgrade(candidate Profile, bufferHealth, bandwidthKbps float64) bool {
	if bufferHealth <= s.cfg.UpgradeBufferHealth {
		return false
	}
	return float64(candidate.BitrateKbps) <= bandwidthKbps*s.cfg.UpgradeHeadroom
}

// Downgrade returns the next profile below current on the ladder, or
// current itself when already at the bottom.
func Downgrade(profiles []Profile, current Profile) Profile {
	for i := range profiles {
		if profiles[i].Label == current.Label {
			if i == 0 {
				return current
			}
			return profiles[i-1]
		}
	}
	if len(profiles) > 0 {
		return profiles[0]
	}
	return current
}

// History returns a copy of the recorded switches, oldest first.
func (s *Selector) History() []Switch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Switch, len(s.history))
	copy(out, s.history)
	return out
}
