// Package quality picks the active streaming quality profile from the
// current bandwidth estimate and debounces profile switches.
package quality

// Profile describes a named bitrate/sample-rate/channel configuration a
// track can be streamed or downloaded at.
type Profile struct {
	Label       string
	BitrateKbps int
	SampleRate  int
	Channels    int
}

// DefaultProfiles is the built-in profile ladder, ordered ascending by
// bitrate as the selector requires.
var DefaultProfiles = []Profile{
	{Label: "low", BitrateKbps: 96, SampleRate: 44100, Channels: 2},
	{Label: "normal", BitrateKbps: 160, SampleRate: 44100, Channels: 2},
	{Label: "high", BitrateKbps: 320, SampleRate: 44100, Channels: 2},
	{Label: "lossless", BitrateKbps: 1411, SampleRate: 44100, Channels: 2},
}

// ByLabel returns the profile with the given label, or nil if absent.
func ByLabel(profiles []Profile, label string) *Profile {
	for i := range profiles {
		if profiles[i].Label == label {
			return &profiles[i]
		}
	}
	return nil
}
