package errmsg

import (
	"errors"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		op       Op
		err      error
		expected string
	}{
		{
			name:     "nil error returns empty string",
			op:       OpDownloadQueue,
			err:      nil,
			expected: "",
		},
		{
			name:     "formats error with operation",
			op:       OpDownloadQueue,
			err:      errors.New("network error"),
			expected: "Failed to queue download: network error",
		},
		{
			name:     "storage operation",
			op:       OpStorageEvict,
			err:      errors.New("nothing to evict"),
			expected: "Failed to free offline storage: nothing to evict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.op, tt.err); got != tt.expected {
				t.Errorf("Format() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatWith(t *testing.T) {
	err := errors.New("no such track")

	got := FormatWith(OpTrackLoad, "tr-9", err)
	want := "Failed to load track 'tr-9': no such track"
	if got != want {
		t.Errorf("FormatWith() = %q, want %q", got, want)
	}

	if FormatWith(OpTrackLoad, "", err) != Format(OpTrackLoad, err) {
		t.Error("empty context should fall back to Format")
	}

	if FormatWith(OpTrackLoad, "tr-9", nil) != "" {
		t.Error("nil error should return empty string")
	}
}
