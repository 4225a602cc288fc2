// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Download operations
	OpDownloadQueue  Op = "queue download"
	OpDownloadRetry  Op = "retry download"
	OpDownloadCancel Op = "cancel download"
	OpDownloadList   Op = "list downloads"

	// Storage operations
	OpStorageOpen    Op = "open offline storage"
	OpStorageEvict   Op = "free offline storage"
	OpStorageCleanup Op = "clean up offline storage"
	OpStorageDelete  Op = "delete offline track"

	// Playback operations
	OpPlaybackStart Op = "start playback"
	OpPlaybackSeek  Op = "seek"
	OpTrackLoad     Op = "load track"

	// Queue operations
	OpQueueLoad Op = "load queue"
	OpQueueSave Op = "save queue"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
