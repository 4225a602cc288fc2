package fetch

import "errors"

// Sentinel errors for transfer outcomes.
var (
	// ErrTransferFailed indicates a network failure or timeout. Retryable.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrCancelled indicates an intentional abort. Never counted toward
	// retry budgets or bandwidth samples.
	ErrCancelled = errors.New("transfer cancelled")
)
