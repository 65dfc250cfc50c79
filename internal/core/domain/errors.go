package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress indicates a sync of the same source is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSourceHalted indicates automated cycles are stopped after a critical error
	ErrSourceHalted = errors.New("source halted")

	// ErrSourceDisabled indicates the source is disabled in configuration
	ErrSourceDisabled = errors.New("source disabled")

	// ErrUnsupportedKind indicates a source kind has no handler
	ErrUnsupportedKind = errors.New("unsupported source kind")

	// ErrUnsupportedContent indicates no extractor accepts the content type
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrRateLimited indicates the remote side throttled the request
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a failure that may succeed when retried
	ErrTransient = errors.New("transient failure")

	// ErrServiceUnavailable indicates a dependency could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUnauthorized indicates missing or invalid API credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates an API token is past its expiry
	ErrTokenExpired = errors.New("token expired")
)

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServiceUnavailable)
}
