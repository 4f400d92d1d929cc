package cloud

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the client. Callers use errors.Is.
var (
	// ErrInvalidCredentials indicates the backend rejected the configured
	// email/password at login, or returned no token.
	ErrInvalidCredentials = errors.New("cloud: invalid credentials")

	// ErrAuthExpired indicates the session token was rejected and a single
	// automatic re-login also failed to produce an accepted token.
	ErrAuthExpired = errors.New("cloud: session expired")

	// ErrUnreachable indicates the backend could not be reached or kept
	// returning server errors after retries were exhausted.
	ErrUnreachable = errors.New("cloud: service unreachable")

	// ErrRateLimited indicates the backend kept returning 429 after retries
	// were exhausted. A persistent cooldown window is active.
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrDeviceBridgeUnavailable indicates the cloud accepted the request
	// but the target unit's local bridge is offline or busy (422/423 on a
	// command endpoint). Not retried: the device will not hear the command.
	ErrDeviceBridgeUnavailable = errors.New("cloud: device bridge unavailable")

	// ErrNotAuthenticated indicates a data call before a successful Login.
	ErrNotAuthenticated = errors.New("cloud: not authenticated")
)

// HTTPError carries a non-retryable HTTP failure back to the caller.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("cloud: unexpected status %d: %s", e.Status, e.Body)
}

// outcome classifies an HTTP response status for the retry loop.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeAuthExpired
	outcomeBridgeUnavailable
	outcomeFatal
)

// classify maps a status code to a retry outcome. The bridge-unavailable
// statuses only apply on command endpoints; elsewhere 422/423 are fatal.
func classify(status int, command bool) outcome {
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == 401:
		return outcomeAuthExpired
	case status == 429, status == 500, status == 502, status == 503, status == 504:
		return outcomeRetryable
	case command && (status == 422 || status == 423):
		return outcomeBridgeUnavailable
	default:
		return outcomeFatal
	}
}
