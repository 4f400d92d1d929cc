// Package cloud implements the HTTP client for the DKN Airzone cloud API.
//
// The backend is a polling REST API with some unusual conventions that this
// package absorbs so callers never see them:
//
//   - Authentication travels as query parameters (format, user_email,
//     user_token) on every request, never as headers. The token comes from
//     POST /users/sign_in.
//   - Control writes go to POST /events as "modmaquina" machine parameters
//     (P1..P8); slower configuration fields go to PUT /devices/{id}, with a
//     per-field payload shape (scenary nested under "device", the sleep and
//     unoccupied fields flat at the root).
//   - The backend rate-limits aggressively. After any 429 the client keeps a
//     persistent cooldown window that delays subsequent requests up front,
//     doubling from 5s to a 60s cap on consecutive hits.
//
// # Error Handling
//
// Callers branch on sentinel errors (ErrAuthExpired, ErrRateLimited,
// ErrUnreachable, ErrDeviceBridgeUnavailable, ErrInvalidCredentials) via
// errors.Is. Non-retryable 4xx responses carry an *HTTPError with the status
// and body excerpt. Context cancellation is always returned as-is.
//
// # Session Lifecycle
//
// Login must succeed once before data calls. If the token expires mid-flight
// (401 on a data call) the client re-authenticates and retries exactly once;
// a second 401 surfaces ErrAuthExpired to the caller.
package cloud
