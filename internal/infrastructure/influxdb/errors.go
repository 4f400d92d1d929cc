package influxdb

import "errors"

// Sentinel errors, matchable with errors.Is. Callers treat ErrDisabled
// as "skip telemetry", not as a failure.
var (
	// ErrNotConnected: the client has been closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed: the server could not be reached at startup.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled: the influxdb config section is disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
