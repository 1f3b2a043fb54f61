package influxdb

import "errors"

// Sentinel errors returned by Connect, HealthCheck and the error callback.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "run without history".
	ErrDisabled = errors.New("influxdb: history disabled")

	// ErrConnectionFailed wraps the ping failure from Connect.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write errors delivered to the error
	// callback. Writes themselves never return errors.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
