package limitimer

import "errors"

// Domain errors for the Limitimer driver.
var (
	// ErrInvalidConfig is returned by New when the timing configuration is
	// missing or inconsistent. No device is created.
	ErrInvalidConfig = errors.New("limitimer: invalid device configuration")

	// ErrNoTransport is returned by New when no line source is supplied.
	ErrNoTransport = errors.New("limitimer: transport is required")

	// ErrUnknownAction is returned when an action name is not in the catalog.
	ErrUnknownAction = errors.New("limitimer: unknown action")

	// ErrUnsupportedAction is returned for catalog actions that have no wire
	// token. It is never swallowed.
	ErrUnsupportedAction = errors.New("limitimer: action not supported by device protocol")

	// ErrNotConnected is returned when a command is sent while the
	// transport is down.
	ErrNotConnected = errors.New("limitimer: transport not connected")

	// ErrQueueClosed is returned when work is submitted after shutdown began.
	ErrQueueClosed = errors.New("limitimer: inbound queue closed")

	// ErrNotStarted is returned by operations that need a running device.
	ErrNotStarted = errors.New("limitimer: device not started")
)
