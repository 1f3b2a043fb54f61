package messenger

import "errors"

// Domain errors for the messenger bridge.
var (
	// ErrNoDevices is returned by New when no device is supplied.
	ErrNoDevices = errors.New("messenger: at least one device is required")

	// ErrDuplicateDevice is returned by New when two devices share a key.
	ErrDuplicateDevice = errors.New("messenger: duplicate device key")

	// ErrUnknownDevice is returned when a command names a device the bridge
	// does not manage.
	ErrUnknownDevice = errors.New("messenger: unknown device")
)
