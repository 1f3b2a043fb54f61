package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrNotConnected is returned when writing without an open link.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrInvalidURL is returned when a connection URL cannot be parsed.
	ErrInvalidURL = errors.New("transport: invalid connection URL")

	// ErrConnectionFailed is returned when a dial or open fails.
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrWriteFailed is returned when a write to the link fails.
	ErrWriteFailed = errors.New("transport: write failed")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("transport: client closed")
)
