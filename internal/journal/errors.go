package journal

import "errors"

var (
	// ErrInvalidEntry is returned when an entry lacks a device key or kind.
	ErrInvalidEntry = errors.New("journal: invalid entry")

	// ErrRecorderClosed is returned by Record after Run has returned.
	ErrRecorderClosed = errors.New("journal: recorder closed")

	// ErrBufferFull is returned by Record when the write buffer is full.
	// The entry is dropped.
	ErrBufferFull = errors.New("journal: buffer full")
)
