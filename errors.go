package osio

import "errors"

var (
	// ErrClosed is returned by operations on a closed stream.
	ErrClosed = errors.New("stream is closed")

	// ErrStreamLimit is returned by Session.Open when the table of open
	// streams is full. Existing streams are never evicted; close one first.
	ErrStreamLimit = errors.New("too many open streams")

	// ErrUnknownScheme is returned by Session.Open for a name whose scheme
	// has no registered store.
	ErrUnknownScheme = errors.New("no store registered for scheme")
)
