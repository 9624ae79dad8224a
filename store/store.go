// Package store defines the remote primitives the stream cache is built on.
//
// A Store opens named objects in a backend; an Object is a positioned handle
// on one of them. The cache layer above issues the minimum number of calls
// against these interfaces, so implementations should assume every call is a
// round trip and not add their own buffering.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Mode selects how an object is opened.
type Mode int

const (
	// ModeRead opens an existing object for reading.
	ModeRead Mode = iota
	// ModeWrite opens an object for writing, creating it if absent and
	// truncating it if present.
	ModeWrite
	// ModeReadWrite opens an existing object for reading and writing.
	ModeReadWrite
)

// String returns the stdio-style mode string.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeReadWrite:
		return "r+"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Writable reports whether the mode permits writes.
func (m Mode) Writable() bool {
	return m == ModeWrite || m == ModeReadWrite
}

// Readable reports whether the mode permits reads.
func (m Mode) Readable() bool {
	return m == ModeRead || m == ModeReadWrite
}

// ParseMode parses a stdio-style mode string ("r", "w", "r+").
// Unrecognized trailing characters (e.g. the "b" in "rb") are ignored,
// matching fopen conventions.
func ParseMode(s string) (Mode, error) {
	switch {
	case strings.HasPrefix(s, "r+"):
		return ModeReadWrite, nil
	case strings.HasPrefix(s, "r"):
		return ModeRead, nil
	case strings.HasPrefix(s, "w"):
		return ModeWrite, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Sentinel errors shared by store implementations.
var (
	// ErrNotExist is returned when an object does not exist.
	ErrNotExist = errors.New("object does not exist")

	// ErrReadOnly is returned by writes against a read-only store or handle.
	ErrReadOnly = errors.New("object is read-only")

	// ErrInvalidMode is returned for unparseable or unsupported open modes.
	ErrInvalidMode = errors.New("invalid open mode")

	// ErrClosed is returned for operations on a closed object.
	ErrClosed = errors.New("object is closed")
)

// Store opens objects in a backend.
//
// The context scopes the open call and, for backends that issue requests
// lazily, the lifetime of the returned handle. Cancellation of an individual
// in-flight transfer is not supported; once issued, a call runs to
// completion or failure.
type Store interface {
	Open(ctx context.Context, name string, mode Mode) (Object, error)
}

// Object is a positioned handle on a single remote object.
//
// Read and Write advance the remote position; Seek repositions it. An Object
// is not safe for concurrent use. Close releases the handle; no method may
// be called after Close.
type Object interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}
