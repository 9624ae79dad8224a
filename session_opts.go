package osio

import (
	"log/slog"

	"github.com/osio-dev/osio/store"
)

// Defaults for session configuration. Sizes are in bytes.
const (
	// DefaultBufferSize is the initial cache buffer capacity of a stream.
	DefaultBufferSize = 64 << 10

	// DefaultMaxBufferSize is the cache ceiling: the capacity a stream's
	// buffer may grow to. Transfers whose doubled size would exceed it move
	// directly against the caller's buffer instead.
	DefaultMaxBufferSize = 2 << 20

	// DefaultMaxStreams is the maximum number of concurrently open streams
	// per session.
	DefaultMaxStreams = 20
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for remote-call and cache-transition
// debug logging. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithStore registers a store for a scheme, so names of the form
// scheme://rest open against it. Registering a scheme twice replaces the
// earlier store.
func WithStore(scheme string, st store.Store) Option {
	return func(s *Session) {
		s.stores[scheme] = st
	}
}

// WithDefaultStore sets the store used for names without a scheme.
// The default is the local filesystem.
func WithDefaultStore(st store.Store) Option {
	return func(s *Session) {
		s.fallback = st
	}
}

// WithBufferSize sets the initial cache buffer capacity for new streams.
// Values < 1 are ignored.
func WithBufferSize(n int) Option {
	return func(s *Session) {
		if n >= 1 {
			s.bufSize = n
		}
	}
}

// WithMaxBufferSize sets the cache ceiling for new streams. Values below
// the initial buffer size are raised to it.
func WithMaxBufferSize(n int) Option {
	return func(s *Session) {
		s.maxBufSize = n
	}
}

// WithMaxStreams bounds the number of concurrently open streams.
// Values < 1 are ignored.
func WithMaxStreams(n int) Option {
	return func(s *Session) {
		if n >= 1 {
			s.maxStreams = n
		}
	}
}
