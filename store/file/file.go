// Package file provides a local filesystem store.
//
// It is the session default, giving paths without a scheme the same behavior
// plain stdio would: cached streams over ordinary files. Remote round trips
// are just syscalls here, but the cache semantics are identical.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/osio-dev/osio/store"
)

// Store opens objects as files under an optional root directory.
type Store struct {
	root string
}

// Option configures a Store.
type Option func(*Store)

// WithRoot resolves all object names relative to dir.
func WithRoot(dir string) Option {
	return func(s *Store) {
		s.root = dir
	}
}

// New returns a filesystem store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open implements store.Store.
func (s *Store) Open(_ context.Context, name string, mode store.Mode) (store.Object, error) {
	path := name
	if s.root != "" {
		path = s.root + string(os.PathSeparator) + name
	}

	var flag int
	switch mode {
	case store.ModeRead:
		flag = os.O_RDONLY
	case store.ModeWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case store.ModeReadWrite:
		flag = os.O_RDWR
	default:
		return nil, fmt.Errorf("open %q: %w", name, store.ErrInvalidMode)
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %q: %w", name, store.ErrNotExist)
		}
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return f, nil
}
