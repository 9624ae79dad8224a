// Package mem provides an in-memory store, primarily for tests and examples.
package mem

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/osio-dev/osio/store"
)

// Store is an in-memory object store keyed by name.
// It is safe for concurrent use; individual objects are not.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put stores content under name, replacing any existing object.
func (s *Store) Put(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), content...)
}

// Get returns a copy of the named object's content.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}

// Open implements store.Store.
func (s *Store) Open(_ context.Context, name string, mode store.Mode) (store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.objects[name]
	switch {
	case mode == store.ModeWrite:
		s.objects[name] = nil
	case !exists:
		return nil, fmt.Errorf("open %q: %w", name, store.ErrNotExist)
	}

	return &object{store: s, name: name, mode: mode}, nil
}

// object is a positioned handle on one entry in the store map.
type object struct {
	store  *Store
	name   string
	mode   store.Mode
	pos    int64
	closed bool
}

func (o *object) Read(p []byte) (int, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	if !o.mode.Readable() {
		return 0, fmt.Errorf("read %q: mode %s", o.name, o.mode)
	}
	content, _ := o.store.Get(o.name)
	if o.pos >= int64(len(content)) {
		return 0, io.EOF
	}
	n := copy(p, content[o.pos:])
	o.pos += int64(n)
	return n, nil
}

func (o *object) Write(p []byte) (int, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	if !o.mode.Writable() {
		return 0, fmt.Errorf("write %q: %w", o.name, store.ErrReadOnly)
	}

	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	content := o.store.objects[o.name]
	if need := o.pos + int64(len(p)); need > int64(len(content)) {
		grown := make([]byte, need)
		copy(grown, content)
		content = grown
	}
	copy(content[o.pos:], p)
	o.store.objects[o.name] = content
	o.pos += int64(len(p))
	return len(p), nil
}

func (o *object) Seek(offset int64, whence int) (int64, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = o.pos + offset
	case io.SeekEnd:
		content, _ := o.store.Get(o.name)
		pos = int64(len(content)) + offset
	default:
		return 0, fmt.Errorf("seek %q: invalid whence %d", o.name, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek %q: negative position %d", o.name, pos)
	}
	o.pos = pos
	return pos, nil
}

func (o *object) Close() error {
	if o.closed {
		return store.ErrClosed
	}
	o.closed = true
	return nil
}
