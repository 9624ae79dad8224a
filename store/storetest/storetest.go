// Package storetest instruments stores for tests.
//
// Recording wraps any Store and counts the remote calls made through it, so
// tests can assert that an operation was satisfied locally. Failure
// injection fields make every call of a kind fail until cleared.
package storetest

import (
	"context"
	"sync/atomic"

	"github.com/osio-dev/osio/store"
)

// Recording wraps a Store and counts calls against its objects.
type Recording struct {
	backend store.Store

	Opens  atomic.Int64
	Reads  atomic.Int64
	Writes atomic.Int64
	Seeks  atomic.Int64
	Closes atomic.Int64

	// When non-nil, the corresponding calls fail with the given error.
	FailOpen  error
	FailRead  error
	FailWrite error
	FailSeek  error
	FailClose error
}

// Wrap returns a Recording around backend.
func Wrap(backend store.Store) *Recording {
	return &Recording{backend: backend}
}

// Reset zeroes all counters.
func (r *Recording) Reset() {
	r.Opens.Store(0)
	r.Reads.Store(0)
	r.Writes.Store(0)
	r.Seeks.Store(0)
	r.Closes.Store(0)
}

// RemoteCalls returns the total number of read, write, and seek calls.
func (r *Recording) RemoteCalls() int64 {
	return r.Reads.Load() + r.Writes.Load() + r.Seeks.Load()
}

// Open implements store.Store.
func (r *Recording) Open(ctx context.Context, name string, mode store.Mode) (store.Object, error) {
	r.Opens.Add(1)
	if r.FailOpen != nil {
		return nil, r.FailOpen
	}
	obj, err := r.backend.Open(ctx, name, mode)
	if err != nil {
		return nil, err
	}
	return &object{rec: r, obj: obj}, nil
}

type object struct {
	rec *Recording
	obj store.Object
}

func (o *object) Read(p []byte) (int, error) {
	o.rec.Reads.Add(1)
	if err := o.rec.FailRead; err != nil {
		return 0, err
	}
	return o.obj.Read(p)
}

func (o *object) Write(p []byte) (int, error) {
	o.rec.Writes.Add(1)
	if err := o.rec.FailWrite; err != nil {
		return 0, err
	}
	return o.obj.Write(p)
}

func (o *object) Seek(offset int64, whence int) (int64, error) {
	o.rec.Seeks.Add(1)
	if err := o.rec.FailSeek; err != nil {
		return 0, err
	}
	return o.obj.Seek(offset, whence)
}

func (o *object) Close() error {
	o.rec.Closes.Add(1)
	if err := o.rec.FailClose; err != nil {
		return err
	}
	return o.obj.Close()
}
