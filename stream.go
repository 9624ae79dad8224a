package osio

import (
	"fmt"
	"io"

	"github.com/osio-dev/osio/store"
)

// Stream is a buffered stream over one remote object.
//
// The buffer caches a contiguous window of the object starting at the
// remote offset baseOffset. cursor is the position of the next byte to read
// or write within the buffer; unread counts the valid, not-yet-consumed
// bytes from cursor on. When dirty is set, bytes in the occupied region
// [0, cursor+unread) have been written locally but not yet sent.
//
// A Stream belongs to one logical caller. Concurrent calls on the same
// stream must be serialized by the caller.
type Stream struct {
	sess *Session
	name string
	mode store.Mode
	obj  store.Object

	buf        []byte
	baseOffset int64
	cursor     int
	unread     int
	dirty      bool

	slot   int
	gen    uint64
	closed bool
}

// Interface compliance.
var (
	_ io.Reader     = (*Stream)(nil)
	_ io.Writer     = (*Stream)(nil)
	_ io.Seeker     = (*Stream)(nil)
	_ io.Closer     = (*Stream)(nil)
	_ io.ByteReader = (*Stream)(nil)
	_ io.ByteWriter = (*Stream)(nil)
)

// Name returns the name the stream was opened with.
func (s *Stream) Name() string {
	return s.name
}

// growSlack is added on top of a doubled transfer size when the buffer
// grows, so a follow-up request of the same size still fits.
const growSlack = 8

// check panics if the cache state invariant is broken. The invariant holds
// before and after every public operation; a violation is a programming
// error in this package, not a recoverable condition.
func (s *Stream) check() {
	if len(s.buf) == 0 || s.cursor < 0 || s.unread < 0 || s.cursor+s.unread > len(s.buf) {
		panic(fmt.Sprintf("osio: cache invariant violated: name=%q buf=%d cursor=%d unread=%d",
			s.name, len(s.buf), s.cursor, s.unread))
	}
}

// occupied returns the length of the valid region at the start of the
// buffer: everything up to the cursor plus the unread bytes beyond it.
func (s *Stream) occupied() int {
	return s.cursor + s.unread
}

// Flush synchronizes dirty cached bytes with the remote object.
//
// It writes the full occupied region of the buffer, not just the newly
// written delta, keeping the remote copy consistent when writes were
// interleaved with partial reads. The cached window stays valid; flush
// synchronizes, it does not discard. Flushing a clean stream is a no-op, so
// back-to-back flushes issue exactly one remote write.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	s.check()
	if !s.dirty {
		return nil
	}
	if n := s.occupied(); n > 0 {
		if _, err := s.obj.Write(s.buf[:n]); err != nil {
			return fmt.Errorf("flush %q: %w", s.name, err)
		}
		s.sess.log().Debug("flushed", "name", s.name, "bytes", n)
	}
	s.dirty = false
	return nil
}

// Close flushes dirty data, closes the remote object, and releases the
// stream's table slot. A flush failure aborts the close: the stream stays
// open and no buffered data is lost. After a successful Close the stream is
// unusable and further calls return ErrClosed.
func (s *Stream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.check()
	if err := s.Flush(); err != nil {
		return err
	}

	err := s.obj.Close()
	s.sess.release(s.slot, s.gen)
	s.closed = true
	s.buf = nil
	s.unread = 0
	s.cursor = 0

	s.sess.log().Debug("stream closed", "name", s.name)
	if err != nil {
		return fmt.Errorf("close %q: %w", s.name, err)
	}
	return nil
}

// ReadByte reads a single byte (getc).
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes a single byte (putc).
func (s *Stream) WriteByte(c byte) error {
	b := [1]byte{c}
	_, err := s.Write(b[:])
	return err
}
