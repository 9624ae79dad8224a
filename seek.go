package osio

import (
	"fmt"
	"io"
)

// Seek repositions the stream, returning the new absolute offset.
//
// Targets that fall inside the cached window are handled by pointer
// arithmetic with no remote call; this fast path is the primary reason the
// cache exists. A zero-length relative seek is always a local no-op.
// Targets outside the window flush dirty data, issue one remote seek, and
// empty the window at the reported position. io.SeekEnd always goes remote:
// the object's size is not cached.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	s.check()
	defer s.check()

	if adj, ok := s.seekWindow(offset, whence); ok {
		s.cursor += int(adj)
		s.unread -= int(adj)
		return s.baseOffset + int64(s.cursor), nil
	}

	if err := s.Flush(); err != nil {
		return 0, err
	}
	pos, err := s.obj.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("seek %q: %w", s.name, err)
	}
	s.baseOffset = pos
	s.cursor, s.unread = 0, 0
	s.sess.log().Debug("remote seek", "name", s.name, "pos", pos)
	return pos, nil
}

// seekWindow reports whether the target position falls inside the cached
// window and, if so, the signed cursor adjustment that reaches it.
func (s *Stream) seekWindow(offset int64, whence int) (int64, bool) {
	// A zero-length relative seek cannot move the position; it succeeds
	// locally even when the window is empty.
	if whence == io.SeekCurrent && offset == 0 {
		return 0, true
	}
	if s.occupied() <= 0 {
		return 0, false
	}

	switch whence {
	case io.SeekStart:
		if offset >= s.baseOffset && offset < s.baseOffset+int64(s.occupied()) {
			return (offset - s.baseOffset) - int64(s.cursor), true
		}
	case io.SeekCurrent:
		if offset > 0 && offset <= int64(s.unread) {
			return offset, true
		}
		if offset < 0 && int64(s.cursor)+offset > 0 {
			return offset, true
		}
	}
	// io.SeekEnd, and anything outside the window, goes remote.
	return 0, false
}

// Tell returns the object's current physical position with one remote
// round trip. The stream does not track the absolute position locally, so
// Tell is always remote — the one operation the cache cannot help.
func (s *Stream) Tell() (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	pos, err := s.obj.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("tell %q: %w", s.name, err)
	}
	return pos, nil
}
