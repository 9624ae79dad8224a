package osio

import "fmt"

// Write writes len(p) bytes, buffering them in the cache whenever they fit.
//
// The stream is dirty from the first byte accepted. Bytes are copied into
// the free space of the buffer; a write that fits entirely issues no remote
// calls. When the buffer runs out, the full occupied region is flushed with
// one remote write and the remainder is either cached (growing the buffer
// if needed) or, if it exceeds the cache ceiling, sent with one remote
// write directly from p.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	s.check()
	defer s.check()
	if len(p) == 0 {
		return 0, nil
	}

	s.dirty = true

	// Fill whatever free space the buffer has. Cached-but-unread bytes
	// being overwritten stop counting as unread.
	w := min(len(p), len(s.buf)-s.cursor)
	copy(s.buf[s.cursor:], p[:w])
	s.cursor += w
	s.unread = max(s.unread-w, 0)
	if w == len(p) {
		return w, nil
	}

	flushed := s.occupied()
	if err := s.Flush(); err != nil {
		return w, err
	}
	s.baseOffset += int64(flushed)
	s.cursor, s.unread = 0, 0

	rest := p[w:]
	if len(rest) > s.sess.maxBufSize {
		// Too big to cache, send it straight from the caller's slice.
		if _, err := s.obj.Write(rest); err != nil {
			return w, fmt.Errorf("write %q: %w", s.name, err)
		}
		s.baseOffset += int64(len(rest))
		s.sess.log().Debug("bypass write", "name", s.name, "bytes", len(rest))
		return len(p), nil
	}

	if len(rest) > len(s.buf) {
		s.buf = make([]byte, min(2*len(rest)+growSlack, s.sess.maxBufSize))
	}
	copy(s.buf, rest)
	s.dirty = true
	s.cursor = len(rest)
	return len(p), nil
}
