package osio

import (
	"fmt"
	"io"
)

// Read reads up to len(p) bytes, returning fewer only at end of stream.
//
// Reads are served from the cached window whenever possible. A read fully
// satisfied by cached bytes issues no remote calls. A partial hit copies
// what is available, then refills the buffer with a single remote read —
// growing it to twice the outstanding size (plus slack) when that still
// fits under the cache ceiling. Larger requests bypass the cache and read
// straight into p.
//
// At end of stream Read returns 0, io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	s.check()
	defer s.check()
	if len(p) == 0 {
		return 0, nil
	}

	// Stale cached reads never mix with unflushed writes.
	if err := s.Flush(); err != nil {
		return 0, err
	}

	n := 0
	if s.unread > 0 {
		c := copy(p, s.buf[s.cursor:s.cursor+s.unread])
		s.cursor += c
		s.unread -= c
		n += c
		if n == len(p) {
			return n, nil
		}
		// Cache drained; reset the window before refilling.
		s.cursor = 0
	}

	remaining := len(p) - n
	if grown := 2*remaining + growSlack; grown <= s.sess.maxBufSize {
		if grown > len(s.buf) {
			s.buf = make([]byte, grown)
		}
		s.cursor, s.unread = 0, 0
		filled, err := s.fill(s.buf)
		if err != nil {
			return n, err
		}
		s.unread = filled
		c := copy(p[n:], s.buf[:min(filled, remaining)])
		s.cursor += c
		s.unread -= c
		n += c
	} else {
		// Too large to cache profitably: one remote read straight into the
		// caller's slice, sized to what is still missing. The internal
		// buffer is untouched; the window is simply empty afterwards.
		s.cursor, s.unread = 0, 0
		filled, err := s.fill(p[n:])
		if err != nil {
			return n, err
		}
		// The bytes went past the cache, so the empty window must sit at
		// the position after them for local seeks to stay truthful.
		s.baseOffset += int64(filled)
		n += filled
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// fill moves the cache window to the object's current remote position and
// issues one remote read into dst. dst is either the stream's own buffer or,
// for bypass transfers, a slice of the caller's buffer; which one never
// changes the bookkeeping done here.
func (s *Stream) fill(dst []byte) (int, error) {
	pos, err := s.obj.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("refill %q: %w", s.name, err)
	}
	s.baseOffset = pos

	n, err := s.obj.Read(dst)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read %q: %w", s.name, err)
	}
	s.sess.log().Debug("refilled", "name", s.name, "base_offset", pos, "bytes", n)
	return n, nil
}
