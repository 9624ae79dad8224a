package osio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osio-dev/osio/store/mem"
	"github.com/osio-dev/osio/store/storetest"
)

// testSession builds a session over a recording-wrapped in-memory store
// registered under the "mem" scheme.
func testSession(opts ...Option) (*Session, *mem.Store, *storetest.Recording) {
	backend := mem.New()
	rec := storetest.Wrap(backend)
	opts = append([]Option{WithStore("mem", rec)}, opts...)
	return NewSession(opts...), backend, rec
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func TestReadServedFromCache(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()
	backend.Put("obj", pattern(100))

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	defer s.Close()

	p := make([]byte, 10)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, pattern(100)[:10], p)

	// The first read refills the whole buffer: one position query plus one
	// remote read.
	assert.Equal(t, int64(1), rec.Reads.Load())
	assert.Equal(t, int64(1), rec.Seeks.Load())

	// Everything else is already cached.
	for i := 1; i < 10; i++ {
		n, err = s.Read(p)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
		assert.Equal(t, pattern(100)[i*10:i*10+10], p)
	}
	assert.Equal(t, int64(1), rec.Reads.Load(), "cached reads must not touch the backend")
	assert.Equal(t, int64(1), rec.Seeks.Load())
}

func TestReadPartialHitRefills(t *testing.T) {
	t.Parallel()

	content := pattern(100)
	sess, backend, rec := testSession(WithBufferSize(64), WithMaxBufferSize(256))
	backend.Put("obj", content)

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	defer s.Close()

	// First read fills the 64-byte buffer and caches bytes 0..63.
	p := make([]byte, 20)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, content[:20], p)
	assert.Equal(t, int64(1), rec.Reads.Load())

	// Partial hit: 44 bytes still cached, the rest needs one refill.
	p = make([]byte, 60)
	n, err = s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	assert.Equal(t, content[20:80], p)
	assert.Equal(t, int64(2), rec.Reads.Load())
}

func TestReadEndOfStream(t *testing.T) {
	t.Parallel()

	sess, backend, _ := testSession()
	backend.Put("obj", pattern(30))

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	defer s.Close()

	// Asking for more than remains returns what is there.
	p := make([]byte, 50)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, pattern(30), p[:30])

	// The next read reports end of stream, not an error condition.
	n, err = s.Read(p)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteCoalescedInCache(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)

	n, err := s.Write([]byte("hello, "))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	n, err = s.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Both writes fit in the buffer: nothing remote yet.
	assert.Zero(t, rec.RemoteCalls())

	require.NoError(t, s.Close())
	assert.Equal(t, int64(1), rec.Writes.Load(), "close flushes with a single write")

	got, ok := backend.Get("out")
	require.True(t, ok)
	assert.Equal(t, []byte("hello, world"), got)
}

func TestWriteOverflowFlushesThenCaches(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession(WithBufferSize(16), WithMaxBufferSize(64))

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)

	data := pattern(24)
	n, err := s.Write(data)
	require.NoError(t, err)
	assert.Equal(t, 24, n)
	assert.Equal(t, int64(1), rec.Writes.Load(), "overflow flushes the full buffer once")

	require.NoError(t, s.Close())
	assert.Equal(t, int64(2), rec.Writes.Load())

	got, ok := backend.Get("out")
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestFlushIdempotent(t *testing.T) {
	t.Parallel()

	sess, _, rec := testSession()

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(pattern(10))
	require.NoError(t, err)

	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())
	assert.Equal(t, int64(1), rec.Writes.Load(), "second flush must be a no-op")
}

func TestWriteFlushSeekReadRoundTrip(t *testing.T) {
	t.Parallel()

	sess, _, rec := testSession()

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(pattern(13)[:10])
	require.NoError(t, err)
	_, err = s.Write(pattern(13)[10:])
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	assert.Equal(t, int64(1), rec.Writes.Load())

	pos, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	got := make([]byte, 13)
	n, err := s.Read(got)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, pattern(13), got)

	// The written bytes were still cached: no remote reads, and the seek
	// back stayed inside the window.
	assert.Zero(t, rec.Reads.Load())
	assert.Zero(t, rec.Seeks.Load())
}

func TestReadFlushesDirtyFirst(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()
	backend.Put("obj", pattern(40))

	s, err := sess.Open(context.Background(), "mem://obj", "r+")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte("XXXX"))
	require.NoError(t, err)

	// The read must first flush the four dirty bytes, then serve from the
	// window they created.
	p := make([]byte, 4)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(1), rec.Writes.Load())

	got, ok := backend.Get("obj")
	require.True(t, ok)
	assert.Equal(t, []byte("XXXX"), got[:4])
}

func TestFlushErrorAbortsClose(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()
	boom := errors.New("backend write failed")

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)

	_, err = s.Write(pattern(10))
	require.NoError(t, err)

	rec.FailWrite = boom
	err = s.Close()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, rec.Closes.Load(), "remote close must not run after a failed flush")

	// The stream survived; clearing the fault lets the close finish.
	rec.FailWrite = nil
	require.NoError(t, s.Close())

	got, ok := backend.Get("out")
	require.True(t, ok)
	assert.Equal(t, pattern(10), got)
}

func TestReadErrorPropagates(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()
	backend.Put("obj", pattern(10))
	boom := errors.New("backend read failed")

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	defer s.Close()

	rec.FailRead = boom
	_, err = s.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)
}

func TestUseAfterClose(t *testing.T) {
	t.Parallel()

	sess, backend, _ := testSession()
	backend.Put("obj", pattern(10))

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Write([]byte{0})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Tell()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestByteHelpers(t *testing.T) {
	t.Parallel()

	sess, backend, _ := testSession()

	s, err := sess.Open(context.Background(), "mem://out", "w")
	require.NoError(t, err)
	for _, c := range []byte("abc") {
		require.NoError(t, s.WriteByte(c))
	}
	require.NoError(t, s.Close())

	s, err = sess.Open(context.Background(), "mem://out", "r")
	require.NoError(t, err)
	defer s.Close()

	var got bytes.Buffer
	for {
		c, err := s.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.WriteByte(c)
	}
	assert.Equal(t, "abc", got.String())

	content, ok := backend.Get("out")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), content)
}

func TestTellIsAlwaysRemote(t *testing.T) {
	t.Parallel()

	sess, backend, rec := testSession()
	backend.Put("obj", pattern(50))

	s, err := sess.Open(context.Background(), "mem://obj", "r")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read(make([]byte, 10))
	require.NoError(t, err)
	seeks := rec.Seeks.Load()

	pos, err := s.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(50), pos, "tell reports the physical position, past the cached window")
	assert.Equal(t, seeks+1, rec.Seeks.Load())
}
