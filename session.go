package osio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/osio-dev/osio/store"
	storefile "github.com/osio-dev/osio/store/file"
)

// Session holds the configured stores and the table of open streams.
//
// A Session replaces the process-wide setup state a stdio shim would carry:
// construct one explicitly and pass it wherever streams are opened. Sessions
// are safe for concurrent use; the streams they produce are not.
type Session struct {
	stores   map[string]store.Store
	fallback store.Store
	logger   *slog.Logger

	bufSize    int
	maxBufSize int
	maxStreams int

	mu    sync.Mutex
	slots []slot
	open  int
}

// slot is one entry in the open-stream table. The generation counter is
// bumped on every release so a stale stream can never alias a slot that has
// since been reused.
type slot struct {
	gen    uint64
	stream *Stream
}

// NewSession creates a session with the given options. With no options the
// session serves plain filesystem paths with default buffer sizing.
func NewSession(opts ...Option) *Session {
	s := &Session{
		stores:     make(map[string]store.Store),
		fallback:   storefile.New(),
		bufSize:    DefaultBufferSize,
		maxBufSize: DefaultMaxBufferSize,
		maxStreams: DefaultMaxStreams,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.maxBufSize < s.bufSize {
		s.maxBufSize = s.bufSize
	}
	s.slots = make([]slot, s.maxStreams)
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Session) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Open opens the named object and wraps it in a buffered stream.
//
// The mode string follows stdio conventions: "r" (read), "w" (write,
// create-if-absent, truncate), "r+" (read-write). The context scopes the
// open call and, for lazy backends, the handle's lifetime.
//
// Open fails with ErrStreamLimit when the session already has its maximum
// number of streams open, and with ErrUnknownScheme when the name carries a
// scheme no store is registered for. Backend open failures are returned
// wrapped but otherwise unchanged; no stream is created on failure.
func (s *Session) Open(ctx context.Context, name, mode string) (*Stream, error) {
	m, err := store.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	backend, rest, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	idx, gen, err := s.reserve()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	obj, err := backend.Open(ctx, rest, m)
	if err != nil {
		s.release(idx, gen)
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	stream := &Stream{
		sess: s,
		name: name,
		mode: m,
		obj:  obj,
		buf:  make([]byte, s.bufSize),
		slot: idx,
		gen:  gen,
	}
	s.attach(idx, gen, stream)

	s.log().Debug("stream opened", "name", name, "mode", mode, "buffer", s.bufSize)
	return stream, nil
}

// OpenStreams returns the number of currently open streams.
func (s *Session) OpenStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// resolve routes a name to a store. Names with a scheme prefix go to the
// registered store (with the prefix stripped, as the backend names objects
// without it); everything else goes to the fallback store.
func (s *Session) resolve(name string) (store.Store, string, error) {
	i := strings.Index(name, "://")
	if i <= 0 {
		return s.fallback, name, nil
	}
	scheme := name[:i]
	backend, ok := s.stores[scheme]
	if !ok {
		return nil, "", fmt.Errorf("open %q: %w: %q", name, ErrUnknownScheme, scheme)
	}
	return backend, name[i+3:], nil
}

// reserve claims a free slot in the open-stream table.
func (s *Session) reserve() (int, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].stream == nil {
			s.slots[i].gen++
			s.slots[i].stream = reservedMarker
			s.open++
			return i, s.slots[i].gen, nil
		}
	}
	return 0, 0, ErrStreamLimit
}

// reservedMarker occupies a slot between reserve and attach so concurrent
// opens cannot claim it.
var reservedMarker = &Stream{}

// attach binds the opened stream to its reserved slot.
func (s *Session) attach(idx int, gen uint64, stream *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[idx].gen == gen {
		s.slots[idx].stream = stream
	}
}

// release frees a slot. The generation check makes release idempotent and
// immune to stale handles.
func (s *Session) release(idx int, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.slots) {
		return
	}
	if s.slots[idx].gen != gen || s.slots[idx].stream == nil {
		return
	}
	s.slots[idx].stream = nil
	s.open--
}
