// Package http provides a read-only store backed by HTTP range requests.
//
// Each remote read becomes one ranged GET, so the buffered stream layer
// above naturally coalesces small reads into few requests. Seeks are local
// arithmetic against the size probed at open. Writes are not supported.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/osio-dev/osio/store"
)

// Store opens objects by URL path over HTTP(S).
type Store struct {
	scheme  string
	client  *nethttp.Client
	headers nethttp.Header
}

// Option configures a Store.
type Option func(*Store)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithPlainHTTP uses http instead of https when building URLs.
func WithPlainHTTP(enabled bool) Option {
	return func(s *Store) {
		if enabled {
			s.scheme = "http"
		} else {
			s.scheme = "https"
		}
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(s *Store) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// New returns an HTTP store.
func New(opts ...Option) *Store {
	s := &Store{
		scheme: "https",
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	return s
}

// Open implements store.Store. The name is a URL without its scheme
// ("host/path"); write modes are rejected.
func (s *Store) Open(ctx context.Context, name string, mode store.Mode) (store.Object, error) {
	if mode.Writable() {
		return nil, fmt.Errorf("open %q: %w", name, store.ErrReadOnly)
	}

	o := &object{
		store: s,
		ctx:   ctx,
		url:   s.scheme + "://" + name,
	}
	size, err := o.probeSize()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	o.size = size
	return o, nil
}

// object is a positioned handle on a remote URL.
type object struct {
	store  *Store
	ctx    context.Context
	url    string
	size   int64
	pos    int64
	closed bool
}

func (o *object) Read(p []byte) (int, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if o.pos >= o.size {
		return 0, io.EOF
	}

	end := o.pos + int64(len(p)) - 1
	expected := len(p)
	if end >= o.size {
		end = o.size - 1
		expected = int(end - o.pos + 1)
	}

	req, err := o.newRequest(nethttp.MethodGet)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", o.pos, end))

	resp, err := o.store.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusOK:
		return 0, errors.New("range requests not supported")
	default:
		return 0, fmt.Errorf("range request failed: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:expected])
	o.pos += int64(n)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (o *object) Write([]byte) (int, error) {
	return 0, store.ErrReadOnly
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
		pos = o.size + offset
	default:
		return 0, fmt.Errorf("seek %q: invalid whence %d", o.url, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek %q: negative position %d", o.url, pos)
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

// probeSize determines the content size with a one-byte range request,
// falling back on nothing else: servers that cannot answer range requests
// cannot serve this store at all.
func (o *object) probeSize() (int64, error) {
	req, err := o.newRequest(nethttp.MethodGet)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := o.store.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusNotFound:
		return 0, store.ErrNotExist
	case nethttp.StatusOK:
		return 0, errors.New("range requests not supported")
	default:
		return 0, fmt.Errorf("range probe failed: %s", resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return 0, errors.New("range probe missing Content-Range")
	}
	return parseContentRange(crange)
}

func (o *object) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(o.ctx, method, o.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range o.store.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// parseContentRange extracts the total size from a Content-Range header
// ("bytes 0-0/12345").
func parseContentRange(value string) (int64, error) {
	i := strings.LastIndexByte(value, '/')
	if i < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", value)
	}
	total := value[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("Content-Range %q does not carry a size", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q: %w", value, err)
	}
	return size, nil
}
