// Package s3 provides a store backed by an S3 bucket.
//
// Reads are served one ranged GetObject per call against the size learned
// from HeadObject at open, so the buffered stream layer above coalesces
// small reads into few requests. S3 objects cannot be written in place:
// write modes stage content locally and upload it with a single PutObject
// when the object is closed.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/osio-dev/osio/store"
)

// Store opens objects as keys in a single bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix prepends a key prefix to every object name.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a store over the given bucket.
func New(client *s3.Client, bucket string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open implements store.Store. Read mode requires the object to exist;
// write mode starts from empty content; read-write mode downloads the
// existing object and uploads the modified content on close.
func (s *Store) Open(ctx context.Context, name string, mode store.Mode) (store.Object, error) {
	key := s.prefix + name

	switch mode {
	case store.ModeRead:
		size, err := s.head(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		return &reader{store: s, ctx: ctx, key: key, size: size}, nil

	case store.ModeWrite:
		// Truncating semantics: mark dirty so close uploads even an
		// empty object.
		return &staged{store: s, ctx: ctx, key: key, dirty: true}, nil

	case store.ModeReadWrite:
		data, err := s.download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		return &staged{store: s, ctx: ctx, key: key, data: data}, nil

	default:
		return nil, fmt.Errorf("open %q: %w", name, store.ErrInvalidMode)
	}
}

func (s *Store) head(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if notExist(err) {
			return 0, store.ErrNotExist
		}
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *Store) download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if notExist(err) {
			return nil, store.ErrNotExist
		}
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *Store) upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// reader is a positioned read-only handle on a remote object.
type reader struct {
	store  *Store
	ctx    context.Context
	key    string
	size   int64
	pos    int64
	closed bool
}

func (r *reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, store.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}

	// S3 ranges are inclusive, so end = pos + len(p) - 1.
	end := r.pos + int64(len(p)) - 1
	expected := len(p)
	if end >= r.size {
		end = r.size - 1
		expected = int(end - r.pos + 1)
	}

	out, err := r.store.client.GetObject(r.ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.store.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", r.pos, end)),
	})
	if err != nil {
		if notExist(err) {
			return 0, store.ErrNotExist
		}
		if invalidRange(err) {
			return 0, io.EOF
		}
		return 0, err
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, p[:expected])
	r.pos += int64(n)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (r *reader) Write([]byte) (int, error) {
	return 0, store.ErrReadOnly
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, store.ErrClosed
	}
	pos, err := resolve(offset, whence, r.pos, r.size)
	if err != nil {
		return 0, fmt.Errorf("seek %q: %w", r.key, err)
	}
	r.pos = pos
	return pos, nil
}

func (r *reader) Close() error {
	if r.closed {
		return store.ErrClosed
	}
	r.closed = true
	return nil
}

// staged is a locally buffered handle uploaded on close.
type staged struct {
	store  *Store
	ctx    context.Context
	key    string
	data   []byte
	pos    int64
	dirty  bool
	closed bool
}

func (o *staged) Read(p []byte) (int, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	if o.pos >= int64(len(o.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, o.data[o.pos:])
	o.pos += int64(n)
	return n, nil
}

func (o *staged) Write(p []byte) (int, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if end := o.pos + int64(len(p)); end > int64(len(o.data)) {
		grown := make([]byte, end)
		copy(grown, o.data)
		o.data = grown
	}
	copy(o.data[o.pos:], p)
	o.pos += int64(len(p))
	o.dirty = true
	return len(p), nil
}

func (o *staged) Seek(offset int64, whence int) (int64, error) {
	if o.closed {
		return 0, store.ErrClosed
	}
	pos, err := resolve(offset, whence, o.pos, int64(len(o.data)))
	if err != nil {
		return 0, fmt.Errorf("seek %q: %w", o.key, err)
	}
	o.pos = pos
	return pos, nil
}

// Close uploads the staged content when it changed.
func (o *staged) Close() error {
	if o.closed {
		return store.ErrClosed
	}
	o.closed = true
	if !o.dirty {
		return nil
	}
	if err := o.store.upload(o.ctx, o.key, o.data); err != nil {
		return fmt.Errorf("put %q: %w", o.key, err)
	}
	return nil
}

func resolve(offset int64, whence int, pos, size int64) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = pos + offset
	case io.SeekEnd:
		next = size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	return next, nil
}

// notExist reports whether err indicates a missing object. The typed
// errors cover GetObject and HeadObject; the code check catches operations
// that only surface a generic API error.
func notExist(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func invalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}
