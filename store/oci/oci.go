// Package oci provides a store that keeps objects as OCI artifacts.
//
// An object name is a full reference ("registry/repository:tag"). The
// content lives in a single data layer of an image manifest with an empty
// JSON config, which works with both OCI 1.0 and 1.1 registries. Reads
// stream the data layer and reposition by discarding forward or refetching
// from the start; writes stage content locally and push blob, config, and
// manifest when the object is closed.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/osio-dev/osio/store"
)

// Media types for stream objects in OCI registries.
const (
	// ArtifactType identifies stream objects as an OCI 1.1 artifact type.
	ArtifactType = "application/vnd.osio.stream.v1"

	// MediaTypeData is the media type for the object content layer.
	MediaTypeData = "application/vnd.osio.stream.data.v1"
)

// Store opens objects as tagged artifacts in OCI registries.
type Store struct {
	plainHTTP  bool
	anonymous  bool
	userAgent  string
	credStore  credentials.Store
	authClient *auth.Client
}

// Option configures a Store.
type Option func(*Store)

// WithPlainHTTP uses HTTP instead of HTTPS for registry requests.
func WithPlainHTTP(enabled bool) Option {
	return func(s *Store) {
		s.plainHTTP = enabled
	}
}

// WithAnonymous skips credential lookup entirely.
func WithAnonymous(enabled bool) Option {
	return func(s *Store) {
		s.anonymous = enabled
	}
}

// WithCredentialStore sets the credential store used to authenticate.
func WithCredentialStore(cs credentials.Store) Option {
	return func(s *Store) {
		s.credStore = cs
	}
}

// WithUserAgent sets the User-Agent header on registry requests.
func WithUserAgent(ua string) Option {
	return func(s *Store) {
		s.userAgent = ua
	}
}

// New returns an OCI registry store.
func New(opts ...Option) *Store {
	s := &Store{
		userAgent: "osio/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if s.anonymous || s.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return s.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{s.userAgent},
		},
	}
	return s
}

// Open implements store.Store. The name must carry a tag or digest
// reference; read-write mode fetches the existing content and pushes the
// modified artifact on close.
func (s *Store) Open(ctx context.Context, name string, mode store.Mode) (store.Object, error) {
	ref, err := registry.ParseReference(name)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	if ref.Reference == "" {
		return nil, fmt.Errorf("open %q: reference has no tag or digest", name)
	}

	repo, err := s.repository(ref)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	switch mode {
	case store.ModeRead:
		desc, err := s.dataLayer(ctx, repo, ref.Reference)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		return &reader{ctx: ctx, repo: repo, desc: desc}, nil

	case store.ModeWrite:
		return &staged{ctx: ctx, repo: repo, tag: ref.Reference, dirty: true}, nil

	case store.ModeReadWrite:
		data, err := s.fetchAll(ctx, repo, ref.Reference)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		return &staged{ctx: ctx, repo: repo, tag: ref.Reference, data: data}, nil

	default:
		return nil, fmt.Errorf("open %q: %w", name, store.ErrInvalidMode)
	}
}

func (s *Store) repository(ref registry.Reference) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Host() + "/" + ref.Repository)
	if err != nil {
		return nil, err
	}
	repo.PlainHTTP = s.plainHTTP
	repo.Client = s.authClient
	return repo, nil
}

// dataLayer resolves a tag or digest to the descriptor of the content
// layer in its manifest.
func (s *Store) dataLayer(ctx context.Context, repo *remote.Repository, reference string) (ocispec.Descriptor, error) {
	desc, err := repo.Resolve(ctx, reference)
	if err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}

	rc, err := repo.Manifests().Fetch(ctx, desc)
	if err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}
	defer func() { _ = rc.Close() }()

	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(rc, desc.Size)).Decode(&manifest); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("decode manifest: %w", err)
	}

	for _, layer := range manifest.Layers {
		if layer.MediaType == MediaTypeData {
			return layer, nil
		}
	}
	if len(manifest.Layers) == 1 {
		return manifest.Layers[0], nil
	}
	return ocispec.Descriptor{}, fmt.Errorf("manifest %s has no %s layer", desc.Digest, MediaTypeData)
}

func (s *Store) fetchAll(ctx context.Context, repo *remote.Repository, reference string) ([]byte, error) {
	desc, err := s.dataLayer(ctx, repo, reference)
	if err != nil {
		return nil, err
	}
	rc, err := repo.Blobs().Fetch(ctx, desc)
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(io.LimitReader(rc, desc.Size))
}

// push uploads data blob, empty config, and manifest, then tags the
// manifest.
func push(ctx context.Context, repo *remote.Repository, tag string, data []byte) error {
	dataDesc := ocispec.Descriptor{
		MediaType: MediaTypeData,
		Digest:    digest.FromBytes(data),
		Size:      int64(len(data)),
	}
	if err := repo.Blobs().Push(ctx, dataDesc, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("push data blob: %w", mapError(err))
	}

	config := []byte("{}")
	configDesc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeEmptyJSON,
		Digest:    digest.FromBytes(config),
		Size:      int64(len(config)),
	}
	if err := repo.Blobs().Push(ctx, configDesc, bytes.NewReader(config)); err != nil {
		return fmt.Errorf("push config blob: %w", mapError(err))
	}

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       configDesc,
		Layers:       []ocispec.Descriptor{dataDesc},
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestDesc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromBytes(manifestJSON),
		Size:      int64(len(manifestJSON)),
	}
	if err := repo.Manifests().PushReference(ctx, manifestDesc, bytes.NewReader(manifestJSON), tag); err != nil {
		return fmt.Errorf("push manifest: %w", mapError(err))
	}
	return nil
}

// reader streams the data layer, repositioning by discarding forward or
// refetching from the start.
type reader struct {
	ctx  context.Context
	repo *remote.Repository
	desc ocispec.Descriptor

	rc        io.ReadCloser
	streamPos int64
	pos       int64
	closed    bool
}

func (r *reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, store.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= r.desc.Size {
		return 0, io.EOF
	}
	if err := r.position(); err != nil {
		return 0, err
	}

	if remaining := r.desc.Size - r.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.rc.Read(p)
	r.streamPos += int64(n)
	r.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

// position aligns the underlying blob stream with pos, discarding forward
// or refetching when the stream is past the target.
func (r *reader) position() error {
	if r.rc != nil && r.pos < r.streamPos {
		_ = r.rc.Close()
		r.rc = nil
		r.streamPos = 0
	}
	if r.rc == nil {
		rc, err := r.repo.Blobs().Fetch(r.ctx, r.desc)
		if err != nil {
			return mapError(err)
		}
		r.rc = rc
		r.streamPos = 0
	}
	if skip := r.pos - r.streamPos; skip > 0 {
		if _, err := io.CopyN(io.Discard, r.rc, skip); err != nil {
			return err
		}
		r.streamPos = r.pos
	}
	return nil
}

func (r *reader) Write([]byte) (int, error) {
	return 0, store.ErrReadOnly
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, store.ErrClosed
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = r.pos + offset
	case io.SeekEnd:
		pos = r.desc.Size + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek: negative position %d", pos)
	}
	r.pos = pos
	return pos, nil
}

func (r *reader) Close() error {
	if r.closed {
		return store.ErrClosed
	}
	r.closed = true
	if r.rc != nil {
		return r.rc.Close()
	}
	return nil
}

// staged is a locally buffered handle pushed on close.
type staged struct {
	ctx  context.Context
	repo *remote.Repository
	tag  string

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
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = o.pos + offset
	case io.SeekEnd:
		pos = int64(len(o.data)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek: negative position %d", pos)
	}
	o.pos = pos
	return pos, nil
}

// Close pushes the staged content when it changed.
func (o *staged) Close() error {
	if o.closed {
		return store.ErrClosed
	}
	o.closed = true
	if !o.dirty {
		return nil
	}
	return push(o.ctx, o.repo, o.tag, o.data)
}

func mapError(err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", store.ErrNotExist, err)
	}
	return err
}
