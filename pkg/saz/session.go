// File: pkg/saz/session.go
package saz

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/saz-cli/internal/gatedio"
	"github.com/xkilldash9x/saz-cli/internal/httpwire"
	"github.com/xkilldash9x/saz-cli/internal/metadata"
)

// Re-exported message and metadata types, so callers never import internal packages.
type (
	Request  = httpwire.Request
	Response = httpwire.Response
	Header   = httpwire.Header
	Field    = httpwire.Field
	Framing  = httpwire.Framing
	Metadata = metadata.Metadata
)

// Session is one captured exchange, identified by its entry prefix. Sessions are
// valid for the lifetime of the Archive that produced them and safe for concurrent use.
type Session struct {
	prefix  string
	archive *Archive

	request   Entry
	response  Entry
	metadata  Entry
	websocket Entry
	grpc      Entry
}

func (s *Session) attach(kind blobKind, e Entry) {
	var slot *Entry
	switch kind {
	case kindRequest:
		slot = &s.request
	case kindResponse:
		slot = &s.response
	case kindMetadata:
		slot = &s.metadata
	case kindWebSocket:
		slot = &s.websocket
	case kindGRPC:
		slot = &s.grpc
	}
	if *slot != nil {
		s.archive.logger.Warn("Duplicate session entry, keeping the later one",
			zap.String("prefix", s.prefix),
			zap.String("kind", kind.String()),
			zap.String("entry", e.Name()))
	}
	*slot = e
}

// Prefix is the session's identity within its archive.
func (s *Session) Prefix() string { return s.prefix }

func (s *Session) HasRequest() bool   { return s.request != nil }
func (s *Session) HasResponse() bool  { return s.response != nil }
func (s *Session) HasMetadata() bool  { return s.metadata != nil }
func (s *Session) HasWebSocket() bool { return s.websocket != nil }
func (s *Session) HasGRPC() bool      { return s.grpc != nil }

// open opens e under the archive gate and wraps it so every later read is gated too.
func (s *Session) open(ctx context.Context, e Entry, kind blobKind) (*gatedio.Reader, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: session %q has no %s", ErrNoEntry, s.prefix, kind)
	}
	var rc io.ReadCloser
	err := s.archive.gate.Do(ctx, func() error {
		var err error
		rc, err = e.Open()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", e.Name(), err)
	}
	return gatedio.NewReader(rc, s.archive.gate), nil
}

// ReadRequest parses the captured request. The returned body is lazy; the caller
// must close it. Body reads use ctx.
func (s *Session) ReadRequest(ctx context.Context, decompress bool) (*Request, error) {
	r, err := s.open(ctx, s.request, kindRequest)
	if err != nil {
		return nil, err
	}
	req, err := s.archive.parser.ParseRequest(ctx, r, decompress)
	if err != nil {
		return nil, fmt.Errorf("session %q request: %w", s.prefix, err)
	}
	return req, nil
}

// ReadResponse parses the captured response. The returned body is lazy; the caller
// must close it. Body reads use ctx.
func (s *Session) ReadResponse(ctx context.Context, decompress bool) (*Response, error) {
	r, err := s.open(ctx, s.response, kindResponse)
	if err != nil {
		return nil, err
	}
	resp, err := s.archive.parser.ParseResponse(ctx, r, decompress)
	if err != nil {
		return nil, fmt.Errorf("session %q response: %w", s.prefix, err)
	}
	return resp, nil
}

// ReadMetadata parses the session's XML sidecar.
func (s *Session) ReadMetadata(ctx context.Context) (*Metadata, error) {
	r, err := s.open(ctx, s.metadata, kindMetadata)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	m, err := metadata.Parse(contextReader{ctx: ctx, r: r})
	if err != nil {
		if errors.Is(err, metadata.ErrMissingRoot) {
			return nil, fmt.Errorf("%w: session %q: %w", ErrContainerFormat, s.prefix, err)
		}
		return nil, fmt.Errorf("session %q metadata: %w", s.prefix, err)
	}
	return m, nil
}

// OpenWebSocket returns the raw WebSocket message blob. Its format is not interpreted.
func (s *Session) OpenWebSocket(ctx context.Context) (io.ReadCloser, error) {
	r, err := s.open(ctx, s.websocket, kindWebSocket)
	if err != nil {
		return nil, err
	}
	return contextReadCloser{contextReader{ctx: ctx, r: r}, r}, nil
}

// OpenGRPC returns the raw gRPC message blob. Its format is not interpreted.
func (s *Session) OpenGRPC(ctx context.Context) (io.ReadCloser, error) {
	r, err := s.open(ctx, s.grpc, kindGRPC)
	if err != nil {
		return nil, err
	}
	return contextReadCloser{contextReader{ctx: ctx, r: r}, r}, nil
}

// contextReader binds a context to a gated reader for consumers that only speak io.Reader.
type contextReader struct {
	ctx context.Context
	r   *gatedio.Reader
}

func (c contextReader) Read(p []byte) (int, error) { return c.r.ReadContext(c.ctx, p) }

type contextReadCloser struct {
	contextReader
	io.Closer
}
