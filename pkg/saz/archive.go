// File: pkg/saz/archive.go
package saz

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/saz-cli/internal/gatedio"
	"github.com/xkilldash9x/saz-cli/internal/httpwire"
)

var (
	// ErrContainerFormat marks an archive whose layout is not understood, such as an
	// unrecognised entry under raw/ or a metadata blob without a root element.
	ErrContainerFormat = errors.New("saz: unrecognised container format")
	// ErrNoEntry is returned when a session has no blob of the requested kind.
	ErrNoEntry = errors.New("saz: session has no such entry")
)

// rawDir is the namespace holding every session entry.
const rawDir = "raw/"

type blobKind uint8

const (
	kindRequest blobKind = iota
	kindResponse
	kindMetadata
	kindWebSocket
	kindGRPC
)

func (k blobKind) String() string {
	switch k {
	case kindRequest:
		return "request"
	case kindResponse:
		return "response"
	case kindMetadata:
		return "metadata"
	case kindWebSocket:
		return "websocket"
	case kindGRPC:
		return "grpc"
	}
	return "unknown"
}

// Suffix table for entries under raw/. Matching is case-sensitive. Anything not
// listed here is a format error.
var entrySuffixes = []struct {
	suffix string
	kind   blobKind
}{
	{"_c.txt", kindRequest},
	{"_s.txt", kindResponse},
	{"_m.xml", kindMetadata},
	{"_w.txt", kindWebSocket},
	{"_g.txt", kindGRPC},
}

// Archive is the session index over one container. It owns the container and
// the gate serializing every physical read against it.
type Archive struct {
	container Container
	gate      *gatedio.Gate
	parser    *httpwire.HTTPParser
	logger    *zap.Logger

	sessions []*Session
	byPrefix map[string]*Session
}

type options struct {
	logger         *zap.Logger
	maxHeaderBytes int
}

// Option configures an Archive.
type Option func(*options)

// WithLogger sets the logger used for indexing and parsing diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMaxHeaderBytes caps the bytes scanned for a message's start line and headers.
func WithMaxHeaderBytes(n int) Option {
	return func(o *options) { o.maxHeaderBytes = n }
}

// Open indexes the zip archive readable through ra.
func Open(ra io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	c, err := NewZipContainer(ra, size)
	if err != nil {
		return nil, err
	}
	return New(c, opts...)
}

// OpenFile indexes the zip archive at path. Closing the Archive closes the file.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	c, err := OpenZipContainer(path)
	if err != nil {
		return nil, err
	}
	return New(c, opts...)
}

// New takes ownership of c and indexes its entries. If indexing fails, c is closed.
func New(c Container, opts ...Option) (*Archive, error) {
	o := options{maxHeaderBytes: httpwire.DefaultMaxHeaderBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	a := &Archive{
		container: c,
		gate:      gatedio.NewGate(),
		parser:    httpwire.NewHTTPParser(o.logger, httpwire.WithMaxHeaderBytes(o.maxHeaderBytes)),
		logger:    o.logger.Named("saz"),
		byPrefix:  make(map[string]*Session),
	}
	if err := a.index(); err != nil {
		return nil, errors.Join(err, c.Close())
	}
	a.logger.Debug("Archive indexed", zap.Int("sessions", len(a.sessions)))
	return a, nil
}

// index walks the entry list once, grouping raw/ entries by prefix in first-seen order.
func (a *Archive) index() error {
	for _, e := range a.container.Entries() {
		name := e.Name()
		if !strings.HasPrefix(name, rawDir) || name == rawDir {
			continue
		}
		rest := name[len(rawDir):]

		matched := false
		for _, s := range entrySuffixes {
			if !strings.HasSuffix(rest, s.suffix) {
				continue
			}
			prefix := strings.TrimSuffix(rest, s.suffix)
			sess, ok := a.byPrefix[prefix]
			if !ok {
				sess = &Session{prefix: prefix, archive: a}
				a.byPrefix[prefix] = sess
				a.sessions = append(a.sessions, sess)
			}
			sess.attach(s.kind, e)
			matched = true
			break
		}
		if !matched {
			return fmt.Errorf("%w: unrecognised entry %q", ErrContainerFormat, name)
		}
	}
	return nil
}

// Sessions returns the sessions in the order their prefixes were first seen.
func (a *Archive) Sessions() []*Session {
	out := make([]*Session, len(a.sessions))
	copy(out, a.sessions)
	return out
}

// Session looks a session up by prefix.
func (a *Archive) Session(prefix string) (*Session, bool) {
	s, ok := a.byPrefix[prefix]
	return s, ok
}

// Close waits for any in-flight read, closes the container and invalidates every
// stream derived from the archive. It is safe to call more than once.
func (a *Archive) Close() error {
	return a.gate.Close(a.container.Close)
}
