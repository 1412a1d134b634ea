// File: internal/httpwire/window.go
package httpwire

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/xkilldash9x/saz-cli/internal/gatedio"
)

// Source is the byte stream a message is parsed from. gatedio.Reader satisfies it.
type Source interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
	io.Closer
}

// closedReporter is implemented by sources whose owner can invalidate them apart from
// Close, such as a gatedio.Reader after its Gate is closed.
type closedReporter interface {
	Closed() bool
}

// sourceClosed reports whether src has been invalidated by its owner.
func sourceClosed(src any) bool {
	c, ok := src.(closedReporter)
	return ok && c.Closed()
}

// NewSource adapts a plain io.ReadCloser. The context is only checked before each read.
func NewSource(rc io.ReadCloser) Source {
	return plainSource{rc}
}

type plainSource struct {
	io.ReadCloser
}

func (s plainSource) ReadContext(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Read(p)
}

const initialWindowSize = 4096

// window is a growable read buffer over a Source. buf[start:end] is the active window
// of bytes read but not yet consumed; buf[end:] is free space for the next read.
// Consumed bytes are dropped from the front by sliding the window, never copied otherwise.
type window struct {
	src   Source
	buf   []byte
	start int
	end   int

	// scanned counts the bytes at the front of the active window already searched
	// for a line terminator, so a refill never rescans them.
	scanned int
	eof     bool
}

func newWindow(src Source) *window {
	return &window{src: src, buf: make([]byte, initialWindowSize)}
}

// checkOpen fails once the source is invalidated, even when bytes are still buffered.
func (w *window) checkOpen() error {
	if sourceClosed(w.src) {
		return gatedio.ErrClosed
	}
	return nil
}

// buffered returns the number of unconsumed bytes.
func (w *window) buffered() int { return w.end - w.start }

// fill pulls more bytes from the source into the free space, sliding or growing
// the buffer first if there is none. It returns io.EOF only when the source is
// exhausted and nothing new was read.
func (w *window) fill(ctx context.Context) error {
	if w.eof {
		return io.EOF
	}
	if w.start == w.end {
		w.start, w.end = 0, 0
	}
	if w.end == len(w.buf) {
		if w.start > 0 {
			w.end = copy(w.buf, w.buf[w.start:w.end])
			w.start = 0
		} else {
			grown := make([]byte, 2*len(w.buf))
			copy(grown, w.buf[:w.end])
			w.buf = grown
		}
	}

	n, err := w.src.ReadContext(ctx, w.buf[w.end:])
	w.end += n
	if errors.Is(err, io.EOF) {
		w.eof = true
		if n > 0 {
			return nil
		}
		return io.EOF
	}
	return err
}

// readLine returns the next line without its "\n" or "\r\n" terminator. The returned
// slice aliases the buffer and is only valid until the next call on w.
//
// At most limit bytes are scanned without finding a terminator before ErrLineTooLong.
// A clean end of data returns io.EOF; end of data inside a line returns
// io.ErrUnexpectedEOF.
func (w *window) readLine(ctx context.Context, limit int) ([]byte, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	for {
		if i := bytes.IndexByte(w.buf[w.start+w.scanned:w.end], '\n'); i >= 0 {
			lineEnd := w.start + w.scanned + i
			line := w.buf[w.start:lineEnd]
			w.start = lineEnd + 1
			w.scanned = 0
			if len(line) > limit {
				return nil, newParseError(ErrLineTooLong, "", line)
			}
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return line, nil
		}

		w.scanned = w.end - w.start
		if w.scanned >= limit {
			return nil, newParseError(ErrLineTooLong, "no line terminator", w.buf[w.start:w.end])
		}
		if err := w.fill(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				if w.start == w.end {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// read copies buffered bytes into p, refilling from the source when the window is
// empty. Large reads against an empty window go straight to the source.
func (w *window) read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if w.start == w.end {
		if w.eof {
			return 0, io.EOF
		}
		if len(p) >= len(w.buf) {
			n, err := w.src.ReadContext(ctx, p)
			if errors.Is(err, io.EOF) {
				w.eof = true
			}
			return n, err
		}
		if err := w.fill(ctx); err != nil {
			return 0, err
		}
	}
	n := copy(p, w.buf[w.start:w.end])
	w.start += n
	w.scanned = 0
	return n, nil
}
