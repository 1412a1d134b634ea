// File: internal/httpwire/body.go
package httpwire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/xkilldash9x/saz-cli/internal/gatedio"
)

// frameReader yields the body bytes of one framing strategy.
type frameReader interface {
	readContext(ctx context.Context, p []byte) (int, error)
}

// Body is the lazily consumed payload of a parsed message. Reads through Read use the
// context the message was parsed with; ReadContext overrides it per call.
type Body struct {
	ctx     context.Context
	framing Framing
	fr      frameReader
	src     io.Closer

	mu       sync.Mutex
	closed   bool
	closeErr error
}

func newBody(ctx context.Context, framing Framing, w *window, maxLine int) *Body {
	b := &Body{ctx: ctx, framing: framing, src: w.src}
	switch framing.Kind {
	case FramingChunked:
		b.fr = &chunkedReader{w: w, maxLine: maxLine}
	case FramingContentLength:
		b.fr = &lengthReader{w: w, remaining: framing.Length}
	default:
		b.fr = &closeReader{w: w}
	}
	return b
}

// Framing reports the strategy this body was framed with.
func (b *Body) Framing() Framing { return b.framing }

func (b *Body) Read(p []byte) (int, error) {
	return b.ReadContext(b.ctx, p)
}

// ReadContext reads body bytes, honouring ctx while waiting on the source.
func (b *Body) ReadContext(ctx context.Context, p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBodyClosed
	}
	if sourceClosed(b.src) {
		return 0, gatedio.ErrClosed
	}
	return b.fr.readContext(ctx, p)
}

// Closed reports whether the body was closed or its source invalidated.
func (b *Body) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed || sourceClosed(b.src)
}

// Close releases the underlying source exactly once.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.closeErr = b.src.Close()
	}
	return b.closeErr
}

// -- Content-Length --

// lengthReader yields at most remaining bytes and never reads past them.
type lengthReader struct {
	w         *window
	remaining uint64
}

func (r *lengthReader) readContext(ctx context.Context, p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.w.read(ctx, p)
	r.remaining -= uint64(n)
	if errors.Is(err, io.EOF) {
		if r.remaining > 0 {
			return n, ErrTruncatedBody
		}
		err = nil
	}
	if err == nil && r.remaining == 0 {
		return n, io.EOF
	}
	return n, err
}

// -- Connection close --

// closeReader forwards every remaining byte of the source.
type closeReader struct {
	w *window
}

func (r *closeReader) readContext(ctx context.Context, p []byte) (int, error) {
	return r.w.read(ctx, p)
}

// -- Chunked --

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
	chunkDone
)

// chunkedReader decodes chunked transfer-coding one chunk at a time.
type chunkedReader struct {
	w         *window
	maxLine   int
	state     chunkState
	remaining uint64
	err       error // sticky
}

func (r *chunkedReader) readContext(ctx context.Context, p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		switch r.state {
		case chunkSize:
			line, err := r.w.readLine(ctx, r.maxLine)
			if err != nil {
				return 0, r.fail(truncatedOr(err))
			}
			size, err := parseChunkSize(line)
			if err != nil {
				return 0, r.fail(err)
			}
			if size == 0 {
				r.state = chunkTrailer
				continue
			}
			r.remaining = size
			r.state = chunkData

		case chunkData:
			want := p
			if uint64(len(want)) > r.remaining {
				want = want[:r.remaining]
			}
			n, err := r.w.read(ctx, want)
			r.remaining -= uint64(n)
			if r.remaining == 0 {
				r.state = chunkDataEnd
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					if r.remaining > 0 {
						return n, r.fail(ErrTruncatedBody)
					}
					// The data is complete; the missing CRLF surfaces on the next read.
					return n, nil
				}
				return n, r.fail(err)
			}
			return n, nil

		case chunkDataEnd:
			line, err := r.w.readLine(ctx, r.maxLine)
			if err != nil {
				return 0, r.fail(truncatedOr(err))
			}
			if len(line) != 0 {
				return 0, r.fail(newParseError(ErrMalformedChunkSize, "missing CRLF after chunk data", line))
			}
			r.state = chunkSize

		case chunkTrailer:
			line, err := r.w.readLine(ctx, r.maxLine)
			// The blob may end anywhere in the trailer section; the body is complete.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || (err == nil && len(line) == 0) {
				r.state = chunkDone
				continue
			}
			if err != nil {
				return 0, r.fail(err)
			}
			// Trailer fields are consumed and discarded.

		case chunkDone:
			return 0, io.EOF
		}
	}
}

// fail records framing errors as sticky. Cancellation is not sticky: a cancelled
// read never consumed bytes, so the decoder state is still consistent.
func (r *chunkedReader) fail(err error) error {
	if errors.Is(err, ErrMessageFormat) {
		r.err = err
	}
	return err
}

// truncatedOr maps end-of-data conditions onto ErrTruncatedBody.
func truncatedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncatedBody
	}
	return err
}

// parseChunkSize parses a hexadecimal chunk-size line, ignoring chunk extensions.
func parseChunkSize(line []byte) (uint64, error) {
	raw := line
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.Trim(line, " \t")
	if len(line) == 0 {
		return 0, newParseError(ErrMalformedChunkSize, "invalid chunk size", raw)
	}
	// Leading zeros do not count towards the 64-bit limit.
	if digits := bytes.TrimLeft(line, "0"); len(digits) == 0 {
		line = line[len(line)-1:]
	} else {
		line = digits
	}
	if len(line) > 16 {
		return 0, newParseError(ErrMalformedChunkSize, "invalid chunk size", raw)
	}
	size, err := strconv.ParseUint(string(line), 16, 64)
	if err != nil {
		return 0, newParseError(ErrMalformedChunkSize, "invalid chunk size", raw)
	}
	return size, nil
}
