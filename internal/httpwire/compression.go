// File: internal/httpwire/compression.go
package httpwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/xkilldash9x/saz-cli/internal/gatedio"
)

// Pools for decompression readers to reduce allocation overhead across sessions.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			// Allocated empty; every use goes through Reset first.
			return new(gzip.Reader)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used for safely resetting pooled readers.
var emptyReader = strings.NewReader("")

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		// The allocation is still reusable; the next Reset re-initializes it.
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	if zr == nil {
		return
	}
	// Reset against an empty reader drops the reference to the old body; the
	// resulting io.EOF is expected.
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) (*brotli.Reader, error) {
	br := brotliReaderPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brotliReaderPool.Put(br)
		return nil, err
	}
	return br, nil
}

func putBrotliReader(br *brotli.Reader) {
	if br == nil {
		return
	}
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// contentCoding returns the last coding named by the Content-Encoding header(s),
// lowercased, or "" when there is none.
func contentCoding(h Header) string {
	last := ""
	for _, v := range h.Values("Content-Encoding") {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				last = tok
			}
		}
	}
	return strings.ToLower(last)
}

// isDecodable reports whether coding selects one of the supported decompressors.
func isDecodable(coding string) bool {
	switch coding {
	case "gzip", "deflate", "br":
		return true
	}
	return false
}

// decodingBody decompresses a body stream. The decoder is created on the first Read,
// so parsing a message never touches its body and nothing is buffered eagerly.
type decodingBody struct {
	src    io.ReadCloser
	coding string

	dec          io.Reader
	decCloser    io.Closer
	poolCallback func()
	err          error // sticky
}

func newDecodingBody(src io.ReadCloser, coding string) *decodingBody {
	return &decodingBody{src: src, coding: coding}
}

func (d *decodingBody) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	// The decoder may hold decoded bytes of its own.
	if sourceClosed(d.src) {
		return 0, gatedio.ErrClosed
	}
	if d.dec == nil {
		if err := d.init(); err != nil {
			// A cancelled read consumed nothing; let the caller retry.
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				d.err = err
			}
			return 0, err
		}
	}
	n, err := d.dec.Read(p)
	if errors.Is(err, ErrMessageFormat) {
		d.err = err
	}
	return n, err
}

func (d *decodingBody) init() error {
	// An empty encoded body decodes to an empty body, whatever the coding.
	var first [1]byte
	n, err := io.ReadFull(d.src, first[:])
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return err
	}
	src := io.MultiReader(bytes.NewReader(first[:n]), d.src)

	switch d.coding {
	case "gzip":
		zr, err := getGzipReader(src)
		if err != nil {
			return fmt.Errorf("gzip initialization error: %w", err)
		}
		d.dec = zr
		d.poolCallback = func() { putGzipReader(zr) }

	case "deflate":
		rc, err := tryDeflate(src)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("deflate initialization error: %w", err)
		}
		d.dec = rc
		d.decCloser = rc

	case "br":
		br, err := getBrotliReader(src)
		if err != nil {
			return fmt.Errorf("brotli initialization error: %w", err)
		}
		d.dec = br
		d.poolCallback = func() { putBrotliReader(br) }

	default:
		return fmt.Errorf("unsupported content coding %q", d.coding)
	}
	return nil
}

// Close returns pooled readers, closes the decoder and then the original body.
func (d *decodingBody) Close() error {
	if d.poolCallback != nil {
		d.poolCallback()
		d.poolCallback = nil
	}
	var err1 error
	if d.decCloser != nil {
		err1 = d.decCloser.Close()
		d.decCloser = nil
	}
	if d.err == nil {
		d.err = ErrBodyClosed
	}
	err2 := d.src.Close()
	return errors.Join(err1, err2)
}

// --- Robust Deflate Handling ---

// tryDeflate decodes zlib-wrapped DEFLATE (RFC 1950) when the stream starts with a
// valid zlib header, and raw DEFLATE (RFC 1951) otherwise. Servers send both under
// "deflate".
func tryDeflate(r io.Reader) (io.ReadCloser, error) {
	var hdr [2]byte
	n, err := io.ReadFull(r, hdr[:])
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	prefixed := io.MultiReader(bytes.NewReader(hdr[:n]), r)

	if n == 2 && isZlibHeader(hdr) {
		return zlib.NewReader(prefixed)
	}
	return flate.NewReader(prefixed), nil
}

// isZlibHeader checks the CMF/FLG pair: deflate method and a valid check value.
func isZlibHeader(hdr [2]byte) bool {
	return hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0
}
