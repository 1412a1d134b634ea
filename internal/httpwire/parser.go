// File: internal/httpwire/parser.go
package httpwire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

// DefaultMaxHeaderBytes bounds the start line and the header block of a message.
const DefaultMaxHeaderBytes = 64 << 10

// HTTPParser reconstructs HTTP/1.x messages from captured byte streams.
// It holds no per-message state and is safe for concurrent use.
type HTTPParser struct {
	logger         *zap.Logger
	maxHeaderBytes int
}

// Option configures an HTTPParser.
type Option func(*HTTPParser)

// WithMaxHeaderBytes sets how many bytes may be scanned for the start line, and for
// the whole header block, before ErrLineTooLong. Non-positive values are ignored.
func WithMaxHeaderBytes(n int) Option {
	return func(p *HTTPParser) {
		if n > 0 {
			p.maxHeaderBytes = n
		}
	}
}

// NewHTTPParser creates a new HTTPParser instance.
func NewHTTPParser(logger *zap.Logger, opts ...Option) *HTTPParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &HTTPParser{
		logger:         logger.Named("http_parser"),
		maxHeaderBytes: DefaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseRequest reads a request line and header block from src and returns the request
// with a lazily consumed body. ctx governs parsing and, unless overridden through
// Body.ReadContext, later body reads.
//
// On success ownership of src moves to Request.Body. On failure src is closed.
func (p *HTTPParser) ParseRequest(ctx context.Context, src Source, decompress bool) (*Request, error) {
	w := newWindow(src)
	budget := p.maxHeaderBytes

	line, err := p.readStartLine(ctx, w, &budget)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	req, err := parseRequestLine(line)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	if req.Header, err = p.readHeader(ctx, w, &budget); err != nil {
		_ = src.Close()
		return nil, err
	}
	if req.Framing, err = selectFraming(req.Header); err != nil {
		_ = src.Close()
		return nil, err
	}

	req.Body = newBody(ctx, req.Framing, w, p.maxHeaderBytes)
	if decompress {
		req.Body, req.ContentEncoding, req.Decoded = p.decode(req.Body, req.Header)
	}

	p.logger.Debug("Parsed request head",
		zap.String("method", req.Method),
		zap.String("target", req.Target),
		zap.Int("headers", len(req.Header)),
		zap.Stringer("framing", req.Framing),
		zap.Bool("decoded", req.Decoded))
	return req, nil
}

// ParseResponse reads a status line and header block from src. Ownership of src
// follows the same rules as ParseRequest.
func (p *HTTPParser) ParseResponse(ctx context.Context, src Source, decompress bool) (*Response, error) {
	w := newWindow(src)
	budget := p.maxHeaderBytes

	line, err := p.readStartLine(ctx, w, &budget)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	resp, err := parseStatusLine(line)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	if resp.Header, err = p.readHeader(ctx, w, &budget); err != nil {
		_ = src.Close()
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		resp.Framing = Framing{Kind: FramingContentLength}
	default:
		if resp.Framing, err = selectFraming(resp.Header); err != nil {
			_ = src.Close()
			return nil, err
		}
	}

	resp.Body = newBody(ctx, resp.Framing, w, p.maxHeaderBytes)
	if decompress {
		resp.Body, resp.ContentEncoding, resp.Decoded = p.decode(resp.Body, resp.Header)
	}

	p.logger.Debug("Parsed response head",
		zap.Int("status", resp.StatusCode),
		zap.Int("headers", len(resp.Header)),
		zap.Stringer("framing", resp.Framing),
		zap.Bool("decoded", resp.Decoded))
	return resp, nil
}

// decode wraps body with the decompressor selected by the last Content-Encoding token.
// Anything other than gzip, deflate or br passes through untouched.
func (p *HTTPParser) decode(body io.ReadCloser, h Header) (io.ReadCloser, string, bool) {
	coding := contentCoding(h)
	if !isDecodable(coding) {
		if coding != "" && coding != "identity" {
			p.logger.Warn("Content-Encoding not decoded; body passed through", zap.String("coding", coding))
		}
		return body, "", false
	}
	return newDecodingBody(body, coding), coding, true
}

// -- Start line --

func (p *HTTPParser) readStartLine(ctx context.Context, w *window, budget *int) ([]byte, error) {
	line, err := w.readLine(ctx, *budget)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return nil, newParseError(ErrMalformedStartLine, "empty message", nil)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, newParseError(ErrMalformedStartLine, "unterminated start line", w.buf[w.start:w.end])
	default:
		return nil, err
	}
	*budget -= len(line) + 2
	return line, nil
}

// parseRequestLine splits on the first space for the method and on the last space
// for the version, so the target may itself contain spaces.
func parseRequestLine(line []byte) (*Request, error) {
	first := bytes.IndexByte(line, ' ')
	last := bytes.LastIndexByte(line, ' ')
	if first <= 0 {
		return nil, newParseError(ErrMalformedStartLine, "absent method", line)
	}
	if last == first || last == first+1 {
		return nil, newParseError(ErrMalformedStartLine, "absent target", line)
	}
	version, ok := parseVersion(line[last+1:])
	if !ok {
		return nil, newParseError(ErrMalformedStartLine, "bad version", line)
	}
	return &Request{
		Method:  string(line[:first]),
		Target:  string(line[first+1 : last]),
		Version: version,
	}, nil
}

// parseStatusLine splits on the first run of spaces for the version, then takes a
// three-digit status code and the rest of the line as the reason phrase.
func parseStatusLine(line []byte) (*Response, error) {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return nil, newParseError(ErrMalformedStartLine, "absent status code", line)
	}
	version, ok := parseVersion(line[:sp])
	if !ok {
		return nil, newParseError(ErrMalformedStartLine, "bad version", line)
	}

	rest := bytes.TrimLeft(line[sp:], " ")
	code, reason := rest, []byte(nil)
	if i := bytes.IndexByte(rest, ' '); i >= 0 {
		code, reason = rest[:i], bytes.TrimLeft(rest[i+1:], " ")
	}
	if len(code) != 3 {
		return nil, newParseError(ErrMalformedStartLine, "bad status code", line)
	}
	status, err := strconv.Atoi(string(code))
	if err != nil || status < 100 {
		return nil, newParseError(ErrMalformedStartLine, "bad status code", line)
	}
	if status < 200 {
		return nil, newParseError(ErrUnsupportedInformationalStatus, "", line)
	}
	return &Response{
		Version:    version,
		StatusCode: status,
		Reason:     string(reason),
	}, nil
}

func parseVersion(b []byte) (Version, bool) {
	major, minor, ok := http.ParseHTTPVersion(string(b))
	if !ok {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}

// -- Header block --

// readHeader reads header lines up to the empty line that ends the block. The whole
// block shares the remaining byte budget left over from the start line.
func (p *HTTPParser) readHeader(ctx context.Context, w *window, budget *int) (Header, error) {
	h := make(Header, 0, 16)
	for {
		line, err := w.readLine(ctx, *budget)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncatedHeader
			}
			return nil, err
		}
		*budget -= len(line) + 2
		if len(line) == 0 {
			return h, nil
		}

		// obs-fold: a continuation line extends the previous field value.
		if line[0] == ' ' || line[0] == '\t' {
			if len(h) == 0 {
				return nil, newParseError(ErrMalformedHeaderLine, "continuation before first field", line)
			}
			last := &h[len(h)-1]
			if v := strings.Trim(string(line), " \t"); v != "" {
				if last.Value == "" {
					last.Value = v
				} else {
					last.Value += " " + v
				}
			}
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, newParseError(ErrMalformedHeaderLine, "missing colon", line)
		}
		if colon == 0 {
			return nil, newParseError(ErrMalformedHeaderLine, "empty field name", line)
		}
		// Whitespace before the colon is rejected, so "Content-Length : 5" cannot
		// slip past framing selection.
		name := string(line[:colon])
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, newParseError(ErrMalformedHeaderLine, "invalid field name", line)
		}
		h = append(h, Field{
			Name:  name,
			Value: strings.Trim(string(line[colon+1:]), " \t"),
		})
	}
}

// -- Framing --

// selectFraming chooses the body framing from the headers alone: chunked wins over
// any Content-Length, then Content-Length, then read-to-end.
func selectFraming(h Header) (Framing, error) {
	if httpguts.HeaderValuesContainsToken(h.Values("Transfer-Encoding"), "chunked") {
		return Framing{Kind: FramingChunked}, nil
	}

	values := h.Values("Content-Length")
	if len(values) == 0 {
		return Framing{Kind: FramingConnectionClose}, nil
	}

	var (
		length uint64
		seen   bool
	)
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			n, err := strconv.ParseUint(tok, 10, 64)
			if err != nil {
				return Framing{}, newParseError(ErrMalformedHeaderLine, "invalid Content-Length", []byte("Content-Length: "+v))
			}
			if seen && n != length {
				return Framing{}, newParseError(ErrMalformedHeaderLine, "conflicting Content-Length", []byte("Content-Length: "+v))
			}
			length, seen = n, true
		}
	}
	return Framing{Kind: FramingContentLength, Length: length}, nil
}
