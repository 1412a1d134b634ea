// File: internal/httpwire/errors.go
package httpwire

import (
	"errors"
	"fmt"
	"os"
)

// ErrMessageFormat is the category of every error caused by bytes that do not form a
// well-framed HTTP/1.x message. All the more specific errors below wrap it.
var ErrMessageFormat = errors.New("malformed HTTP message")

var (
	ErrLineTooLong                    = fmt.Errorf("%w: line too long", ErrMessageFormat)
	ErrMalformedStartLine             = fmt.Errorf("%w: bad start line", ErrMessageFormat)
	ErrMalformedHeaderLine            = fmt.Errorf("%w: bad header line", ErrMessageFormat)
	ErrMalformedChunkSize             = fmt.Errorf("%w: bad chunk framing", ErrMessageFormat)
	ErrTruncatedBody                  = fmt.Errorf("%w: truncated body", ErrMessageFormat)
	ErrTruncatedHeader                = fmt.Errorf("%w: truncated header block", ErrMessageFormat)
	ErrUnsupportedInformationalStatus = fmt.Errorf("%w: informational (1xx) status not supported", ErrMessageFormat)
)

// ErrBodyClosed is returned when reading a body after Close.
var ErrBodyClosed = fmt.Errorf("httpwire: read on closed body: %w", os.ErrClosed)

// ParseError carries the raw line that could not be parsed.
type ParseError struct {
	Err    error  // one of the Err* sentinels above
	Reason string // short human-readable detail, may be empty
	Line   string // offending raw line, truncated for very long input
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Line)
	}
	return fmt.Sprintf("%v: %s: %q", e.Err, e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxDiagnosticLine bounds how much of an offending line is kept in a ParseError.
const maxDiagnosticLine = 256

func newParseError(kind error, reason string, line []byte) *ParseError {
	if len(line) > maxDiagnosticLine {
		line = line[:maxDiagnosticLine]
	}
	return &ParseError{Err: kind, Reason: reason, Line: string(line)}
}
