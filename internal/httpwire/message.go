// File: internal/httpwire/message.go
package httpwire

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Field is a single header line as it appeared on the wire.
type Field struct {
	Name  string
	Value string
}

// Header is the ordered list of header fields of a message. Original casing, order
// and duplicates are preserved; lookups are case-insensitive.
type Header []Field

// Get returns the value of the first field named name, or "".
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the values of every field named name, in wire order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether at least one field is named name.
func (h Header) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Version is an HTTP/<major>.<minor> protocol version.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// FramingKind selects how the end of a message body is found.
type FramingKind uint8

const (
	// FramingConnectionClose reads until the captured blob ends.
	FramingConnectionClose FramingKind = iota
	// FramingContentLength reads exactly Framing.Length bytes.
	FramingContentLength
	// FramingChunked decodes chunked transfer-coding.
	FramingChunked
)

// Framing is the body framing chosen for a message once its headers are parsed.
// Length is only meaningful for FramingContentLength.
type Framing struct {
	Kind   FramingKind
	Length uint64
}

func (f Framing) String() string {
	switch f.Kind {
	case FramingChunked:
		return "chunked"
	case FramingContentLength:
		return fmt.Sprintf("content-length(%d)", f.Length)
	default:
		return "connection-close"
	}
}

// Request is a reconstructed HTTP/1.x request.
type Request struct {
	Method  string
	Target  string
	Version Version
	Header  Header
	Framing Framing

	// Body is always non-nil and must be closed by the caller; closing it releases
	// the underlying entry stream.
	Body io.ReadCloser

	// ContentEncoding is the coding Body is decoded from, when Decoded is true.
	ContentEncoding string
	Decoded         bool
}

// StartLine renders the request line without a terminator.
func (r *Request) StartLine() string {
	return r.Method + " " + r.Target + " " + r.Version.String()
}

// Response is a reconstructed HTTP/1.x response.
type Response struct {
	Version    Version
	StatusCode int
	Reason     string
	Header     Header
	Framing    Framing

	// Body is always non-nil and must be closed by the caller.
	Body io.ReadCloser

	ContentEncoding string
	Decoded         bool
}

// StartLine renders the status line without a terminator.
func (r *Response) StartLine() string {
	line := r.Version.String() + " " + strconv.Itoa(r.StatusCode)
	if r.Reason != "" {
		line += " " + r.Reason
	}
	return line
}
