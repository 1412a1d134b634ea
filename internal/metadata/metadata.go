// File: internal/metadata/metadata.go
package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

var (
	// ErrMissingRoot is returned when the document has no root element.
	ErrMissingRoot = errors.New("metadata: no root XML element")
	// ErrInvalidValue is returned when a recognised attribute cannot be converted.
	ErrInvalidValue = errors.New("metadata: invalid attribute value")
	// ErrMalformedFlag is returned for a session flag missing N or V, or a duplicate name.
	ErrMalformedFlag = errors.New("metadata: malformed session flag")
)

// Metadata is the sidecar describing one captured session.
// Attributes and child elements that are not recognised are kept, not dropped.
type Metadata struct {
	SID      string
	BitFlags uint32

	Timers     *Timers
	PipeInfo   *PipeInfo
	TunnelInfo *TunnelInfo
	Flags      *Flags

	Unrecognized         map[string]string
	UnrecognizedChildren []*etree.Element
}

// Parse reads one XML document from r.
func Parse(r io.Reader) (*Metadata, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		// Errors from r itself (cancellation, a closed archive) pass through as is.
		var syntaxErr *xml.SyntaxError
		if doc.Root() == nil && errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %w", ErrMissingRoot, err)
		}
		return nil, fmt.Errorf("metadata: reading XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrMissingRoot
	}
	return FromElement(root)
}

// FromElement maps a session root element onto Metadata.
func FromElement(el *etree.Element) (*Metadata, error) {
	m := &Metadata{Unrecognized: map[string]string{}}

	for _, attr := range el.Attr {
		switch localName(attr) {
		case "SID":
			m.SID = attr.Value
		case "BitFlags":
			v, err := strconv.ParseUint(attr.Value, 16, 32)
			if err != nil {
				return nil, invalid(el, attr, err)
			}
			m.BitFlags = uint32(v)
		default:
			m.Unrecognized[attr.FullKey()] = attr.Value
		}
	}

	var err error
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "SessionTimers":
			m.Timers, err = timersFromElement(child)
		case "PipeInfo":
			m.PipeInfo, err = pipeInfoFromElement(child)
		case "TunnelInfo":
			m.TunnelInfo, err = tunnelInfoFromElement(child)
		case "SessionFlags":
			m.Flags, err = flagsFromElement(child)
		default:
			m.UnrecognizedChildren = append(m.UnrecognizedChildren, child.Copy())
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// -- Attribute conversions --

func localName(attr etree.Attr) string {
	if attr.Space != "" {
		return ""
	}
	return attr.Key
}

func invalid(el *etree.Element, attr etree.Attr, err error) error {
	return fmt.Errorf("%w: %s@%s=%q: %v", ErrInvalidValue, el.Tag, attr.FullKey(), attr.Value, err)
}

// noOffsetLayout matches timestamps written without a UTC offset; they are read as UTC.
const noOffsetLayout = "2006-01-02T15:04:05.999999999"

func parseTimestamp(el *etree.Element, attr etree.Attr) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, attr.Value)
	if err != nil {
		var err2 error
		if t, err2 = time.ParseInLocation(noOffsetLayout, attr.Value, time.UTC); err2 != nil {
			return nil, invalid(el, attr, err)
		}
	}
	return &t, nil
}

// parseMillis reads a duration written as a (possibly fractional) number of milliseconds.
func parseMillis(el *etree.Element, attr etree.Attr) (*time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
	if err != nil {
		return nil, invalid(el, attr, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(el, attr, errors.New("not a finite number"))
	}
	d := time.Duration(f * float64(time.Millisecond))
	return &d, nil
}

// parseBool accepts only "true" or "false", in any letter case.
func parseBool(el *etree.Element, attr etree.Attr) (*bool, error) {
	var b bool
	switch {
	case strings.EqualFold(attr.Value, "true"):
		b = true
	case strings.EqualFold(attr.Value, "false"):
		b = false
	default:
		return nil, invalid(el, attr, errors.New("expected true or false"))
	}
	return &b, nil
}

func parseInt64(el *etree.Element, attr etree.Attr) (*int64, error) {
	n, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return nil, invalid(el, attr, err)
	}
	return &n, nil
}
