// File: internal/metadata/sections.go
package metadata

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
)

// Timers holds the SessionTimers element. Nil fields were absent.
type Timers struct {
	ClientConnected     *time.Time
	ClientBeginRequest  *time.Time
	GotRequestHeaders   *time.Time
	ClientDoneRequest   *time.Time
	GatewayTime         *time.Duration
	DNSTime             *time.Duration
	TCPConnectTime      *time.Duration
	HTTPSHandshakeTime  *time.Duration
	ServerConnected     *time.Time
	FiddlerBeginRequest *time.Time
	ServerGotRequest    *time.Time
	ServerBeginResponse *time.Time
	GotResponseHeaders  *time.Time
	ServerDoneResponse  *time.Time
	ClientBeginResponse *time.Time
	ClientDoneResponse  *time.Time

	Unrecognized map[string]string
}

func timersFromElement(el *etree.Element) (*Timers, error) {
	t := &Timers{Unrecognized: map[string]string{}}

	stamps := map[string]**time.Time{
		"ClientConnected":     &t.ClientConnected,
		"ClientBeginRequest":  &t.ClientBeginRequest,
		"GotRequestHeaders":   &t.GotRequestHeaders,
		"ClientDoneRequest":   &t.ClientDoneRequest,
		"ServerConnected":     &t.ServerConnected,
		"FiddlerBeginRequest": &t.FiddlerBeginRequest,
		"ServerGotRequest":    &t.ServerGotRequest,
		"ServerBeginResponse": &t.ServerBeginResponse,
		"GotResponseHeaders":  &t.GotResponseHeaders,
		"ServerDoneResponse":  &t.ServerDoneResponse,
		"ClientBeginResponse": &t.ClientBeginResponse,
		"ClientDoneResponse":  &t.ClientDoneResponse,
	}
	durations := map[string]**time.Duration{
		"GatewayTime":        &t.GatewayTime,
		"DNSTime":            &t.DNSTime,
		"TCPConnectTime":     &t.TCPConnectTime,
		"HTTPSHandshakeTime": &t.HTTPSHandshakeTime,
	}

	for _, attr := range el.Attr {
		name := localName(attr)
		if dst, ok := stamps[name]; ok {
			v, err := parseTimestamp(el, attr)
			if err != nil {
				return nil, err
			}
			*dst = v
			continue
		}
		if dst, ok := durations[name]; ok {
			v, err := parseMillis(el, attr)
			if err != nil {
				return nil, err
			}
			*dst = v
			continue
		}
		t.Unrecognized[attr.FullKey()] = attr.Value
	}
	return t, nil
}

// PipeInfo describes connection reuse.
type PipeInfo struct {
	CltReuse *bool
	Reused   *bool

	Unrecognized map[string]string
}

func pipeInfoFromElement(el *etree.Element) (*PipeInfo, error) {
	p := &PipeInfo{Unrecognized: map[string]string{}}
	for _, attr := range el.Attr {
		var err error
		switch localName(attr) {
		case "CltReuse":
			p.CltReuse, err = parseBool(el, attr)
		case "Reused":
			p.Reused, err = parseBool(el, attr)
		default:
			p.Unrecognized[attr.FullKey()] = attr.Value
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// TunnelInfo carries the byte counters of a CONNECT tunnel.
type TunnelInfo struct {
	BytesEgress  *int64
	BytesIngress *int64

	Unrecognized map[string]string
}

func tunnelInfoFromElement(el *etree.Element) (*TunnelInfo, error) {
	ti := &TunnelInfo{Unrecognized: map[string]string{}}
	for _, attr := range el.Attr {
		var err error
		switch localName(attr) {
		case "BytesEgress":
			ti.BytesEgress, err = parseInt64(el, attr)
		case "BytesIngress":
			ti.BytesIngress, err = parseInt64(el, attr)
		default:
			ti.Unrecognized[attr.FullKey()] = attr.Value
		}
		if err != nil {
			return nil, err
		}
	}
	return ti, nil
}

// Flag is one SessionFlag name/value pair.
type Flag struct {
	Name  string
	Value string
}

// Flags is the ordered SessionFlags block.
type Flags struct {
	Entries              []Flag
	UnrecognizedChildren []*etree.Element
}

// Get returns the value of the named flag.
func (f *Flags) Get(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, e := range f.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

func flagsFromElement(el *etree.Element) (*Flags, error) {
	f := &Flags{}
	seen := map[string]bool{}
	for _, child := range el.ChildElements() {
		if child.Tag != "SessionFlag" {
			f.UnrecognizedChildren = append(f.UnrecognizedChildren, child.Copy())
			continue
		}
		name := child.SelectAttr("N")
		value := child.SelectAttr("V")
		if name == nil || value == nil {
			return nil, fmt.Errorf("%w: %s element is missing required attributes", ErrMalformedFlag, child.Tag)
		}
		if seen[name.Value] {
			return nil, fmt.Errorf("%w: duplicate flag %q", ErrMalformedFlag, name.Value)
		}
		seen[name.Value] = true
		f.Entries = append(f.Entries, Flag{Name: name.Value, Value: value.Value})
	}
	return f, nil
}
