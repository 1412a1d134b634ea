// File: internal/httpwire/body_test.go
package httpwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Test Helpers --

// bodyOf builds a Body directly over raw body bytes with the given framing.
func bodyOf(raw string, framing Framing) *Body {
	src := newTracked(raw)
	return newBody(context.Background(), framing, newWindow(src), DefaultMaxHeaderBytes)
}

// encodeChunked frames payload using the given chunk sizes; any remainder goes
// into a final chunk.
func encodeChunked(payload []byte, sizes []int) []byte {
	var buf bytes.Buffer
	for _, size := range sizes {
		if len(payload) == 0 {
			break
		}
		if size <= 0 {
			continue
		}
		if size > len(payload) {
			size = len(payload)
		}
		fmt.Fprintf(&buf, "%x\r\n", size)
		buf.Write(payload[:size])
		buf.WriteString("\r\n")
		payload = payload[size:]
	}
	if len(payload) > 0 {
		fmt.Fprintf(&buf, "%X\r\n", len(payload))
		buf.Write(payload)
		buf.WriteString("\r\n")
	}
	buf.WriteString("0\r\n\r\n")
	return buf.Bytes()
}

// -- Chunked --

func TestChunked_WikipediaExample(t *testing.T) {
	b := bodyOf("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n", Framing{Kind: FramingChunked})
	assert.Equal(t, "Wikipedia", readBody(t, b))
}

func TestChunked_ExtensionsAndTrailers(t *testing.T) {
	raw := "4;name=value\r\nWiki\r\n5 ; x\r\npedia\r\n0\r\nExpires: never\r\nX-Trailer: 1\r\n\r\nNEXT MESSAGE"
	b := bodyOf(raw, Framing{Kind: FramingChunked})
	assert.Equal(t, "Wikipedia", readBody(t, b))
}

func TestChunked_ToleratesMissingFinalCRLF(t *testing.T) {
	b := bodyOf("3\r\nabc\r\n0\r\n", Framing{Kind: FramingChunked})
	assert.Equal(t, "abc", readBody(t, b))

	b = bodyOf("3\r\nabc\r\n0\r\nX-Partial: tr", Framing{Kind: FramingChunked})
	assert.Equal(t, "abc", readBody(t, b))
}

func TestChunked_LeadingZerosInSize(t *testing.T) {
	b := bodyOf("00000000000000000005\r\nhello\r\n00000000000000000000\r\n\r\n", Framing{Kind: FramingChunked})
	assert.Equal(t, "hello", readBody(t, b))
}

func TestChunked_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"non hex size", "zz\r\nabc\r\n0\r\n\r\n", ErrMalformedChunkSize},
		{"empty size line", "\r\nabc\r\n", ErrMalformedChunkSize},
		{"overflowing size", "11111111111111111\r\n", ErrMalformedChunkSize},
		{"missing CRLF after data", "3\r\nabcX\r\n0\r\n\r\n", ErrMalformedChunkSize},
		{"short chunk data", "a\r\nabc", ErrTruncatedBody},
		{"no terminating chunk", "3\r\nabc\r\n", ErrTruncatedBody},
		{"unterminated size line", "3", ErrTruncatedBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := bodyOf(tc.raw, Framing{Kind: FramingChunked})
			_, err := io.ReadAll(b)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrMessageFormat)

			// Framing errors are sticky.
			_, again := b.Read(make([]byte, 8))
			assert.ErrorIs(t, again, tc.want)
		})
	}
}

func TestChunked_SmallReadBuffers(t *testing.T) {
	payload := strings.Repeat("abcdefghij", 50)
	raw := encodeChunked([]byte(payload), []int{1, 7, 100, 3, 250})
	b := bodyOf(string(raw), Framing{Kind: FramingChunked})

	var got bytes.Buffer
	buf := make([]byte, 3)
	for {
		n, err := b.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, payload, got.String())
}

func TestChunked_CancellationIsNotSticky(t *testing.T) {
	b := bodyOf("4\r\nWiki\r\n0\r\n\r\n", Framing{Kind: FramingChunked})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.ReadContext(ctx, make([]byte, 8))
	require.ErrorIs(t, err, context.Canceled)

	// The same stream is still intact for a caller with a live context.
	assert.Equal(t, "Wiki", readBody(t, b))
}

// FuzzChunkedDecoding checks that the decoded body is independent of how the
// payload is split into chunks. The fuzz input drives both the payload and the
// chunk layout.
func FuzzChunkedDecoding(f *testing.F) {
	f.Add([]byte("Wikipedia in chunks"))
	f.Add([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		payload, err := consumer.GetBytes()
		if err != nil {
			return
		}
		var sizes []int
		for i := 0; i < 32; i++ {
			n, err := consumer.GetUint16()
			if err != nil {
				break
			}
			sizes = append(sizes, int(n%512))
		}

		raw := encodeChunked(payload, sizes)
		b := bodyOf(string(raw), Framing{Kind: FramingChunked})
		got, err := io.ReadAll(b)
		require.NoError(t, err)
		require.True(t, bytes.Equal(payload, got), "decoded %d bytes, want %d", len(got), len(payload))
	})
}

// -- Content-Length --

func TestContentLength_NeverOverReads(t *testing.T) {
	src := newTracked("hello, and then some garbage that belongs to nobody")
	w := newWindow(src)
	b := newBody(context.Background(), Framing{Kind: FramingContentLength, Length: 5}, w, DefaultMaxHeaderBytes)

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// Bytes beyond the declared length are still unconsumed.
	rest, err := io.ReadAll(readerFunc(func(p []byte) (int, error) { return w.read(context.Background(), p) }))
	require.NoError(t, err)
	assert.Equal(t, ", and then some garbage that belongs to nobody", string(rest))
}

func TestContentLength_Truncated(t *testing.T) {
	b := bodyOf("hel", Framing{Kind: FramingContentLength, Length: 5})
	got, err := io.ReadAll(b)
	assert.ErrorIs(t, err, ErrTruncatedBody)
	assert.Equal(t, "hel", string(got))
}

func TestContentLength_LargeBodyDirectReads(t *testing.T) {
	payload := strings.Repeat("x", 3*initialWindowSize+17)
	b := bodyOf(payload+"tail", Framing{Kind: FramingContentLength, Length: uint64(len(payload))})

	buf := make([]byte, 2*initialWindowSize)
	var got bytes.Buffer
	_, err := io.CopyBuffer(struct{ io.Writer }{&got}, struct{ io.Reader }{b}, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got.String())
}

// -- Connection close --

func TestConnectionClose_ConsumesEverything(t *testing.T) {
	payload := strings.Repeat("0123456789", 1000)
	b := bodyOf(payload, Framing{Kind: FramingConnectionClose})
	assert.Equal(t, payload, readBody(t, b))
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
