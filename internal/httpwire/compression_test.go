// File: internal/httpwire/compression_test.go
package httpwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Test Helpers --

func compress(t *testing.T, coding string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "zlib":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		t.Fatalf("unknown coding %q", coding)
	}
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func chunkedResponse(header string, body []byte) string {
	return "HTTP/1.1 200 OK\r\n" + header + "Transfer-Encoding: chunked\r\n\r\n" +
		string(encodeChunked(body, []int{10, 33, 1})) // odd chunk layout on purpose
}

func lengthResponse(header string, body []byte) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\n%sContent-Length: %d\r\n\r\n%s", header, len(body), body)
}

// -- Test Cases --

func TestDecompression_RoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200))

	cases := []struct {
		name     string
		coding   string // writer used
		header   string // Content-Encoding value
		wantName string
	}{
		{"gzip", "gzip", "gzip", "gzip"},
		{"deflate zlib framed", "zlib", "deflate", "deflate"},
		{"deflate raw", "raw-deflate", "deflate", "deflate"},
		{"brotli", "br", "br", "br"},
		{"case insensitive", "gzip", "GZIP", "gzip"},
		{"last token wins", "br", "identity, br", "br"},
	}

	p := newTestParser(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := compress(t, tc.coding, payload)
			hdr := "Content-Encoding: " + tc.header + "\r\n"

			for _, raw := range []string{lengthResponse(hdr, encoded), chunkedResponse(hdr, encoded)} {
				resp, err := p.ParseResponse(context.Background(), newTracked(raw), true)
				require.NoError(t, err)
				assert.True(t, resp.Decoded)
				assert.Equal(t, tc.wantName, resp.ContentEncoding)
				// Headers are reported as captured.
				assert.Equal(t, tc.header, resp.Header.Get("Content-Encoding"))
				assert.Equal(t, string(payload), readBody(t, resp.Body))
			}
		})
	}
}

func TestDecompression_RequestBody(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	encoded := compress(t, "gzip", payload)
	raw := fmt.Sprintf("POST /api HTTP/1.1\r\nContent-Encoding: gzip\r\nContent-Length: %d\r\n\r\n%s", len(encoded), encoded)

	p := newTestParser(t)
	req, err := p.ParseRequest(context.Background(), newTracked(raw), true)
	require.NoError(t, err)
	assert.True(t, req.Decoded)
	assert.Equal(t, string(payload), readBody(t, req.Body))
}

func TestDecompression_DisabledLeavesBodyEncoded(t *testing.T) {
	encoded := compress(t, "gzip", []byte("payload"))
	p := newTestParser(t)
	resp, err := p.ParseResponse(context.Background(), newTracked(lengthResponse("Content-Encoding: gzip\r\n", encoded)), false)
	require.NoError(t, err)
	assert.False(t, resp.Decoded)
	assert.Equal(t, string(encoded), readBody(t, resp.Body))
}

func TestDecompression_UnknownCodingPassesThrough(t *testing.T) {
	p := newTestParser(t)
	for _, coding := range []string{"zstd", "identity", "gzip, compress"} {
		resp, err := p.ParseResponse(context.Background(), newTracked(lengthResponse("Content-Encoding: "+coding+"\r\n", []byte("opaque"))), true)
		require.NoError(t, err)
		assert.False(t, resp.Decoded, coding)
		assert.Equal(t, "opaque", readBody(t, resp.Body))
	}
}

func TestDecompression_EmptyEncodedBody(t *testing.T) {
	p := newTestParser(t)
	for _, coding := range []string{"gzip", "deflate", "br"} {
		resp, err := p.ParseResponse(context.Background(), newTracked("HTTP/1.1 304 Not Modified\r\nContent-Encoding: "+coding+"\r\n\r\n"), true)
		require.NoError(t, err)
		assert.Equal(t, "", readBody(t, resp.Body), coding)
	}
}

func TestDecompression_CorruptGzip(t *testing.T) {
	p := newTestParser(t)
	resp, err := p.ParseResponse(context.Background(), newTracked(lengthResponse("Content-Encoding: gzip\r\n", []byte("definitely not gzip"))), true)
	require.NoError(t, err, "decoders start lazily; parsing the head must succeed")

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip initialization error")
	require.NoError(t, resp.Body.Close())
}

func TestDecompression_CloseReleasesSource(t *testing.T) {
	encoded := compress(t, "br", []byte("brotli body"))
	src := newTracked(lengthResponse("Content-Encoding: br\r\n", encoded))

	p := newTestParser(t)
	resp, err := p.ParseResponse(context.Background(), src, true)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, int32(1), src.closes.Load())

	_, err = resp.Body.Read(buf)
	assert.ErrorIs(t, err, ErrBodyClosed)
}

func TestIsZlibHeader(t *testing.T) {
	zl := compress(t, "zlib", []byte("x"))
	assert.True(t, isZlibHeader([2]byte{zl[0], zl[1]}))
	assert.False(t, isZlibHeader([2]byte{0x1f, 0x8b}))
}

func TestContentCoding(t *testing.T) {
	assert.Equal(t, "", contentCoding(Header{}))
	assert.Equal(t, "br", contentCoding(Header{{Name: "content-encoding", Value: "gzip"}, {Name: "Content-Encoding", Value: " BR "}}))
	assert.Equal(t, "gzip", contentCoding(Header{{Name: "Content-Encoding", Value: "deflate, gzip,"}}))
}
