// File: internal/gatedio/reader.go
package gatedio

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Reader wraps a sequential, read-only, non-seekable stream so that every physical
// read first acquires a shared Gate and releases it immediately afterwards.
//
// Read and ReadByte are the blocking forms; ReadContext and ReadByteContext honour
// cancellation while waiting for the gate. Both forms gate identically.
// A Reader is not safe for concurrent use by multiple goroutines; distinct Readers
// sharing a Gate are.
type Reader struct {
	inner io.ReadCloser
	gate  *Gate

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Compile-time checks that Reader satisfies the standard interfaces it advertises.
var (
	_ io.ReadCloser = (*Reader)(nil)
	_ io.ByteReader = (*Reader)(nil)
	_ io.Seeker     = (*Reader)(nil)
	_ io.Writer     = (*Reader)(nil)
)

// NewReader wraps inner. Both arguments are required.
func NewReader(inner io.ReadCloser, gate *Gate) *Reader {
	if inner == nil {
		panic("gatedio: nil inner stream")
	}
	if gate == nil {
		panic("gatedio: nil gate")
	}
	return &Reader{inner: inner, gate: gate}
}

// Read is the blocking form of ReadContext.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext acquires the gate, delegates one Read to the wrapped stream and releases
// the gate. It returns io.EOF once the wrapped stream is exhausted.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.gate.Acquire(ctx); err != nil {
		return 0, err
	}
	defer r.gate.Release()
	return r.inner.Read(p)
}

// ReadByte is the blocking form of ReadByteContext.
func (r *Reader) ReadByte() (byte, error) {
	return r.ReadByteContext(context.Background())
}

// ReadByteContext reads exactly one byte under the gate.
func (r *Reader) ReadByteContext(ctx context.Context) (byte, error) {
	var b [1]byte
	for {
		n, err := r.ReadContext(ctx, b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
		// A (0, nil) read is legal for io.Reader; ask again.
	}
}

// Seek is not supported.
func (r *Reader) Seek(int64, int) (int64, error) {
	return 0, ErrUnsupported
}

// Write is not supported.
func (r *Reader) Write([]byte) (int, error) {
	return 0, ErrUnsupported
}

// Size is not supported; the wrapped stream has no known length.
func (r *Reader) Size() (int64, error) {
	return 0, ErrUnsupported
}

// Close releases the wrapped stream exactly once. Later reads fail with ErrClosed.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.inner.Close()
	})
	return r.closeErr
}

// Closed reports whether the Reader or its Gate has been closed. Callers that buffer
// bytes read from r use it to stop serving them once the owner invalidates r.
func (r *Reader) Closed() bool {
	return r.closed.Load() || r.gate.Closed()
}

// IsResourceError reports whether err stems from misuse of a closed or
// non-seekable stream.
func IsResourceError(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrUnsupported)
}
