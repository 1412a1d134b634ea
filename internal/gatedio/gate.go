// File: internal/gatedio/gate.go
package gatedio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned by reads against a closed Reader, or against any Reader
	// whose Gate has been closed by the owner of the underlying container.
	ErrClosed = fmt.Errorf("gatedio: %w", os.ErrClosed)

	// ErrUnsupported is returned by the seek, write and size operations of a Reader.
	ErrUnsupported = fmt.Errorf("gatedio: %w", errors.ErrUnsupported)
)

// Gate serializes physical reads against one shared container handle.
// It holds exactly one permit; every Reader derived from the same container
// shares the same Gate.
type Gate struct {
	sem    *semaphore.Weighted
	closed atomic.Bool
}

// NewGate creates an open gate with a single permit.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the permit is available, ctx is done, or the gate is closed.
// A context that is already done never acquires the permit.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.closed.Load() {
		return ErrClosed
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Close may have won the race while we were waiting.
	if g.closed.Load() {
		g.sem.Release(1)
		return ErrClosed
	}
	return nil
}

// Release returns the permit taken by a successful Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do runs fn while holding the permit. The permit is released even if fn panics.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// Close waits for any in-flight read to finish, then marks the gate closed and runs
// release (typically closing the container) while still holding the permit.
// Subsequent acquisitions fail with ErrClosed. Close is idempotent; release runs once.
func (g *Gate) Close(release func() error) error {
	if err := g.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	if release != nil {
		return release()
	}
	return nil
}

// Closed reports whether Close has been called.
func (g *Gate) Closed() bool {
	return g.closed.Load()
}
