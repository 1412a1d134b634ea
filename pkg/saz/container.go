// File: pkg/saz/container.go
package saz

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// Entry is one named blob inside a container. Open yields an independent,
// sequential, read-only stream over the blob's bytes.
type Entry interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Container enumerates the entries of an archive and owns its handle.
type Container interface {
	Entries() []Entry
	Close() error
}

// zipContainer adapts a zip reader to Container.
type zipContainer struct {
	entries []Entry
	closer  io.Closer
}

type zipEntry struct {
	f *zip.File
}

func (e zipEntry) Name() string                 { return e.f.Name }
func (e zipEntry) Open() (io.ReadCloser, error) { return e.f.Open() }

func newZipContainer(zr *zip.Reader, closer io.Closer) *zipContainer {
	c := &zipContainer{closer: closer, entries: make([]Entry, 0, len(zr.File))}
	for _, f := range zr.File {
		c.entries = append(c.entries, zipEntry{f: f})
	}
	return c
}

// NewZipContainer reads the central directory of a zip archive of the given size.
func NewZipContainer(ra io.ReaderAt, size int64) (Container, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: reading zip directory: %w", ErrContainerFormat, err)
	}
	return newZipContainer(zr, nil), nil
}

// OpenZipContainer opens the zip archive at path. Closing the container closes the file.
func OpenZipContainer(path string) (Container, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return newZipContainer(&rc.Reader, rc), nil
}

func (c *zipContainer) Entries() []Entry { return c.entries }

func (c *zipContainer) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
