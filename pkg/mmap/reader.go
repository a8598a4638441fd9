// Package mmap reads files through a read-only memory mapping.
package mmap

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

var (
	// ErrUnsupported is returned on platforms without mmap support
	ErrUnsupported = errors.New("mmap is not supported on this platform")
	// ErrEmpty is returned for zero-length files, which cannot be mapped
	ErrEmpty = errors.New("file is empty")
)

// Reader serves a mapped file. It implements io.ReadCloser and io.ReaderAt.
// Read is not safe for concurrent use; ReadAt is.
type Reader struct {
	file *os.File
	data []byte
	r    *bytes.Reader

	mu     sync.Mutex
	closed bool
}

// Open maps the named file.
func Open(name string) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := FromFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// FromFile maps f. On success the Reader owns f and closes it on Close.
func FromFile(f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, ErrEmpty
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("file of %d bytes cannot be mapped", size)
	}

	data, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	return &Reader{file: f, data: data, r: bytes.NewReader(data)}, nil
}

// Len returns the mapped size.
func (r *Reader) Len() int {
	return len(r.data)
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.isClosed() {
		return 0, os.ErrClosed
	}
	return r.r.Read(p)
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if r.isClosed() {
		return 0, os.ErrClosed
	}
	return r.r.ReadAt(p, off)
}

// Close unmaps the file and closes it. Calling Close more than once is a
// no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := unmap(r.data)
	r.data = nil
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
