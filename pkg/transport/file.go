package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// Stdout is the topic that makes a FileTransmitter write to standard output.
const Stdout = "-"

// FileTransmitter appends length-prefixed frames to a file named by the
// topic. Each frame is a little-endian uint32 length followed by the buffer.
type FileTransmitter struct {
	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileTransmitter returns a transmitter that opens files on first use.
func NewFileTransmitter() *FileTransmitter {
	return &FileTransmitter{files: make(map[string]*os.File)}
}

// Send implements Transmitter.
func (ft *FileTransmitter) Send(ctx context.Context, path string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "send cancelled")
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	f, ok := ft.files[path]
	if !ok {
		if path == Stdout {
			f = os.Stdout
		} else {
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nerrors.Transmission(err, false, "failed to open output file").WithDetail("path", path)
			}
		}
		ft.files[path] = f
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(buf)))
	if _, err := f.Write(header[:]); err != nil {
		return nerrors.Transmission(err, false, "failed to write frame header").WithDetail("path", path)
	}
	if _, err := f.Write(buf); err != nil {
		return nerrors.Transmission(err, false, "failed to write frame").WithDetail("path", path)
	}
	return nil
}

// Close implements Transmitter.
func (ft *FileTransmitter) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var errs []error
	for path, f := range ft.files {
		delete(ft.files, path)
		if path == Stdout {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadFrames reads every frame written by a FileTransmitter.
func ReadFrames(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var frames [][]byte
	for {
		var header [4]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, nerrors.Wrap(err, nerrors.ErrorTypeMalformedSource, "truncated frame header")
		}
		frame := make([]byte, binary.LittleEndian.Uint32(header[:]))
		if _, err := io.ReadFull(br, frame); err != nil {
			return frames, nerrors.Wrap(err, nerrors.ErrorTypeMalformedSource, "truncated frame")
		}
		frames = append(frames, frame)
	}
}
