// Package compression provides streaming decompression and compression for
// source files. The algorithm is chosen from the file name suffix, so
// "run.nev.zst" is read as a zstd stream of a ".nev" file.
//
// Supported suffixes:
//   - .gz: gzip
//   - .zst: zstandard
//   - .lz4: lz4 frame
//   - .sz, .s2: s2 stream (reads snappy framed streams too)
//   - .snappy: snappy framed stream
//
// Basic usage:
//
//	alg, inner := compression.FromPath("focus.nev.gz") // Gzip, "focus.nev"
//	r, err := compression.NewReader(alg, f)
package compression

import (
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy framed compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

var suffixes = map[string]Algorithm{
	".gz":     Gzip,
	".zst":    Zstd,
	".lz4":    LZ4,
	".sz":     S2,
	".s2":     S2,
	".snappy": Snappy,
}

// FromPath returns the algorithm implied by the suffix of name and the name
// with that suffix removed. Names without a known suffix map to None.
func FromPath(name string) (Algorithm, string) {
	ext := strings.ToLower(path.Ext(name))
	if alg, ok := suffixes[ext]; ok {
		return alg, strings.TrimSuffix(name, name[len(name)-len(ext):])
	}
	return None, name
}

// Extension returns the canonical file suffix for alg.
func Extension(alg Algorithm) string {
	switch alg {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case S2:
		return ".s2"
	case Snappy:
		return ".snappy"
	default:
		return ""
	}
}

// NewReader wraps src with a decompressor for alg. Closing the returned
// reader does not close src.
func NewReader(alg Algorithm, src io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, nerrors.Wrap(err, nerrors.ErrorTypeMalformedSource, "invalid gzip stream")
		}
		return r, nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, nerrors.Wrap(err, nerrors.ErrorTypeMalformedSource, "invalid zstd stream")
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

// NewWriter wraps dst with a compressor for alg. The returned writer must be
// closed to flush the stream; closing it does not close dst.
func NewWriter(alg Algorithm, dst io.Writer, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		w, err := gzip.NewWriterLevel(dst, mapGzipLevel(level))
		if err != nil {
			return nil, nerrors.Wrap(err, nerrors.ErrorTypeConfig, "invalid gzip level")
		}
		return w, nil
	case Zstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, nerrors.Wrap(err, nerrors.ErrorTypeConfig, "failed to create zstd encoder")
		}
		return enc, nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, nerrors.Wrap(err, nerrors.ErrorTypeConfig, "invalid lz4 level")
		}
		return w, nil
	case S2:
		return s2.NewWriter(dst), nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
