package mmap

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReaderServesFileContents(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("mmap not supported")
	}
	want := []byte("NEV1 mapped payload")
	r, err := Open(writeFile(t, want))
	require.NoError(t, err)

	assert.Equal(t, len(want), r.Len())
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	buf := make([]byte, 6)
	n, err := r.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(buf[:n]))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenEmptyFile(t *testing.T) {
	_, err := Open(writeFile(t, nil))
	assert.True(t, errors.Is(err, ErrEmpty) || errors.Is(err, ErrUnsupported))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
