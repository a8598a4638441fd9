package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

func TestFromPath(t *testing.T) {
	tests := []struct {
		name  string
		alg   Algorithm
		inner string
	}{
		{"focus.nev", None, "focus.nev"},
		{"focus.nev.gz", Gzip, "focus.nev"},
		{"dir/run.csv.zst", Zstd, "dir/run.csv"},
		{"run.arrow.LZ4", LZ4, "run.arrow"},
		{"run.nev.sz", S2, "run.nev"},
		{"run.nev.s2", S2, "run.nev"},
		{"run.json.snappy", Snappy, "run.json"},
		{"noext", None, "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, inner := FromPath(tt.name)
			assert.Equal(t, tt.alg, alg)
			assert.Equal(t, tt.inner, inner)
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("detector 17 fired at 4242; ", 500))

	for _, alg := range []Algorithm{None, Gzip, Zstd, LZ4, S2, Snappy} {
		for _, level := range []Level{Fastest, Default, Best} {
			var buf bytes.Buffer
			w, err := NewWriter(alg, &buf, level)
			require.NoError(t, err, alg)
			_, err = w.Write(original)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if alg != None {
				assert.Less(t, buf.Len(), len(original), "%s should shrink repetitive input", alg)
			}

			r, err := NewReader(alg, &buf)
			require.NoError(t, err, alg)
			got, err := io.ReadAll(r)
			require.NoError(t, err, alg)
			require.NoError(t, r.Close())
			assert.Equal(t, original, got, alg)
		}
	}
}

func TestExtensionMatchesFromPath(t *testing.T) {
	for _, alg := range []Algorithm{Gzip, Zstd, LZ4, S2, Snappy} {
		got, inner := FromPath("x.nev" + Extension(alg))
		assert.Equal(t, alg, got)
		assert.Equal(t, "x.nev", inner)
	}
	assert.Empty(t, Extension(None))
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(Gzip, bytes.NewReader([]byte("not gzip")))
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeMalformedSource))

	_, err = NewReader("brotli", bytes.NewReader(nil))
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))
}
