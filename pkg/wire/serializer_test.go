package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

func sampleMessage() Message {
	return Message{
		SourceName:  "FOCUS",
		MessageID:   7,
		PulseTime:   1_700_000_000_000_000_000,
		DetectorIDs: []int64{1, 2, 3, 1 << 40},
		Timestamps:  []int32{10, -20, 30, 1 << 30},
	}
}

func TestFlatBufferEncodeDecode(t *testing.T) {
	msg := sampleMessage()

	buf, err := FlatBufferSerializer{}.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, "ev42", string(buf[4:8]))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestFlatBufferEncodeIsDeterministic(t *testing.T) {
	msg := sampleMessage()
	first, err := FlatBufferSerializer{}.Encode(msg)
	require.NoError(t, err)
	second, err := FlatBufferSerializer{}.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFlatBufferEmptyMessage(t *testing.T) {
	buf, err := FlatBufferSerializer{}.Encode(Message{SourceName: "empty"})
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "empty", got.SourceName)
	assert.Equal(t, 0, got.Len())
	assert.Empty(t, got.Timestamps)
}

func TestEncodeRejectsMismatchedVectors(t *testing.T) {
	msg := Message{DetectorIDs: []int64{1, 2}, Timestamps: []int32{1}}

	for _, s := range []Serializer{FlatBufferSerializer{}, JSONSerializer{}} {
		_, err := s.Encode(msg)
		require.Error(t, err, s.Format())
		assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeEncoding))
	}
}

func TestDecodeRejectsForeignBuffers(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeEncoding))

	_, err = Decode([]byte{8, 0, 0, 0, 'f', '1', '4', '2', 0, 0, 0, 0})
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeEncoding))
}

func TestDecodeCorruptBufferDoesNotPanic(t *testing.T) {
	buf, err := FlatBufferSerializer{}.Encode(sampleMessage())
	require.NoError(t, err)

	corrupt := append([]byte(nil), buf...)
	corrupt[0] = 0xff
	corrupt[1] = 0xff
	assert.NotPanics(t, func() {
		_, err = Decode(corrupt)
	})
	assert.Error(t, err)
}

func TestJSONEncodeDecode(t *testing.T) {
	msg := sampleMessage()

	buf, err := JSONSerializer{}.Encode(msg)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"format":"json"`)
	assert.Contains(t, string(buf), `"count":4`)

	again, err := JSONSerializer{}.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, buf, again)

	got, err := DecodeJSON(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestNew(t *testing.T) {
	s, err := New("ev42")
	require.NoError(t, err)
	assert.Equal(t, FormatEV42, s.Format())

	s, err = New("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, s.Format())

	_, err = New("avro")
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))
}
