package events

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

func sourceBatch(t *testing.T, n int) *Batch {
	t.Helper()
	b, err := New(n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		b.Set(i, Event{DetectorID: int64(100 + i), Timestamp: int32(1000 * (i + 1))})
	}
	return b
}

func TestAmplifySize(t *testing.T) {
	for _, n := range []int{0, 1, 5, 33} {
		for _, factor := range []int{1, 2, 3, 10} {
			src := sourceBatch(t, n)
			out, err := Amplify(src, factor)
			require.NoError(t, err)
			assert.Equal(t, n*factor, out.Len(), "n=%d factor=%d", n, factor)
		}
	}
}

func TestAmplifyTilesContent(t *testing.T) {
	src := sourceBatch(t, 5)
	out, err := Amplify(src, 3)
	require.NoError(t, err)
	require.Equal(t, 15, out.Len())

	for k := 0; k < 3; k++ {
		for i := 0; i < 5; i++ {
			assert.Equal(t, src.Event(i), out.Event(k*5+i))
		}
	}
}

func TestAmplifyTimeOffset(t *testing.T) {
	src := sourceBatch(t, 2)
	out, err := Amplify(src, 3, WithTimeOffset(7))
	require.NoError(t, err)

	assert.Equal(t, []int32{1000, 2000, 1007, 2007, 1014, 2014}, out.Timestamps())
	assert.Equal(t, []int64{100, 101, 100, 101, 100, 101}, out.DetectorIDs())
}

func TestAmplifyTimeOffsetWraps(t *testing.T) {
	src, err := FromSlices([]int64{1}, []int32{math.MaxInt32})
	require.NoError(t, err)

	out, err := Amplify(src, 2, WithTimeOffset(1))
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), out.Timestamps()[1])
}

func TestAmplifyIdentityIsCopy(t *testing.T) {
	src := sourceBatch(t, 4)
	out, err := Amplify(src, 1)
	require.NoError(t, err)
	assert.Equal(t, src.DetectorIDs(), out.DetectorIDs())

	out.Set(0, Event{DetectorID: -1, Timestamp: -1})
	assert.Equal(t, int64(100), src.Event(0).DetectorID)

	src.Release()
	assert.Equal(t, 4, out.Len(), "result survives release of the source")
}

func TestAmplifyLeavesSourceUntouched(t *testing.T) {
	src := sourceBatch(t, 3)
	before := append([]int32(nil), src.Timestamps()...)
	_, err := Amplify(src, 4, WithTimeOffset(100))
	require.NoError(t, err)
	assert.Equal(t, before, src.Timestamps())
	assert.False(t, src.Released())
}

func TestAmplifyErrors(t *testing.T) {
	src := sourceBatch(t, 3)

	_, err := Amplify(src, 0)
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))

	_, err = Amplify(nil, 2)
	assert.Error(t, err)

	_, err = Amplify(src, 2, WithAllocator(NewAllocator(5*EventSize)))
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeAllocation))

	_, err = Amplify(src, math.MaxInt)
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeAllocation))

	released := sourceBatch(t, 3)
	released.Release()
	_, err = Amplify(released, 2)
	assert.Error(t, err)
}
