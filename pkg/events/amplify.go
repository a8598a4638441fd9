package events

import (
	"math"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// AmplifyOption customizes Amplify.
type AmplifyOption func(*amplifyOptions)

type amplifyOptions struct {
	alloc      *Allocator
	timeOffset int32
}

// WithAllocator makes Amplify allocate the result through alloc.
func WithAllocator(alloc *Allocator) AmplifyOption {
	return func(o *amplifyOptions) {
		if alloc != nil {
			o.alloc = alloc
		}
	}
}

// WithTimeOffset shifts the timestamps of copy k by k*offset.
func WithTimeOffset(offset int32) AmplifyOption {
	return func(o *amplifyOptions) {
		o.timeOffset = offset
	}
}

// Amplify returns a new batch holding factor tiled copies of source. Copy k
// occupies [k*n, (k+1)*n); detector IDs are copied verbatim and timestamps
// are shifted by k times the configured offset, wrapping as int32. The
// source is left untouched.
func Amplify(source *Batch, factor int, opts ...AmplifyOption) (*Batch, error) {
	if source == nil || source.Released() {
		return nil, nerrors.New(nerrors.ErrorTypeInternal, "amplify called on a released or nil batch")
	}
	if factor < 1 {
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "amplification factor must be >= 1, got %d", factor)
	}

	o := amplifyOptions{alloc: unlimited}
	for _, opt := range opts {
		opt(&o)
	}

	n := source.Len()
	if n > 0 && factor > math.MaxInt/n {
		return nil, nerrors.Newf(nerrors.ErrorTypeAllocation,
			"amplifying %d events by %d overflows addressable storage", n, factor)
	}

	result, err := o.alloc.New(n * factor)
	if err != nil {
		return nil, err
	}

	for k := 0; k < factor; k++ {
		base := k * n
		copy(result.detectorIDs[base:base+n], source.detectorIDs)
		shift := int32(k) * o.timeOffset
		dst := result.timestamps[base : base+n]
		for i, ts := range source.timestamps {
			dst[i] = ts + shift
		}
	}

	return result, nil
}
