// Package events holds the in-memory detector event model: fixed-size
// batches of (detector ID, timestamp) pairs and their amplification.
//
// A Batch owns two parallel arrays that are always allocated together to
// exactly Len() elements. Batches are created through an Allocator, which
// enforces a byte limit so that oversized requests fail with an allocation
// error instead of exhausting the process.
//
//	alloc := events.NewAllocator(512 << 20)
//	batch, err := alloc.New(1_000_000)
//	if err != nil {
//	    return err
//	}
//	defer batch.Release()
package events

import (
	"math"

	"github.com/shirou/gopsutil/v3/mem"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// EventSize is the number of payload bytes one event occupies (int64 + int32).
const EventSize = 12

// Event is a single detector hit.
type Event struct {
	DetectorID int64
	Timestamp  int32
}

// Batch is a fixed-count collection of events. The zero value is an empty,
// released batch.
type Batch struct {
	detectorIDs []int64
	timestamps  []int32
	released    bool
}

// Allocator creates batches subject to a byte limit.
type Allocator struct {
	// MaxBytes caps the payload size of a single batch. Zero means unlimited.
	MaxBytes int64
}

// NewAllocator returns an allocator limited to maxBytes per batch.
func NewAllocator(maxBytes int64) *Allocator {
	return &Allocator{MaxBytes: maxBytes}
}

// HostAllocator returns an allocator limited to the memory currently
// available on the host.
func HostAllocator() (*Allocator, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, nerrors.Wrap(err, nerrors.ErrorTypeInternal, "failed to read host memory statistics")
	}
	limit := vm.Available
	if limit > math.MaxInt64 {
		limit = math.MaxInt64
	}
	return &Allocator{MaxBytes: int64(limit)}, nil
}

var unlimited = &Allocator{}

// New allocates a batch of count events without a byte limit.
func New(count int) (*Batch, error) {
	return unlimited.New(count)
}

// New allocates storage for count detector IDs and timestamps. Both arrays
// are allocated or neither is.
func (a *Allocator) New(count int) (*Batch, error) {
	if err := a.check(int64(count)); err != nil {
		return nil, err
	}
	return &Batch{
		detectorIDs: make([]int64, count),
		timestamps:  make([]int32, count),
	}, nil
}

func (a *Allocator) check(count int64) error {
	if count < 0 {
		return nerrors.Newf(nerrors.ErrorTypeAllocation, "negative event count %d", count)
	}
	if count > math.MaxInt64/EventSize || count > int64(math.MaxInt) {
		return nerrors.Newf(nerrors.ErrorTypeAllocation, "event count %d overflows addressable storage", count)
	}
	if a != nil && a.MaxBytes > 0 && count*EventSize > a.MaxBytes {
		return nerrors.Newf(nerrors.ErrorTypeAllocation,
			"batch of %d events needs %d bytes, limit is %d", count, count*EventSize, a.MaxBytes).
			WithDetail("events", count)
	}
	return nil
}

// FromSlices builds a batch holding copies of the given parallel slices.
func FromSlices(detectorIDs []int64, timestamps []int32) (*Batch, error) {
	if len(detectorIDs) != len(timestamps) {
		return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource,
			"detector ID count %d does not match timestamp count %d", len(detectorIDs), len(timestamps))
	}
	b, err := New(len(detectorIDs))
	if err != nil {
		return nil, err
	}
	copy(b.detectorIDs, detectorIDs)
	copy(b.timestamps, timestamps)
	return b, nil
}

// Len returns the number of events, or zero once released.
func (b *Batch) Len() int {
	if b == nil || b.released {
		return 0
	}
	return len(b.detectorIDs)
}

// Released reports whether Release has been called.
func (b *Batch) Released() bool {
	return b == nil || b.released
}

// Release drops both arrays. Calling it more than once is a no-op.
func (b *Batch) Release() {
	if b == nil || b.released {
		return
	}
	b.detectorIDs = nil
	b.timestamps = nil
	b.released = true
}

// DetectorIDs returns the detector ID array. Callers must not retain it past Release.
func (b *Batch) DetectorIDs() []int64 {
	if b.Released() {
		return nil
	}
	return b.detectorIDs
}

// Timestamps returns the timestamp array. Callers must not retain it past Release.
func (b *Batch) Timestamps() []int32 {
	if b.Released() {
		return nil
	}
	return b.timestamps
}

// Set stores an event at index i.
func (b *Batch) Set(i int, ev Event) {
	b.detectorIDs[i] = ev.DetectorID
	b.timestamps[i] = ev.Timestamp
}

// Event returns the event at index i.
func (b *Batch) Event(i int) Event {
	return Event{DetectorID: b.detectorIDs[i], Timestamp: b.timestamps[i]}
}

// Slice returns views of the events in [offset, offset+length).
func (b *Batch) Slice(offset, length int) ([]int64, []int32) {
	if b.Released() {
		return nil, nil
	}
	end := offset + length
	return b.detectorIDs[offset:end:end], b.timestamps[offset:end:end]
}

// SizeBytes returns the payload size of the batch.
func (b *Batch) SizeBytes() int64 {
	return int64(b.Len()) * EventSize
}
