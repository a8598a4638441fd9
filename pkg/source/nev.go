package source

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
)

// NEVMagic opens every .nev file. The header is followed by a little-endian
// uint64 event count, then count int64 detector IDs, then count int32
// timestamps.
const NEVMagic = "NEV1"

func decodeNEV(r io.Reader, alloc *events.Allocator) (*events.Batch, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, malformed(err, "nev")
	}
	if string(magic[:]) != NEVMagic {
		return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "bad nev magic %q", magic[:])
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, malformed(err, "nev")
	}
	if count > uint64(math.MaxInt)/events.EventSize {
		return nil, nerrors.Newf(nerrors.ErrorTypeAllocation, "nev header declares %d events", count)
	}

	batch, err := alloc.New(int(count))
	if err != nil {
		return nil, err
	}
	if err := readColumns(br, batch); err != nil {
		batch.Release()
		return nil, malformed(err, "nev")
	}

	var extra [1]byte
	if n, _ := br.Read(extra[:]); n > 0 {
		batch.Release()
		return nil, nerrors.New(nerrors.ErrorTypeMalformedSource, "trailing data after nev payload")
	}
	return batch, nil
}

// nevBlock is the number of values decoded per read.
const nevBlock = 8192

func readColumns(r io.Reader, batch *events.Batch) error {
	buf := make([]byte, nevBlock*8)
	ids := batch.DetectorIDs()
	for off := 0; off < len(ids); off += nevBlock {
		n := min(nevBlock, len(ids)-off)
		if _, err := io.ReadFull(r, buf[:n*8]); err != nil {
			return err
		}
		for k := 0; k < n; k++ {
			ids[off+k] = int64(binary.LittleEndian.Uint64(buf[k*8:]))
		}
	}
	ts := batch.Timestamps()
	for off := 0; off < len(ts); off += nevBlock {
		n := min(nevBlock, len(ts)-off)
		if _, err := io.ReadFull(r, buf[:n*4]); err != nil {
			return err
		}
		for k := 0; k < n; k++ {
			ts[off+k] = int32(binary.LittleEndian.Uint32(buf[k*4:]))
		}
	}
	return nil
}

// Write encodes batch in the .nev layout.
func Write(w io.Writer, batch *events.Batch) error {
	if batch.Released() {
		return nerrors.New(nerrors.ErrorTypeInternal, "cannot write a released batch")
	}

	ids, ts := batch.DetectorIDs(), batch.Timestamps()
	var i, j int
	return writeNEV(w, batch.Len(),
		func() int64 { v := ids[i]; i++; return v },
		func() int32 { v := ts[j]; j++; return v })
}

// writeNEV writes count events in the .nev layout, pulling detector IDs and
// then timestamps from the given functions in order.
func writeNEV(w io.Writer, count int, nextID func() int64, nextTS func() int32) error {
	bw := bufio.NewWriterSize(w, 1<<16)
	var word [8]byte
	if _, err := bw.WriteString(NEVMagic); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(word[:], uint64(count))
	if _, err := bw.Write(word[:]); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint64(word[:], uint64(nextID()))
		if _, err := bw.Write(word[:]); err != nil {
			return err
		}
	}
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint32(word[:4], uint32(nextTS()))
		if _, err := bw.Write(word[:4]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
