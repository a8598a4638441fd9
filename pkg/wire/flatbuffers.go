package wire

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/pool"
)

const (
	// FormatEV42 is the FlatBuffers format tag and file identifier.
	FormatEV42 = "ev42"
	// Version is the schema version written into every ev42 buffer.
	Version uint16 = 1

	// MaxEvents bounds a single message so the buffer stays below the
	// 2 GiB FlatBuffers limit.
	MaxEvents = (1<<31 - 1 - 4096) / 12

	identifierLength = 4

	// builders that grew beyond this are dropped instead of pooled
	maxPooledBuilder = 16 << 20
)

var builders = pool.New(
	func() *flatbuffers.Builder { return flatbuffers.NewBuilder(4096) },
	func(b *flatbuffers.Builder) { b.Reset() },
)

// vtable slots of the event message table
const (
	slotSourceName = iota
	slotMessageID
	slotPulseTime
	slotTimeOfFlight
	slotDetectorID
	slotVersion
	numSlots
)

// FlatBufferSerializer encodes messages as ev42 FlatBuffers.
type FlatBufferSerializer struct{}

// Format implements Serializer.
func (FlatBufferSerializer) Format() string {
	return FormatEV42
}

// Encode implements Serializer.
func (FlatBufferSerializer) Encode(msg Message) (buf []byte, err error) {
	if err := validate(&msg); err != nil {
		return nil, err
	}

	b := builders.Get()
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = nerrors.Newf(nerrors.ErrorTypeEncoding, "flatbuffer construction failed: %v", r)
		}
		if cap(b.Bytes) > maxPooledBuilder {
			builders.Discard(b)
		} else {
			builders.Put(b)
		}
	}()

	n := len(msg.DetectorIDs)

	name := b.CreateString(msg.SourceName)

	b.StartVector(4, n, 4)
	for i := n - 1; i >= 0; i-- {
		b.PrependInt32(msg.Timestamps[i])
	}
	tof := b.EndVector(n)

	b.StartVector(8, n, 8)
	for i := n - 1; i >= 0; i-- {
		b.PrependInt64(msg.DetectorIDs[i])
	}
	ids := b.EndVector(n)

	b.StartObject(numSlots)
	b.PrependUint64Slot(slotPulseTime, msg.PulseTime, 0)
	b.PrependUint64Slot(slotMessageID, msg.MessageID, 0)
	b.PrependUOffsetTSlot(slotDetectorID, ids, 0)
	b.PrependUOffsetTSlot(slotTimeOfFlight, tof, 0)
	b.PrependUOffsetTSlot(slotSourceName, name, 0)
	b.PrependUint16Slot(slotVersion, Version, 0)
	root := b.EndObject()

	b.FinishWithFileIdentifier(root, []byte(FormatEV42))
	return append([]byte(nil), b.FinishedBytes()...), nil
}

// Decode parses an ev42 buffer produced by FlatBufferSerializer.
func Decode(buf []byte) (msg Message, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT+identifierLength {
		return Message{}, nerrors.Newf(nerrors.ErrorTypeEncoding, "buffer of %d bytes is too short", len(buf))
	}
	if id := string(buf[flatbuffers.SizeUOffsetT : flatbuffers.SizeUOffsetT+identifierLength]); id != FormatEV42 {
		return Message{}, nerrors.Newf(nerrors.ErrorTypeEncoding, "unexpected file identifier %q", id)
	}

	defer func() {
		if r := recover(); r != nil {
			msg = Message{}
			err = nerrors.Newf(nerrors.ErrorTypeEncoding, "corrupt ev42 buffer: %v", r)
		}
	}()

	t := flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}

	var version uint16
	if o := field(&t, slotVersion); o != 0 {
		version = t.GetUint16(o + t.Pos)
	}
	if version != Version {
		return Message{}, nerrors.Newf(nerrors.ErrorTypeEncoding, "unsupported ev42 version %d", version)
	}

	if o := field(&t, slotSourceName); o != 0 {
		msg.SourceName = string(t.ByteVector(o + t.Pos))
	}
	if o := field(&t, slotMessageID); o != 0 {
		msg.MessageID = t.GetUint64(o + t.Pos)
	}
	if o := field(&t, slotPulseTime); o != 0 {
		msg.PulseTime = t.GetUint64(o + t.Pos)
	}
	if o := field(&t, slotTimeOfFlight); o != 0 {
		start, n := t.Vector(o), t.VectorLen(o)
		msg.Timestamps = make([]int32, n)
		for i := range msg.Timestamps {
			msg.Timestamps[i] = t.GetInt32(start + flatbuffers.UOffsetT(i*4))
		}
	}
	if o := field(&t, slotDetectorID); o != 0 {
		start, n := t.Vector(o), t.VectorLen(o)
		msg.DetectorIDs = make([]int64, n)
		for i := range msg.DetectorIDs {
			msg.DetectorIDs[i] = t.GetInt64(start + flatbuffers.UOffsetT(i*8))
		}
	}

	if len(msg.DetectorIDs) != len(msg.Timestamps) {
		return Message{}, nerrors.New(nerrors.ErrorTypeEncoding,
			fmt.Sprintf("vector length mismatch: %d detector ids, %d timestamps", len(msg.DetectorIDs), len(msg.Timestamps)))
	}
	return msg, nil
}

func field(t *flatbuffers.Table, slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}
