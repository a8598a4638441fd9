// Package wire encodes event chunks into self-describing broker messages.
//
// The default format is a FlatBuffers table identified by the file
// identifier "ev42", laid out like the ESS event message (source name,
// message id, pulse time, time-of-flight and detector id vectors) with an
// added schema version field and 64-bit detector ids. A JSON format is
// provided for debugging consumers.
//
// Encoders are pure: identical messages always produce identical buffers.
package wire

import (
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// Message is one chunk of events ready to be framed.
type Message struct {
	SourceName  string  `json:"source_name"`
	MessageID   uint64  `json:"message_id"`
	PulseTime   uint64  `json:"pulse_time"`
	DetectorIDs []int64 `json:"detector_id"`
	Timestamps  []int32 `json:"time_of_flight"`
}

// Len returns the number of events in the message.
func (m *Message) Len() int {
	return len(m.DetectorIDs)
}

// Serializer encodes messages into wire buffers.
type Serializer interface {
	// Encode returns the wire representation of msg.
	Encode(msg Message) ([]byte, error)
	// Format returns the format tag written into every buffer.
	Format() string
}

// New returns the serializer for the named format.
func New(format string) (Serializer, error) {
	switch format {
	case FormatEV42:
		return FlatBufferSerializer{}, nil
	case FormatJSON:
		return JSONSerializer{}, nil
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unknown wire format %q", format)
	}
}

func validate(msg *Message) error {
	if len(msg.DetectorIDs) != len(msg.Timestamps) {
		return nerrors.Newf(nerrors.ErrorTypeEncoding,
			"detector id count %d does not match timestamp count %d", len(msg.DetectorIDs), len(msg.Timestamps))
	}
	if len(msg.DetectorIDs) > MaxEvents {
		return nerrors.Newf(nerrors.ErrorTypeEncoding,
			"%d events exceed the maximum of %d per message", len(msg.DetectorIDs), MaxEvents)
	}
	return nil
}
