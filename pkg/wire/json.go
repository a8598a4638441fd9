package wire

import (
	json "github.com/goccy/go-json"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// FormatJSON is the JSON format tag.
const FormatJSON = "json"

// JSONSerializer encodes messages as JSON documents. It is meant for
// debugging consumers; ev42 is the production format.
type JSONSerializer struct{}

type jsonEnvelope struct {
	Format  string `json:"format"`
	Version uint16 `json:"version"`
	Count   int    `json:"count"`
	Message
}

// Format implements Serializer.
func (JSONSerializer) Format() string {
	return FormatJSON
}

// Encode implements Serializer.
func (JSONSerializer) Encode(msg Message) ([]byte, error) {
	if err := validate(&msg); err != nil {
		return nil, err
	}
	if msg.DetectorIDs == nil {
		msg.DetectorIDs = []int64{}
	}
	if msg.Timestamps == nil {
		msg.Timestamps = []int32{}
	}

	out, err := json.Marshal(jsonEnvelope{
		Format:  FormatJSON,
		Version: Version,
		Count:   msg.Len(),
		Message: msg,
	})
	if err != nil {
		return nil, nerrors.Wrap(err, nerrors.ErrorTypeEncoding, "failed to marshal JSON message")
	}
	return out, nil
}

// DecodeJSON parses a JSON message produced by JSONSerializer.
func DecodeJSON(buf []byte) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return Message{}, nerrors.Wrap(err, nerrors.ErrorTypeEncoding, "failed to unmarshal JSON message")
	}
	if env.Format != FormatJSON {
		return Message{}, nerrors.Newf(nerrors.ErrorTypeEncoding, "unexpected format %q", env.Format)
	}
	if env.Count != len(env.DetectorIDs) || env.Count != len(env.Timestamps) {
		return Message{}, nerrors.Newf(nerrors.ErrorTypeEncoding,
			"count %d does not match vectors (%d, %d)", env.Count, len(env.DetectorIDs), len(env.Timestamps))
	}
	return env.Message, nil
}
