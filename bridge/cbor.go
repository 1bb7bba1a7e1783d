package bridge

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is a binary alternative to JSONCodec, wired to exercise
// fxamacker/cbor/v2 the way the rest of the pack reaches for a compact
// binary format on the wire once a protocol's shape has stabilized.
//
// Message's PackedData/DataMap fields carry their own json.Marshaler /
// json.Unmarshaler implementations (codec/datamap.go) that encode the '' /
// 'u' / 'd' / ... scalar tags and the map/raw/throw envelope shape; cbor
// has no hook to reuse an encoding.TextMarshaler-style json.Marshaler, so
// CBORCodec round-trips through the JSON encoding first to get a plain
// tree of maps/slices/scalars, then lets cbor encode that tree directly.
// This costs an extra allocation pass but keeps the wire shape identical
// between the two codecs and means the DataMap tag logic is written once.
type CBORCodec struct{}

func (CBORCodec) Encode(m *Message) ([]byte, error) {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(jsonBytes, &generic); err != nil {
		return nil, err
	}
	return cbor.Marshal(generic)
}

func (CBORCodec) Decode(data []byte) (*Message, error) {
	// Message is always encoded as a CBOR map (it is a Go struct), so
	// decoding it, and every map nested inside it, as map[string]any avoids
	// cbor's default interface{}-key map type, which encoding/json cannot
	// re-marshal.
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := dm.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var m Message
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
