package bridge

import (
	"encoding/json"

	"github.com/bridgekit/bridge/codec"
	"github.com/bridgekit/bridge/magic"
)

// ProtocolVersion names this protocol revision, grounded on capnweb-go's
// protocol.go ProtocolVersion const. State neither sends nor checks it:
// Options.NegotiateVersion is not read, and the base wire grammar has no
// slot for a version (see SPEC_FULL.md's Open Question decisions).
const ProtocolVersion = "1"

// MaxMessageSize is capnweb-go's protocol.go MaxMessageSize, adopted
// verbatim. State does not check encoded Messages against it; the
// transports enforce their own equal limit, transport.MaxFrameSize.
const MaxMessageSize = 64 * 1024 * 1024

// CreatedEntry is one object admitted onto the wire for the first time in
// this message's "created" section.
type CreatedEntry struct {
	LocalID    int64                        `json:"id"`
	Methods    []string                     `json:"methods,omitempty"`
	Properties map[string]codec.PackedData  `json:"properties,omitempty"`
}

// ChangedEntry carries one object's changed property values.
type ChangedEntry struct {
	LocalID    int64                       `json:"id"`
	Properties map[string]codec.PackedData `json:"properties"`
}

// EventEntry is a fired named-event notification.
type EventEntry struct {
	LocalID int64             `json:"id"`
	Name    string            `json:"name"`
	Payload codec.PackedData  `json:"payload"`
}

// CallEntry is an outgoing method invocation.
type CallEntry struct {
	CallID   int64              `json:"callId"`
	LocalID  int64              `json:"id"`
	Method   string             `json:"method"`
	Args     codec.PackedData   `json:"args"`
}

// ReturnEntry carries the settlement of a previously issued call.
type ReturnEntry struct {
	CallID int64             `json:"callId"`
	Result codec.PackedData  `json:"result"`
}

// Message is one flush's worth of protocol traffic. Section ordering is
// fixed: created, then changed, then
// events, then calls, then returns, then closed — so that anything a later
// section references by id was already admitted by an earlier one in the
// same message.
type Message struct {
	Created []CreatedEntry `json:"created,omitempty"`
	Changed []ChangedEntry `json:"changed,omitempty"`
	Events  []EventEntry   `json:"events,omitempty"`
	Calls   []CallEntry    `json:"calls,omitempty"`
	Returns []ReturnEntry  `json:"returns,omitempty"`
	Closed  []int64        `json:"closed,omitempty"`
}

// Empty reports whether the message carries nothing worth sending — flushes
// that produce nothing are suppressed rather than sent as an empty frame.
func (m *Message) Empty() bool {
	return len(m.Created) == 0 && len(m.Changed) == 0 && len(m.Events) == 0 &&
		len(m.Calls) == 0 && len(m.Returns) == 0 && len(m.Closed) == 0
}

// Encode renders m as a JSON frame, the default wire codec. CBORCodec
// (cbor.go) offers a binary alternative implementing the same interface.
func Encode(m *Message) ([]byte, error) { return json.Marshal(m) }

// Decode parses a JSON frame back into a Message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Codec is the pluggable outer framing format for a Message. It sits below
// the codec package's DataMap/PackedData transform (which is
// format-independent) and above the transport's raw bytes.
type Codec interface {
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// JSONCodec is the default Codec, backed by encoding/json.
type JSONCodec struct{}

func (JSONCodec) Encode(m *Message) ([]byte, error) { return Encode(m) }
func (JSONCodec) Decode(data []byte) (*Message, error) { return Decode(data) }

func localID(id magic.LocalID) int64 { return int64(id) }
