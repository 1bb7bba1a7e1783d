package bridge

import "github.com/google/uuid"

// ExternalCallID tags one outbound Call for trace/log correlation across
// process boundaries — deliberately distinct from the protocol's own
// callId (a plain monotonic int64 the ordering invariant depends on): the
// wire format has no room for a second identifier, so this lives only in
// the Go API surface and in otel span attributes, never on the wire.
type ExternalCallID string

// NewExternalCallID mints a fresh correlation id, grounded on
// joeycumines-one-shot-man's and vango-go-vango's use of google/uuid for
// request/session correlation ids.
func NewExternalCallID() ExternalCallID {
	return ExternalCallID(uuid.NewString())
}

// NewSessionID mints an id for one bridge.New/Close lifetime, useful as a
// log field or a demo's connection label.
func NewSessionID() string {
	return uuid.NewString()
}
