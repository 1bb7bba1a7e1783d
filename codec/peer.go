package codec

// Peer is the slice of bridge.State that the codec needs in order to turn
// bridgeable object references into wire ids and back. bridge.State
// implements this directly.
type Peer interface {
	// PackedID returns the wire packedId for obj: a positive localId if obj
	// is now (or already was) admitted as owned by this peer, or a negative
	// -remoteId if obj is a proxy this peer holds. ok is false when obj's
	// reference must be encoded as a closed reference (raw=null) — either
	// because the peer itself is closed, or because the proxy/object has
	// already been closed.
	PackedID(obj any) (id int64, ok bool)

	// Resolve inverts PackedID: given the raw packedId carried by an
	// incoming 'o' envelope, it returns the local value that id denotes —
	// a proxy this peer holds (positive ids) or an object this peer owns
	// (negative ids, by the sign rule PackedID uses).
	Resolve(packedID int64) (obj any, ok bool)
}

// SharedTable is the slice of magic.Store needed to classify and resolve
// shared constants.
type SharedTable interface {
	ShareID(value any) (string, bool)
	SharedValue(id string) (any, error)
}

// Bridgeable reports whether a value has (or is eligible for) a magic
// record, used during mapping to classify it with KindBridgeable.
type BridgeableChecker interface {
	IsBridgeable(obj any) bool
}
