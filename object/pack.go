package object

import "github.com/bridgekit/bridge/codec"

// PackedObject is the create-time snapshot of a bridgeable object's surface:
// its callable method names and the packed value of every property.
type PackedObject struct {
	Methods    []string
	Properties map[string]codec.PackedData
}

// PackObject builds the full snapshot sent in a message's "created" section
// the first time obj is admitted onto the wire, grounded on capnweb-go's
// full-object Serializer.serializeStruct (serialize.go) generalized from
// "serialize every exported field" to "serialize every bridged property,
// catching and re-throwing a property getter's own error per entry".
func PackObject(peer codec.Peer, shared codec.SharedTable, checker codec.BridgeableChecker, obj any) PackedObject {
	names := Properties(obj)
	props := make(map[string]codec.PackedData, len(names))
	for _, name := range names {
		v, err := Get(obj, name)
		if err != nil {
			props[name] = codec.PackThrow(peer, shared, checker, err)
			continue
		}
		props[name] = codec.Pack(peer, shared, checker, v)
	}
	return PackedObject{Methods: Methods(obj), Properties: props}
}

// DiffObject re-reads every bridged property of obj and returns only the
// ones whose value changed identity since the last Diff call against cache —
// the per-flush "changed" section contribution for one object. There is no
// capnweb-go analog (capnweb has no property-watch/diff concept).
func DiffObject(peer codec.Peer, shared codec.SharedTable, checker codec.BridgeableChecker, obj any, cache *ValueCache) map[string]codec.PackedData {
	changed := make(map[string]codec.PackedData)
	for _, name := range Properties(obj) {
		v, err := Get(obj, name)
		if err != nil {
			if cache.Diff(name, err) {
				changed[name] = codec.PackThrow(peer, shared, checker, err)
			}
			continue
		}
		if cache.Diff(name, v) {
			changed[name] = codec.Pack(peer, shared, checker, v)
		}
	}
	return changed
}
