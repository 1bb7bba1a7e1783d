package codec

import (
	"encoding/json"
	"fmt"

	"github.com/bridgekit/bridge/errs"
	"github.com/bridgekit/bridge/internal/wire"
)

// Unpack inverts Pack: it walks env.Map alongside env.Raw, validating shape
// at every step, and returns either the reconstructed value or — when
// env.Throw is set, or a shape mismatch is found along the way — an error.
func Unpack(peer Peer, shared SharedTable, env PackedData, path string) (any, error) {
	value, err := unpackWithMap(peer, shared, env.Map, env.Raw, path)
	if err != nil {
		return nil, err
	}
	if env.Throw {
		if e, ok := value.(error); ok {
			return nil, e
		}
		return nil, fmt.Errorf("%v", value)
	}
	return value, nil
}

func shapeErr(path, format string, args ...any) error {
	return errs.WithPath(errs.New(errs.InvalidShape, format, args...), path)
}

func unpackWithMap(peer Peer, shared SharedTable, m DataMap, raw any, path string) (any, error) {
	switch m.Kind {
	case KindIdentity:
		return raw, nil
	case KindUndefined:
		return Undefined, nil
	case KindUnsupported:
		return nil, errs.WithPath(errs.New(errs.UnsupportedType, "value of unsupported type %v crossed the bridge", raw), path)
	case KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, shapeErr(path, "expected ISO 8601 string for date, got %T", raw)
		}
		t, err := wire.DecodeTime(s)
		if err != nil {
			return nil, shapeErr(path, "invalid date %q: %v", s, err)
		}
		return t, nil
	case KindBytes:
		s, ok := raw.(string)
		if !ok {
			return nil, shapeErr(path, "expected base64 string for byte array, got %T", raw)
		}
		b, err := wire.DecodeBytes(s)
		if err != nil {
			return nil, shapeErr(path, "invalid base64: %v", err)
		}
		return b, nil
	case KindBuffer:
		s, ok := raw.(string)
		if !ok {
			return nil, shapeErr(path, "expected base64 string for buffer, got %T", raw)
		}
		b, err := wire.DecodeBytes(s)
		if err != nil {
			return nil, shapeErr(path, "invalid base64: %v", err)
		}
		return RawBuffer(b), nil
	case KindErrorValue:
		return unpackError(peer, shared, raw, path)
	case KindBridgeable:
		if raw == nil {
			return nil, errs.WithPath(errs.New(errs.ClosedBridgeObject, "reference to a closed bridge object"), path)
		}
		id, ok := toInt64(raw)
		if !ok {
			return nil, shapeErr(path, "expected numeric packedId, got %T", raw)
		}
		if peer == nil {
			return nil, errs.WithPath(errs.New(errs.InvalidPackedID, "no peer available to resolve packedId %d", id), path)
		}
		obj, ok := peer.Resolve(id)
		if !ok {
			return nil, errs.WithPath(errs.New(errs.InvalidPackedID, "invalid packedId %d", id), path)
		}
		return obj, nil
	case KindShared:
		id, ok := raw.(string)
		if !ok {
			return nil, shapeErr(path, "expected shareId string, got %T", raw)
		}
		if shared == nil {
			return nil, errs.WithPath(errs.New(errs.InvalidShareID, "no shared table available to resolve %q", id), path)
		}
		v, err := shared.SharedValue(id)
		if err != nil {
			if be, ok := err.(*errs.Error); ok {
				return nil, errs.WithPath(be, path)
			}
			return nil, err
		}
		return v, nil
	case KindWireMap:
		arr, ok := raw.([]any)
		if !ok {
			return nil, shapeErr(path, "expected array for map entries, got %T", raw)
		}
		out := make(WireMap, len(arr))
		for i, entryRaw := range arr {
			pair, ok := entryRaw.([]any)
			if !ok || len(pair) != 2 {
				return nil, shapeErr(path, "expected [key,value] pair at entry %d", i)
			}
			keyEnv, err := decodeEnvelope(pair[0])
			if err != nil {
				return nil, shapeErr(path, "map entry %d key: %v", i, err)
			}
			valEnv, err := decodeEnvelope(pair[1])
			if err != nil {
				return nil, shapeErr(path, "map entry %d value: %v", i, err)
			}
			key, err := Unpack(peer, shared, keyEnv, fmt.Sprintf("%s[%d].key", path, i))
			if err != nil {
				return nil, err
			}
			val, err := Unpack(peer, shared, valEnv, fmt.Sprintf("%s[%d].value", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = MapEntry{Key: key, Value: val}
		}
		return out, nil
	case KindWireSet:
		arr, ok := raw.([]any)
		if !ok {
			return nil, shapeErr(path, "expected array for set members, got %T", raw)
		}
		out := make(Set, len(arr))
		for i, memberRaw := range arr {
			env, err := decodeEnvelope(memberRaw)
			if err != nil {
				return nil, shapeErr(path, "set member %d: %v", i, err)
			}
			v, err := Unpack(peer, shared, env, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindArray:
		arr, ok := raw.([]any)
		if !ok {
			return nil, shapeErr(path, "expected array, got %T", raw)
		}
		if len(arr) != len(m.Items) {
			return nil, shapeErr(path, "array length %d does not match map length %d", len(arr), len(m.Items))
		}
		out := make([]any, len(arr))
		for i := range arr {
			v, err := unpackWithMap(peer, shared, m.Items[i], arr[i], fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, shapeErr(path, "expected object, got %T", raw)
		}
		out := make(map[string]any, len(obj))
		for key, v := range obj {
			childPath := path + "." + key
			if sub, ok := m.Fields[key]; ok {
				uv, err := unpackWithMap(peer, shared, sub, v, childPath)
				if err != nil {
					return nil, err
				}
				out[key] = uv
			} else {
				out[key] = v
			}
		}
		return out, nil
	default:
		return nil, shapeErr(path, "invalid map kind %d", m.Kind)
	}
}

// decodeEnvelope reconstructs a PackedData from a value that was decoded
// generically into interface{} — as happens for entries nested inside a
// WireMap, Set, or error's props, which encoding/json cannot dispatch to
// PackedData.UnmarshalJSON because their static field type is `any`.
func decodeEnvelope(raw any) (PackedData, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return PackedData{}, fmt.Errorf("expected packed entry object, got %T", raw)
	}
	env := PackedData{Raw: obj["raw"]}
	if t, ok := obj["throw"].(bool); ok {
		env.Throw = t
	}
	if rawMap, ok := obj["map"]; ok {
		dm, err := decodeDataMap(rawMap)
		if err != nil {
			return PackedData{}, err
		}
		env.Map = dm
	} else {
		env.Map = Identity()
	}
	return env, nil
}

func decodeDataMap(raw any) (DataMap, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return DataMap{}, err
	}
	var dm DataMap
	if err := json.Unmarshal(b, &dm); err != nil {
		return DataMap{}, err
	}
	return dm, nil
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// PackedError is the reconstructed form of a KindErrorValue entry: a plain
// Go error carrying the base exception name (if any), message, captured
// remote stack, and any extra own properties the far side packed.
type PackedError struct {
	Base    string
	Message string
	Stack   string
	Props   map[string]any
}

func (e *PackedError) Error() string {
	if e.Base != "" {
		return e.Base + ": " + e.Message
	}
	return e.Message
}

func unpackError(peer Peer, shared SharedTable, raw any, path string) (any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, shapeErr(path, "expected error object, got %T", raw)
	}
	pe := &PackedError{}
	if base, ok := obj["base"].(string); ok {
		pe.Base = base
	}
	if msg, ok := obj["message"].(string); ok {
		pe.Message = msg
	}
	if stack, ok := obj["stack"].(string); ok {
		pe.Stack = stack
	}
	if propsRaw, ok := obj["props"].(map[string]any); ok {
		pe.Props = make(map[string]any, len(propsRaw))
		for key, entryRaw := range propsRaw {
			env, err := decodeEnvelope(entryRaw)
			if err != nil {
				return nil, shapeErr(path, "error prop %q: %v", key, err)
			}
			v, err := Unpack(peer, shared, env, path+".props."+key)
			if err != nil {
				return nil, err
			}
			pe.Props[key] = v
		}
	}
	return pe, nil
}
