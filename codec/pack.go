package codec

import (
	"fmt"
	"reflect"
	"time"

	"github.com/bridgekit/bridge/errs"
	"github.com/bridgekit/bridge/internal/wire"
)

// RawBuffer marks a byte slice that should be tagged 'ab' (a raw buffer)
// rather than 'u8' (a typed byte array). The two decode identically; only
// the wire tag differs, mirroring a JS ArrayBuffer/Uint8Array split.
type RawBuffer []byte

// WireMap represents a bridge Map value: an ordered list of key/value pairs
// that, unlike a Go map[string]any, packs each entry as an independently
// shaped envelope rather than sharing one per-field map tree. Plain Go maps
// with string keys are packed as Objects instead; use WireMap when the
// map's keys are not strings or its entries need independent envelopes.
type WireMap []MapEntry

// MapEntry is one key/value pair of a WireMap.
type MapEntry struct {
	Key   any
	Value any
}

// Set represents a bridge Set value: an ordered list of unique members,
// each packed as an independent envelope.
type Set []any

type undefinedType struct{}

// Undefined is the sentinel bridge value for JS-style "undefined", distinct
// from nil (which packs as the identity null).
var Undefined = undefinedType{}

const maxDepth = 64

// Map classifies value into the structural shape tree Pack will use to
// transform it, without consuming any ids. shared and checker may be nil,
// in which case no value is ever classified as KindShared/KindBridgeable.
func Map(shared SharedTable, checker BridgeableChecker, value any) DataMap {
	return mapValue(shared, checker, value, 0)
}

func mapValue(shared SharedTable, checker BridgeableChecker, value any, depth int) DataMap {
	if depth > maxDepth {
		return DataMap{Kind: KindUnsupported}
	}
	if value == nil {
		return Identity()
	}
	switch value.(type) {
	case undefinedType:
		return DataMap{Kind: KindUndefined}
	}

	switch value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Identity()
	case time.Time:
		return DataMap{Kind: KindDate}
	case []byte:
		return DataMap{Kind: KindBytes}
	case RawBuffer:
		return DataMap{Kind: KindBuffer}
	case error:
		return DataMap{Kind: KindErrorValue}
	case WireMap:
		return DataMap{Kind: KindWireMap}
	case Set:
		return DataMap{Kind: KindWireSet}
	}

	// Shared constants and bridgeable objects are classified by identity,
	// ahead of any structural inspection — a bridgeable struct must never
	// be mistaken for a plain object just because it happens to be one.
	if shared != nil {
		if _, ok := shared.ShareID(value); ok {
			return DataMap{Kind: KindShared}
		}
	}
	if checker != nil && checker.IsBridgeable(value) {
		return DataMap{Kind: KindBridgeable}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Identity()
		}
		return mapValue(shared, checker, rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		items := make([]DataMap, rv.Len())
		identity := true
		for i := 0; i < rv.Len(); i++ {
			items[i] = mapValue(shared, checker, rv.Index(i).Interface(), depth+1)
			if !items[i].IsIdentity() {
				identity = false
			}
		}
		if identity {
			return Identity()
		}
		return DataMap{Kind: KindArray, Items: items}
	case reflect.Map:
		fields := make(map[string]DataMap)
		for _, key := range rv.MapKeys() {
			sub := mapValue(shared, checker, rv.MapIndex(key).Interface(), depth+1)
			if !sub.IsIdentity() {
				fields[fmt.Sprint(key.Interface())] = sub
			}
		}
		return DataMap{Kind: KindObject, Fields: fields}
	case reflect.Struct:
		fields := make(map[string]DataMap)
		for i := 0; i < rv.NumField(); i++ {
			ft := rv.Type().Field(i)
			if !ft.IsExported() {
				continue
			}
			sub := mapValue(shared, checker, rv.Field(i).Interface(), depth+1)
			if !sub.IsIdentity() {
				fields[fieldName(ft)] = sub
			}
		}
		return DataMap{Kind: KindObject, Fields: fields}
	default:
		// Channels, raw funcs (not registered as shared), complex numbers —
		// nothing a bridge peer on the far side could reconstruct.
		return DataMap{Kind: KindUnsupported}
	}
}

func fieldName(ft reflect.StructField) string {
	if tag := ft.Tag.Get("bridge"); tag != "" && tag != "-" {
		return tag
	}
	if tag := ft.Tag.Get("json"); tag != "" {
		if i := indexOfComma(tag); i >= 0 {
			tag = tag[:i]
		}
		if tag != "" && tag != "-" {
			return tag
		}
	}
	return ft.Name
}

func indexOfComma(s string) int {
	for i, c := range s {
		if c == ',' {
			return i
		}
	}
	return -1
}

// Pack classifies and transforms value into a wire envelope. peer is
// consulted (and may admit value for the first time) only for nested
// bridgeable references.
func Pack(peer Peer, shared SharedTable, checker BridgeableChecker, value any) PackedData {
	m := Map(shared, checker, value)
	return PackedData{Map: m, Raw: packWithMap(peer, shared, checker, value, m)}
}

// PackThrow packs value the same way Pack does, but marks the envelope as
// carrying a thrown error rather than a normal result.
func PackThrow(peer Peer, shared SharedTable, checker BridgeableChecker, value any) PackedData {
	p := Pack(peer, shared, checker, value)
	p.Throw = true
	return p
}

func packWithMap(peer Peer, shared SharedTable, checker BridgeableChecker, value any, m DataMap) any {
	switch m.Kind {
	case KindIdentity:
		return value
	case KindUndefined:
		return nil
	case KindDate:
		return wire.EncodeTime(value.(time.Time))
	case KindBytes:
		return wire.EncodeBytes(value.([]byte))
	case KindBuffer:
		return wire.EncodeBytes([]byte(value.(RawBuffer)))
	case KindErrorValue:
		return packError(peer, shared, checker, value.(error))
	case KindBridgeable:
		v := derefInterface(value)
		if v == nil || peer == nil {
			return nil
		}
		id, ok := peer.PackedID(v)
		if !ok {
			return nil
		}
		return id
	case KindShared:
		id, _ := shared.ShareID(value)
		return id
	case KindWireMap:
		wm := value.(WireMap)
		out := make([]any, len(wm))
		for i, e := range wm {
			out[i] = []any{Pack(peer, shared, checker, e.Key), Pack(peer, shared, checker, e.Value)}
		}
		return out
	case KindWireSet:
		s := value.(Set)
		out := make([]any, len(s))
		for i, v := range s {
			out[i] = Pack(peer, shared, checker, v)
		}
		return out
	case KindUnsupported:
		return typeName(value)
	case KindArray:
		rv := derefInterfaceValue(value)
		out := make([]any, len(m.Items))
		for i := range m.Items {
			out[i] = packWithMap(peer, shared, checker, rv.Index(i).Interface(), m.Items[i])
		}
		return out
	case KindObject:
		return packObjectFields(peer, shared, checker, value, m.Fields)
	default:
		return nil
	}
}

func packObjectFields(peer Peer, shared SharedTable, checker BridgeableChecker, value any, fields map[string]DataMap) map[string]any {
	rv := derefInterfaceValue(value)
	out := make(map[string]any)
	switch rv.Kind() {
	case reflect.Map:
		for _, key := range rv.MapKeys() {
			name := fmt.Sprint(key.Interface())
			v := rv.MapIndex(key).Interface()
			if sub, ok := fields[name]; ok {
				out[name] = packWithMap(peer, shared, checker, v, sub)
			} else {
				out[name] = v
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			ft := rv.Type().Field(i)
			if !ft.IsExported() {
				continue
			}
			name := fieldName(ft)
			v := rv.Field(i).Interface()
			if sub, ok := fields[name]; ok {
				out[name] = packWithMap(peer, shared, checker, v, sub)
			} else {
				out[name] = v
			}
		}
	}
	return out
}

func derefInterface(value any) any {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		// Bridgeable identity lives at the pointer, not its pointee: stop
		// unwrapping once we reach a non-interface value.
		if rv.Kind() == reflect.Ptr {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func derefInterfaceValue(value any) reflect.Value {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return rv
		}
		rv = rv.Elem()
	}
	return rv
}

func typeName(value any) string {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return "null"
	}
	switch rv.Kind() {
	case reflect.Func:
		return "function"
	case reflect.Chan:
		return "chan"
	case reflect.Complex64, reflect.Complex128:
		return "complex"
	default:
		return rv.Kind().String()
	}
}

// PackedErrorRaw is the raw shape for a KindErrorValue envelope.
type PackedErrorRaw struct {
	Base    *string               `json:"base"`
	Message string                `json:"message"`
	Stack   string                `json:"stack,omitempty"`
	Props   map[string]PackedData `json:"props,omitempty"`
}

type categorized interface {
	Category() errs.Category
}

func packError(peer Peer, shared SharedTable, checker BridgeableChecker, err error) PackedErrorRaw {
	var base *string
	if ce, ok := err.(categorized); ok {
		switch ce.Category() {
		case errs.TypeError:
			name := "TypeError"
			base = &name
		case errs.RangeError:
			name := "RangeError"
			base = &name
		}
	}
	stack := ""
	if st, ok := err.(stackTracer); ok {
		stack = st.Stack()
	}

	props := map[string]PackedData{}
	rv := reflect.ValueOf(err)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			break
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		for i := 0; i < rv.NumField(); i++ {
			ft := rv.Type().Field(i)
			if !ft.IsExported() {
				continue
			}
			name := fieldName(ft)
			if name == "Message" || name == "Stack" || name == "Kind" {
				continue
			}
			props[name] = Pack(peer, shared, checker, rv.Field(i).Interface())
		}
	}
	if len(props) == 0 {
		props = nil
	}
	return PackedErrorRaw{Base: base, Message: err.Error(), Stack: stack, Props: props}
}

// stackTracer is implemented by error types that carry a captured stack, so
// packError can surface it without importing any particular error package.
type stackTracer interface {
	Stack() string
}
