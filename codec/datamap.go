// Package codec implements a depth-first pack/unpack data codec:
// classifying arbitrary values into a DataMap shape tree, then transforming
// them into and out of JSON-compatible PackedData envelopes.
package codec

import (
	"encoding/json"
	"fmt"
)

// Kind is the scalar tag a DataMap node carries, or one of the two
// container discriminators (Array/Object) when the node instead carries a
// nested shape tree. This is the statically typed rendition of a DataMap as
// a sum type over eleven scalar tags plus two container cases.
type Kind int

const (
	KindIdentity    Kind = iota // ''   no transformation
	KindUnsupported             // '?'  unsupported type
	KindUndefined               // 'u'  undefined (raw = null)
	KindDate                     // 'd'  Date (raw = ISO 8601 string)
	KindErrorValue               // 'e'  Error (raw = PackedError)
	KindBridgeable                // 'o'  bridgeable (raw = packedId | null)
	KindShared                     // 's'  shared constant (raw = shareId)
	KindBytes                       // 'u8' byte array (raw = base64)
	KindBuffer                       // 'ab' raw buffer (raw = base64)
	KindWireMap                       // 'M'  map (raw = packed [k,v] entries)
	KindWireSet                        // 'S'  set (raw = packed members)
	KindArray                            // per-index container
	KindObject                            // per-field container
)

var scalarTags = map[Kind]string{
	KindIdentity:    "",
	KindUnsupported: "?",
	KindUndefined:   "u",
	KindDate:        "d",
	KindErrorValue:  "e",
	KindBridgeable:  "o",
	KindShared:      "s",
	KindBytes:       "u8",
	KindBuffer:      "ab",
	KindWireMap:     "M",
	KindWireSet:     "S",
}

var tagToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(scalarTags))
	for k, v := range scalarTags {
		m[v] = k
	}
	return m
}()

// DataMap is one node of the structural shape tree computed by Map. A node
// is either a scalar tag, an Array of per-index sub-maps, or an Object of
// per-field sub-maps.
type DataMap struct {
	Kind   Kind
	Items  []DataMap
	Fields map[string]DataMap
}

// Identity is the '' tag: the identity transformation on raw.
func Identity() DataMap { return DataMap{Kind: KindIdentity} }

// IsIdentity reports whether this node requires no transformation at all —
// neither itself nor (for containers) any of its children.
func (d DataMap) IsIdentity() bool {
	switch d.Kind {
	case KindIdentity:
		return true
	case KindArray:
		for _, item := range d.Items {
			if !item.IsIdentity() {
				return false
			}
		}
		return true
	case KindObject:
		return len(d.Fields) == 0
	default:
		return false
	}
}

func (d DataMap) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindArray:
		return json.Marshal(d.Items)
	case KindObject:
		return json.Marshal(d.Fields)
	default:
		tag, ok := scalarTags[d.Kind]
		if !ok {
			return nil, fmt.Errorf("codec: invalid DataMap kind %d", d.Kind)
		}
		return json.Marshal(tag)
	}
}

func (d *DataMap) UnmarshalJSON(b []byte) error {
	var probe any
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	switch v := probe.(type) {
	case string:
		kind, ok := tagToKind[v]
		if !ok {
			return fmt.Errorf("codec: unknown map tag %q", v)
		}
		*d = DataMap{Kind: kind}
		return nil
	case []any:
		items := make([]DataMap, len(v))
		for i := range v {
			raw, err := json.Marshal(v[i])
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &items[i]); err != nil {
				return err
			}
		}
		*d = DataMap{Kind: KindArray, Items: items}
		return nil
	case map[string]any:
		fields := make(map[string]DataMap, len(v))
		for key, val := range v {
			raw, err := json.Marshal(val)
			if err != nil {
				return err
			}
			var sub DataMap
			if err := json.Unmarshal(raw, &sub); err != nil {
				return err
			}
			fields[key] = sub
		}
		*d = DataMap{Kind: KindObject, Fields: fields}
		return nil
	default:
		return fmt.Errorf("codec: invalid map shape %T", v)
	}
}

// PackedData is the wire envelope produced by Pack and consumed by Unpack.
type PackedData struct {
	Map   DataMap
	Raw   any
	Throw bool
}

type wirePackedData struct {
	Map   *DataMap `json:"map,omitempty"`
	Raw   any      `json:"raw"`
	Throw bool     `json:"throw,omitempty"`
}

func (p PackedData) MarshalJSON() ([]byte, error) {
	w := wirePackedData{Raw: p.Raw, Throw: p.Throw}
	if !p.Map.IsIdentity() {
		w.Map = &p.Map
	}
	return json.Marshal(w)
}

func (p *PackedData) UnmarshalJSON(b []byte) error {
	var w wirePackedData
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p.Raw = w.Raw
	p.Throw = w.Throw
	if w.Map != nil {
		p.Map = *w.Map
	} else {
		p.Map = Identity()
	}
	return nil
}
