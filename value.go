package rexpro

import "fmt"

// ValueKind tags the dynamic shape a decoded result can take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInteger
	KindFloat
	KindText
	KindList
	KindMap
)

// Value is a dynamic result value decoded from a RexPro response. The
// server returns heterogeneous, possibly nested structures; Value leaves
// richer typing to the caller (§9 design note) while still giving typed
// accessors for the common cases. §9 names "binary" alongside these kinds,
// but §4.1's byte-string normalization is total: every decoded byte string
// becomes KindText before a Value is ever constructed, so there is no
// surviving binary representation to tag.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsInt64() (int64, bool) {
	return v.i, v.kind == KindInteger
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind == KindFloat {
		return v.f, true
	}
	if v.kind == KindInteger {
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindText
}

func (v Value) AsSlice() ([]Value, bool) {
	return v.list, v.kind == KindList
}

func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "<nil>"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return v.s
	case KindList:
		return fmt.Sprintf("%v", v.list)
	case KindMap:
		return fmt.Sprintf("%v", v.m)
	default:
		return ""
	}
}

// newValue walks a MessagePack-decoded tree (as produced by decoding into
// `any`) and normalizes it into a Value tree, decoding any byte strings as
// UTF-8 text along the way. This is the total recursive conversion §4.1
// requires: dict/list/scalar/bytes, leaving integers, floats, and text
// strings untouched.
func newValue(decoded any) Value {
	switch x := decoded.(type) {
	case nil:
		return Value{kind: KindNull}
	case bool:
		return Value{kind: KindBool, b: x}
	case int:
		return Value{kind: KindInteger, i: int64(x)}
	case int8:
		return Value{kind: KindInteger, i: int64(x)}
	case int16:
		return Value{kind: KindInteger, i: int64(x)}
	case int32:
		return Value{kind: KindInteger, i: int64(x)}
	case int64:
		return Value{kind: KindInteger, i: x}
	case uint:
		return Value{kind: KindInteger, i: int64(x)}
	case uint8:
		return Value{kind: KindInteger, i: int64(x)}
	case uint16:
		return Value{kind: KindInteger, i: int64(x)}
	case uint32:
		return Value{kind: KindInteger, i: int64(x)}
	case uint64:
		return Value{kind: KindInteger, i: int64(x)}
	case float32:
		return Value{kind: KindFloat, f: float64(x)}
	case float64:
		return Value{kind: KindFloat, f: x}
	case string:
		return Value{kind: KindText, s: x}
	case []byte:
		// Byte strings are decoded as UTF-8 text, per §4.1.
		return Value{kind: KindText, s: string(x)}
	case []any:
		list := make([]Value, len(x))
		for i, item := range x {
			list[i] = newValue(item)
		}
		return Value{kind: KindList, list: list}
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = newValue(item)
		}
		return Value{kind: KindMap, m: m}
	case map[any]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[normalizeKey(k)] = newValue(item)
		}
		return Value{kind: KindMap, m: m}
	default:
		// Unrecognized scalar type from the decoder; stringify rather than
		// drop it silently.
		return Value{kind: KindText, s: fmt.Sprintf("%v", x)}
	}
}

func normalizeKey(k any) string {
	switch x := k.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
