package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is the single representation for anything a condition compares or an
// action receives as a parameter. Keeping coercion here means the evaluator
// applies one set of rules instead of each call site improvising its own.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
}

// Missing is the zero Value, returned when a field path does not resolve.
var Missing = Value{}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// FromAny converts a decoded JSON/YAML value into a Value. Unrecognized
// types fall back to their fmt representation rather than failing.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Missing
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case json.Number:
		if n, err := t.Float64(); err == nil {
			return Number(n)
		}
		return String(t.String())
	case []any:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			list = append(list, FromAny(item))
		}
		return List(list...)
	case []string:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			list = append(list, String(item))
		}
		return List(list...)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is the missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// AsString renders the value as a string. Lists render element by element;
// callers that care about list shape should check Kind first.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		out := "["
		for i, item := range v.list {
			if i > 0 {
				out += ","
			}
			out += item.AsString()
		}
		return out + "]"
	}
	return ""
}

// AsNumber returns the numeric interpretation of the value. Numeric strings
// parse; everything else reports false.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(v.str, 64)
		return n, err == nil
	}
	return 0, false
}

// AsList returns the list elements, or false when the value is not a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Equal implements the comparison used by EQUALS, IN and list CONTAINS.
// When both sides parse as numbers they compare numerically, so "20" equals
// 20; otherwise the string renderings compare. Missing equals nothing,
// including another Missing.
func (v Value) Equal(other Value) bool {
	if v.IsMissing() || other.IsMissing() {
		return false
	}
	if v.kind == KindList || other.kind == KindList {
		if v.kind != other.kind {
			return false
		}
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	}
	vn, vok := v.AsNumber()
	on, ook := other.AsNumber()
	if vok && ook {
		return vn == on
	}
	return v.AsString() == other.AsString()
}

// MarshalJSON renders the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMissing:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("cannot marshal value of kind %v", v.kind)
}

// UnmarshalJSON accepts any JSON scalar or array.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// ParamMap converts a plain map into Value parameters.
func ParamMap(m map[string]any) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for k, val := range m {
		out[k] = FromAny(val)
	}
	return out
}
