package form

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is the tagged variant used for everything crossing the extraction
// boundary. Entity extraction hands back strings, numbers, booleans and lists
// interchangeably; ingesting them here lets transformation and validation
// code match on Kind instead of doing ad hoc type checks.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
}

// String builds a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List builds a list Value.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// FromAny ingests an arbitrary decoded JSON value. The second return is false
// for nil and for types with no sensible mapping.
func FromAny(v any) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return Value{}, false
	case string:
		return String(x), true
	case float64:
		return Number(x), true
	case int:
		return Number(float64(x)), true
	case int64:
		return Number(float64(x)), true
	case bool:
		return Bool(x), true
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f), true
		}
		return String(x.String()), true
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			if iv, ok := FromAny(item); ok {
				items = append(items, iv)
			}
		}
		return List(items), true
	case []string:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			items = append(items, String(item))
		}
		return List(items), true
	case Value:
		return x, true
	default:
		return Value{}, false
	}
}

// IngestEntities converts a raw entity map from the extraction boundary into
// tagged values, dropping entries with no usable representation.
func IngestEntities(raw map[string]any) map[string]Value {
	entities := make(map[string]Value, len(raw))
	for key, v := range raw {
		if value, ok := FromAny(v); ok {
			entities[key] = value
		}
	}
	return entities
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value carries no usable content: a blank
// string, an empty list, or the zero Value.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Text renders the value as a display string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Float interprets the value numerically. String values are parsed after
// stripping a trailing percent sign, so "10.2%" compares as 10.2.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.str), "%"))
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// First returns the first element of a list value, or the value itself for
// every other kind. Empty lists yield the zero Value.
func (v Value) First() Value {
	if v.kind != KindList {
		return v
	}
	if len(v.list) == 0 {
		return Value{}
	}
	return v.list[0]
}

// Items returns the elements of a list value.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// MarshalJSON renders empty values as null and everything else in its native
// JSON shape, matching the stored form-data format.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		if v.str == "" {
			return []byte("null"), nil
		}
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

// UnmarshalJSON is the inverse of MarshalJSON; null decodes to the zero
// Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	value, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("cannot decode %s into a form value", string(data))
	}
	*v = value
	return nil
}
