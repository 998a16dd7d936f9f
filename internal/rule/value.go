package rule

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ValueType tags the variant held by a Value.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeDate    ValueType = "date"
	TypeArray   ValueType = "array"
	TypeObject  ValueType = "object"
)

// Known reports whether t is a recognised value type.
func (t ValueType) Known() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeArray, TypeObject:
		return true
	}
	return false
}

// dateLayouts are tried in order when a date arrives as text.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Value is a tagged union keyed by Type. Only the field matching Type is meaningful.
//
// Template carries a "${path}" expression for a number, boolean or date that is
// only known once the evaluation context is available.
type Value struct {
	Type     ValueType
	Str      string
	Num      float64
	Bool     bool
	Time     time.Time
	List     []Value
	Obj      map[string]any
	Template string
}

func String(s string) Value { return Value{Type: TypeString, Str: s} }
func Number(f float64) Value { return Value{Type: TypeNumber, Num: f} }
func Boolean(b bool) Value { return Value{Type: TypeBoolean, Bool: b} }
func Date(t time.Time) Value { return Value{Type: TypeDate, Time: t} }
func Array(vs ...Value) Value { return Value{Type: TypeArray, List: vs} }
func Object(m map[string]any) Value { return Value{Type: TypeObject, Obj: m} }

// IsZero reports whether v carries no value at all (used by exists/notExists).
func (v Value) IsZero() bool {
	return v.Type == ""
}

// IsTemplate reports whether v still needs placeholder resolution.
func (v Value) IsTemplate() bool {
	return v.Template != ""
}

// Decode converts a loosely typed value (as produced by encoding/json) into a Value of type t.
// An empty t infers the type from raw. A nil raw is no value at all, whatever t says.
func Decode(t ValueType, raw any) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	if t == "" {
		return Infer(raw), nil
	}
	switch t {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("value %v is not a string", raw)
		}
		return String(s), nil
	case TypeNumber:
		if f, ok := ToFloat64(raw); ok {
			return Number(f), nil
		}
		if s, ok := raw.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return Number(f), nil
			}
			if HasPlaceholder(s) {
				return Value{Type: TypeNumber, Template: s}, nil
			}
		}
		return Value{}, fmt.Errorf("value %v is not a number", raw)
	case TypeBoolean:
		switch b := raw.(type) {
		case bool:
			return Boolean(b), nil
		case string:
			if p, err := strconv.ParseBool(b); err == nil {
				return Boolean(p), nil
			}
			if HasPlaceholder(b) {
				return Value{Type: TypeBoolean, Template: b}, nil
			}
		}
		return Value{}, fmt.Errorf("value %v is not a boolean", raw)
	case TypeDate:
		if tm, ok := ToTime(raw); ok {
			return Date(tm), nil
		}
		if s, ok := raw.(string); ok && HasPlaceholder(s) {
			return Value{Type: TypeDate, Template: s}, nil
		}
		return Value{}, fmt.Errorf("value %v is not a date", raw)
	case TypeArray:
		items, ok := ToSlice(raw)
		if !ok {
			return Value{}, fmt.Errorf("value %v is not an array", raw)
		}
		list := make([]Value, len(items))
		for i, it := range items {
			list[i] = Infer(it)
		}
		return Array(list...), nil
	case TypeObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("value %v is not an object", raw)
		}
		return Object(cloneMap(m)), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", t)
	}
}

// Infer picks the variant that best matches raw. Strings stay strings; dates must be declared.
func Infer(raw any) Value {
	switch r := raw.(type) {
	case nil:
		return Value{}
	case Value:
		return r.Clone()
	case string:
		return String(r)
	case bool:
		return Boolean(r)
	case time.Time:
		return Date(r)
	case map[string]any:
		return Object(cloneMap(r))
	}
	if f, ok := ToFloat64(raw); ok {
		return Number(f)
	}
	if items, ok := ToSlice(raw); ok {
		list := make([]Value, len(items))
		for i, it := range items {
			list[i] = Infer(it)
		}
		return Array(list...)
	}
	return String(fmt.Sprint(raw))
}

// Any returns the plain Go representation used for JSON encoding.
func (v Value) Any() any {
	if v.Template != "" {
		return v.Template
	}
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeNumber:
		return v.Num
	case TypeBoolean:
		return v.Bool
	case TypeDate:
		return v.Time.Format(time.RFC3339Nano)
	case TypeArray:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.Any()
		}
		return out
	case TypeObject:
		return cloneMap(v.Obj)
	}
	return nil
}

// String renders v the way the regex and string operators see it.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	case TypeDate:
		return v.Time.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v.Any())
}

// Clone deep-copies list and object payloads.
func (v Value) Clone() Value {
	out := v
	if v.List != nil {
		out.List = make([]Value, len(v.List))
		for i, e := range v.List {
			out.List[i] = e.Clone()
		}
	}
	if v.Obj != nil {
		out.Obj = cloneMap(v.Obj)
	}
	return out
}

// MarshalJSON encodes the untagged representation; the tag travels separately.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON infers the variant from the JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Infer(raw)
	return nil
}

// HasPlaceholder reports whether s contains a "${...}" reference.
func HasPlaceholder(s string) bool {
	i := strings.Index(s, "${")
	return i >= 0 && strings.Contains(s[i:], "}")
}

// ToFloat64 coerces a numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToTime accepts a time.Time or a string in one of the supported layouts.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if tm, err := time.Parse(layout, s); err == nil {
				return tm, true
			}
		}
	}
	return time.Time{}, false
}

// ToSlice converts any slice or array into []any.
func ToSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
