package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindStringList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string list"
	default:
		return "invalid"
	}
}

// Value is a property value. It is one of string, int, float, bool or a list
// of strings; those are the only shapes the graph stores accept.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	list []string
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringListValue copies items into a list value.
func StringListValue(items ...string) Value {
	return Value{kind: KindStringList, list: slices.Clone(items)}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsFloat returns numeric values as float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsStringList() ([]string, bool) {
	return slices.Clone(v.list), v.kind == KindStringList
}

// Any returns the native Go value: string, int64, float64, bool or []string.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindStringList:
		if v.list == nil {
			return []string{}
		}
		return slices.Clone(v.list)
	}
	return nil
}

// String renders the value for display and text matching.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindStringList:
		return strings.Join(v.list, ", ")
	case KindInvalid:
		return ""
	}
	return fmt.Sprint(v.Any())
}

// Equal reports whether two values hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindStringList:
		return slices.Equal(v.list, o.list)
	default:
		return v.s == o.s && v.i == o.i && v.f == o.f && v.b == o.b
	}
}

// empty reports whether an update with v should remove the key.
func (v Value) empty() bool {
	switch v.kind {
	case KindInvalid:
		return true
	case KindString:
		return v.s == ""
	case KindStringList:
		return len(v.list) == 0
	}
	return false
}

// ValueOf converts a native value into a Value. Nested maps, nil, and lists
// holding anything but strings are rejected.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		if !t.IsValid() {
			return Value{}, fmt.Errorf("invalid value")
		}
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint8:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows int64", t)
		}
		return IntValue(int64(t)), nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		return FloatValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return FloatValue(f), nil
	case []string:
		return StringListValue(t...), nil
	case []any:
		items := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return Value{}, fmt.Errorf("list element %d is %T, only strings are allowed", i, e)
			}
			items = append(items, s)
		}
		return Value{kind: KindStringList, list: items}, nil
	case nil:
		return Value{}, fmt.Errorf("nil is not a property value")
	}
	return Value{}, fmt.Errorf("%T is not a property value", x)
}

// coerceValue converts a value read back from a store. It never fails:
// shapes outside the variant are rendered as strings.
func coerceValue(x any) Value {
	if v, err := ValueOf(x); err == nil {
		return v
	}
	if list, ok := x.([]any); ok {
		items := make([]string, len(list))
		for i, e := range list {
			items[i] = fmt.Sprint(e)
		}
		return StringListValue(items...)
	}
	return StringValue(fmt.Sprint(x))
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Properties is the property map of a node or relationship.
type Properties map[string]Value

// ParseProperties validates a native map. Failures are BadPropertiesErrors
// carrying the offending map.
func ParseProperties(m map[string]any) (Properties, error) {
	out := make(Properties, len(m))
	for k, raw := range m {
		if k == "" {
			return nil, &BadPropertiesError{Properties: m, Reason: "empty property key"}
		}
		v, err := ValueOf(raw)
		if err != nil {
			return nil, &BadPropertiesError{Properties: m, Key: k, Reason: err.Error()}
		}
		out[k] = v
	}
	return out, nil
}

// MustProperties is ParseProperties for literals known to be valid.
func MustProperties(m map[string]any) Properties {
	p, err := ParseProperties(m)
	if err != nil {
		panic(err)
	}
	return p
}

// Map returns the native form used as a query parameter.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Any()
	}
	return out
}

// Clone returns a shallow copy; Values are immutable.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the native value stored under key, or nil.
func (p Properties) Get(key string) any {
	v, ok := p[key]
	if !ok {
		return nil
	}
	return v.Any()
}

// validate checks every value holds a variant. Properties built outside
// ParseProperties may carry zero Values.
func (p Properties) validate() error {
	for k, v := range p {
		if k == "" {
			return &BadPropertiesError{Properties: p.Map(), Reason: "empty property key"}
		}
		if !v.IsValid() {
			return &BadPropertiesError{Properties: p.Map(), Key: k, Reason: "invalid value"}
		}
	}
	return nil
}

// decodeProperties converts a store-native map into Properties.
func decodeProperties(m map[string]any) Properties {
	out := make(Properties, len(m))
	for k, raw := range m {
		if raw == nil {
			continue
		}
		out[k] = coerceValue(raw)
	}
	return out
}

// MergeUpdate applies updates to current: a non-empty value replaces the
// key, an empty string or empty list removes it. Numbers and booleans are
// always kept, zero included. current is not modified.
func MergeUpdate(current, updates Properties) Properties {
	out := current.Clone()
	for k, v := range updates {
		if v.empty() {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// MergeProperty folds value into the existing property key: integers are
// summed and string lists are unioned. A missing key is set outright. It
// returns false when the two values cannot be merged.
func MergeProperty(props Properties, key string, value Value) bool {
	existing, ok := props[key]
	if !ok || existing.empty() {
		props[key] = value
		return true
	}
	switch {
	case existing.kind == KindInt && value.kind == KindInt:
		props[key] = IntValue(existing.i + value.i)
	case existing.kind == KindStringList && value.kind == KindStringList:
		merged := slices.Clone(existing.list)
		for _, item := range value.list {
			if !slices.Contains(merged, item) {
				merged = append(merged, item)
			}
		}
		sort.Strings(merged)
		props[key] = Value{kind: KindStringList, list: merged}
	default:
		return false
	}
	return true
}
