package attribute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type tag of a Value.
type Kind uint8

// Value kinds. KindNull marks a path that is present in the document but
// carries JSON null.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
)

var kindNames = [...]string{
	KindNull:  "null",
	KindBool:  "bool",
	KindInt:   "int",
	KindFloat: "float",
	KindText:  "text",
}

// String returns the canonical kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseKind converts a kind name to a Kind.
// Accepted aliases: boolean, integer, number, double, string, unicode.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "number", "double":
		return KindFloat, nil
	case "text", "string", "unicode", "str":
		return KindText, nil
	case "null":
		return KindNull, nil
	}
	return KindNull, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be read
// from YAML catalog files.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is a tagged scalar: null, bool, int, float or text.
//
// The zero Value is null. Values are immutable and safe to copy.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload; ok is false for other kinds.
func (v Value) AsInt() (i int64, ok bool) { return v.i, v.kind == KindInt }

// AsText returns the text payload; ok is false for other kinds.
func (v Value) AsText() (s string, ok bool) { return v.s, v.kind == KindText }

// AsFloat returns the value as a float64 for numeric and boolean kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Interface returns the payload as a plain Go value (nil, bool, int64, float64 or string).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	}
	return nil
}

// Equal reports whether two values are equal. Integers and floats compare
// numerically, so Int(1) equals Float(1).
func (v Value) Equal(o Value) bool {
	if v.kind == o.kind {
		switch v.kind {
		case KindNull:
			return true
		case KindBool:
			return v.b == o.b
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return v.f == o.f
		case KindText:
			return v.s == o.s
		}
	}
	if isNumeric(v.kind) && isNumeric(o.kind) {
		a, _ := v.AsFloat() //nolint:errcheck // numeric kinds always convert
		b, _ := o.AsFloat() //nolint:errcheck // numeric kinds always convert
		return a == b
	}
	return false
}

func isNumeric(k Kind) bool {
	return k == KindInt || k == KindFloat
}

// String formats the payload for logs and MQTT payloads.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	}
	return "null"
}

// MarshalJSON encodes the payload as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON scalar into a Value.
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

// ValueOf converts a JSON-decoded scalar into a Value without a declared kind.
//
// json.Number values become Int when they parse as an integer and Float
// otherwise. Mappings and sequences are rejected with ErrUnsupportedValue.
func ValueOf(raw any) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return r, nil
	case bool:
		return Bool(r), nil
	case string:
		return Text(r), nil
	case json.Number:
		if i, err := r.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := r.Float64()
		if err != nil {
			return Null(), fmt.Errorf("%w: number %q", ErrUnsupportedValue, r.String())
		}
		return Float(f), nil
	case float64:
		return Float(r), nil
	case float32:
		return Float(float64(r)), nil
	case int:
		return Int(int64(r)), nil
	case int8:
		return Int(int64(r)), nil
	case int16:
		return Int(int64(r)), nil
	case int32:
		return Int(int64(r)), nil
	case int64:
		return Int(r), nil
	case uint8:
		return Int(int64(r)), nil
	case uint16:
		return Int(int64(r)), nil
	case uint32:
		return Int(int64(r)), nil
	}
	return Null(), fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
}
