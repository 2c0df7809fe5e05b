package attribute

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"text", "Lounge", Text("Lounge")},
		{"json int", json.Number("42"), Int(42)},
		{"json float", json.Number("21.5"), Float(21.5)},
		{"float64", 21.5, Float(21.5)},
		{"int", 3, Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.raw)
			if err != nil {
				t.Fatalf("ValueOf(%v) error = %v", tt.raw, err)
			}
			if got.Kind() != tt.want.Kind() || !got.Equal(tt.want) {
				t.Errorf("ValueOf(%v) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValueOf_Container(t *testing.T) {
	_, err := ValueOf(map[string]any{"a": 1})
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("ValueOf(map) error = %v, want ErrUnsupportedValue", err)
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", Null(), Null(), true},
		{"int float numeric", Int(1), Float(1), true},
		{"int float differ", Int(1), Float(1.5), false},
		{"bool vs int", Bool(true), Int(1), false},
		{"text", Text("a"), Text("a"), true},
		{"text vs null", Text(""), Null(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%s.Equal(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"t": Float(21.5), "n": Null(), "s": Text("x")})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"n":null,"s":"x","t":21.5}` {
		t.Errorf("Marshal() = %s", data)
	}

	var v Value
	if err := json.Unmarshal([]byte("7"), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v.Kind() != KindInt {
		t.Errorf("Unmarshal(7) kind = %s, want int", v.Kind())
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		want    Kind
		wantErr bool
	}{
		{"bool", KindBool, false},
		{"Boolean", KindBool, false},
		{"integer", KindInt, false},
		{"number", KindFloat, false},
		{"unicode", KindText, false},
		{"string", KindText, false},
		{"complex", KindNull, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownKind) {
				t.Errorf("ParseKind(%q) error = %v, want ErrUnknownKind", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		kind Kind
		want Value
	}{
		{"text to int", "42", KindInt, Int(42)},
		{"float truncates to int", json.Number("21.9"), KindInt, Int(21)},
		{"int to float", json.Number("21"), KindFloat, Float(21)},
		{"int to bool", json.Number("1"), KindBool, Bool(true)},
		{"zero to bool", json.Number("0"), KindBool, Bool(false)},
		{"text to bool", "true", KindBool, Bool(true)},
		{"bool to int", true, KindInt, Int(1)},
		{"number to text", json.Number("3"), KindText, Text("3")},
		{"null stays null", nil, KindFloat, Null()},
		{"null target keeps kind", "x", KindNull, Text("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, tt.kind)
			if err != nil {
				t.Fatalf("Coerce(%v, %s) error = %v", tt.raw, tt.kind, err)
			}
			if got.Kind() != tt.want.Kind() || !got.Equal(tt.want) {
				t.Errorf("Coerce(%v, %s) = %#v, want %#v", tt.raw, tt.kind, got, tt.want)
			}
		})
	}
}

func TestCoerce_Failure(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		kind Kind
	}{
		{"text to int", "abc", KindInt},
		{"text to float", "warm", KindFloat},
		{"text to bool", "maybe", KindBool},
		{"container", []any{1}, KindInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.raw, tt.kind)
			if !errors.Is(err, ErrTypeCoercion) {
				t.Errorf("Coerce(%v, %s) error = %v, want ErrTypeCoercion", tt.raw, tt.kind, err)
			}
		})
	}
}

func TestCoerceExact(t *testing.T) {
	got, err := CoerceExact(25.0, KindInt)
	if err != nil || !got.Equal(Int(25)) {
		t.Errorf("CoerceExact(25.0, int) = %v, %v, want 25", got, err)
	}
	if got, err := CoerceExact(json.Number("22.5"), KindFloat); err != nil || !got.Equal(Float(22.5)) {
		t.Errorf("CoerceExact(22.5, float) = %v, %v, want 22.5", got, err)
	}

	for _, raw := range []any{22.5, json.Number("21.9"), -0.5} {
		if _, err := CoerceExact(raw, KindInt); !errors.Is(err, ErrTypeCoercion) {
			t.Errorf("CoerceExact(%v, int) error = %v, want ErrTypeCoercion", raw, err)
		}
	}
}
