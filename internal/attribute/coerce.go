package attribute

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts a raw JSON-decoded scalar to the given kind.
//
// Conversion rules:
//   - null stays null for every kind
//   - bool: numbers are true when non-zero; text must parse with strconv.ParseBool
//   - int: booleans map to 0/1; floats truncate toward zero; text must be an integer literal
//   - float: booleans map to 0/1; text must parse as a float
//   - text: every scalar is formatted
//
// KindNull as a target keeps the value's natural kind.
// Returns ErrTypeCoercion when the conversion is impossible.
func Coerce(raw any, kind Kind) (Value, error) {
	v, err := ValueOf(raw)
	if err != nil {
		return Null(), fmt.Errorf("%w: %w", ErrTypeCoercion, err)
	}
	return CoerceValue(v, kind)
}

// CoerceExact is Coerce for outbound values: a float with a fractional part
// does not convert to int.
func CoerceExact(raw any, kind Kind) (Value, error) {
	v, err := ValueOf(raw)
	if err != nil {
		return Null(), fmt.Errorf("%w: %w", ErrTypeCoercion, err)
	}
	if kind == KindInt && v.kind == KindFloat && v.f != math.Trunc(v.f) {
		return Null(), fmt.Errorf("%w: %v is not a whole number", ErrTypeCoercion, v.f)
	}
	return CoerceValue(v, kind)
}

// CoerceValue converts a Value to the given kind. See Coerce for the rules.
func CoerceValue(v Value, kind Kind) (Value, error) {
	if v.kind == KindNull || kind == KindNull || v.kind == kind {
		return v, nil
	}

	switch kind {
	case KindBool:
		return toBool(v)
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindText:
		return Text(v.String()), nil
	}
	return Null(), fmt.Errorf("%w: unknown target kind %s", ErrTypeCoercion, kind)
}

func toBool(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return Bool(v.i != 0), nil
	case KindFloat:
		return Bool(v.f != 0), nil
	case KindText:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return Null(), fmt.Errorf("%w: %q is not a bool", ErrTypeCoercion, v.s)
		}
		return Bool(b), nil
	}
	return Null(), fmt.Errorf("%w: %s to bool", ErrTypeCoercion, v.kind)
}

func toInt(v Value) (Value, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return Int(1), nil
		}
		return Int(0), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) || v.f > math.MaxInt64 || v.f < math.MinInt64 {
			return Null(), fmt.Errorf("%w: %v out of int range", ErrTypeCoercion, v.f)
		}
		return Int(int64(v.f)), nil
	case KindText:
		i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("%w: %q is not an integer", ErrTypeCoercion, v.s)
		}
		return Int(i), nil
	}
	return Null(), fmt.Errorf("%w: %s to int", ErrTypeCoercion, v.kind)
}

func toFloat(v Value) (Value, error) {
	switch v.kind {
	case KindBool, KindInt:
		f, _ := v.AsFloat() //nolint:errcheck // bool and int always convert
		return Float(f), nil
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return Null(), fmt.Errorf("%w: %q is not a number", ErrTypeCoercion, v.s)
		}
		return Float(f), nil
	}
	return Null(), fmt.Errorf("%w: %s to float", ErrTypeCoercion, v.kind)
}
