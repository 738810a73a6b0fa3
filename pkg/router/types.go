package router

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// Type is the declared type of a handler parameter. It owns the conversion
// from a loosely-typed payload value to the value the handler receives.
// The zero Type passes values through unchanged.
type Type struct {
	name    string
	convert func(any) (any, error)
}

func (t Type) String() string {
	if t.name == "" {
		return "any"
	}
	return t.name
}

// Coerce converts v to the declared type.
func (t Type) Coerce(v any) (any, error) {
	if t.convert == nil {
		return v, nil
	}
	return t.convert(v)
}

func primitive[T any](name string, fn func(any) (T, error)) Type {
	return Type{name: name, convert: func(v any) (any, error) {
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}}
}

// Primitive conversion table. Integer and float32 conversions fail when the
// value does not fit the declared width.
var (
	Any     = Type{}
	Bool    = primitive("bool", cast.ToBoolE)
	Int     = primitive("int", signed[int](math.MinInt, math.MaxInt))
	Int8    = primitive("int8", signed[int8](math.MinInt8, math.MaxInt8))
	Int16   = primitive("int16", signed[int16](math.MinInt16, math.MaxInt16))
	Int32   = primitive("int32", signed[int32](math.MinInt32, math.MaxInt32))
	Int64   = primitive("int64", signed[int64](math.MinInt64, math.MaxInt64))
	Uint    = primitive("uint", unsigned[uint](math.MaxUint))
	Uint8   = primitive("uint8", unsigned[uint8](math.MaxUint8))
	Uint16  = primitive("uint16", unsigned[uint16](math.MaxUint16))
	Uint32  = primitive("uint32", unsigned[uint32](math.MaxUint32))
	Uint64  = primitive("uint64", unsigned[uint64](math.MaxUint64))
	Float32 = primitive("float32", toFloat32)
	Float64 = primitive("float64", cast.ToFloat64E)
	String  = primitive("string", cast.ToStringE)
	Char    = primitive("char", toRune)
)

// Float bounds of the int64 range; float64(math.MaxInt64) rounds up to 2^63.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

func signed[T ~int | ~int8 | ~int16 | ~int32 | ~int64](lo, hi int64) func(any) (T, error) {
	return func(v any) (T, error) {
		if f, ok := floatValue(v); ok && (f < minInt64Float || f >= maxInt64Float) {
			return 0, fmt.Errorf("%v overflows %T", v, T(0))
		}
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, err
		}
		if n < lo || n > hi {
			return 0, fmt.Errorf("%v overflows %T", v, T(0))
		}
		return T(n), nil
	}
}

func unsigned[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](hi uint64) func(any) (T, error) {
	return func(v any) (T, error) {
		if f, ok := floatValue(v); ok && f >= 2*maxInt64Float {
			return 0, fmt.Errorf("%v overflows %T", v, T(0))
		}
		n, err := cast.ToUint64E(v)
		if err != nil {
			return 0, err
		}
		if n > hi {
			return 0, fmt.Errorf("%v overflows %T", v, T(0))
		}
		return T(n), nil
	}
}

func toFloat32(v any) (float32, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%v overflows float32", v)
	}
	return float32(f), nil
}

func floatValue(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	return 0, false
}

// toRune accepts a rune, a single-character string or an integer code point.
func toRune(v any) (rune, error) {
	switch c := v.(type) {
	case rune:
		return c, nil
	case string:
		if utf8.RuneCountInString(c) != 1 {
			return 0, fmt.Errorf("string %q is not a single character", c)
		}
		r, _ := utf8.DecodeRuneInString(c)
		return r, nil
	case []byte:
		return toRune(string(c))
	}
	r, err := cast.ToInt32E(v)
	if err != nil {
		return 0, err
	}
	if !utf8.ValidRune(r) {
		return 0, fmt.Errorf("%d is not a valid code point", r)
	}
	return r, nil
}

// Of declares a non-primitive parameter type. Values already assignable to T
// are passed through unconverted; maps and slices from a decoded wire payload
// are decoded into T using its json tags.
func Of[T any]() Type {
	var zero T
	return Type{name: fmt.Sprintf("%T", zero), convert: func(v any) (any, error) {
		if t, ok := v.(T); ok {
			return t, nil
		}
		if p, ok := v.(*T); ok && p != nil {
			return *p, nil
		}
		var out T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "json",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(v); err != nil {
			return nil, err
		}
		return out, nil
	}}
}
