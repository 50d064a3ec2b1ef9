package convert

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/polyglot/convert/internal/handles"
	"github.com/wippyai/polyglot/errors"
)

// Converter converts one value for a fixed descriptor.
type Converter func(v any) (any, error)

// Direction selects which side of the boundary a converter produces.
type Direction uint8

const (
	ToNative Direction = iota
	FromNative
)

func (d Direction) String() string {
	if d == ToNative {
		return "to-native"
	}
	return "from-native"
}

// factory builds the converter pair for one descriptor kind.
type factory struct {
	to   func(b *Boundary, d *Descriptor) (Converter, error)
	from func(b *Boundary, d *Descriptor) (Converter, error)
}

func fixed(c Converter) func(*Boundary, *Descriptor) (Converter, error) {
	return func(*Boundary, *Descriptor) (Converter, error) { return c, nil }
}

// defaultFactories is the lookup table the generic path consults on every
// call and the specialised path consults once per descriptor.
var defaultFactories = [numKinds]factory{
	KindVoid:    {to: fixed(voidTo), from: fixed(voidFrom)},
	KindBool:    {to: fixed(boolTo), from: fixed(boolFrom)},
	KindSint8:   intFactory(KindSint8, math.MinInt8, math.MaxInt8),
	KindSint16:  intFactory(KindSint16, math.MinInt16, math.MaxInt16),
	KindSint32:  intFactory(KindSint32, math.MinInt32, math.MaxInt32),
	KindSint64:  intFactory(KindSint64, math.MinInt64, math.MaxInt64),
	KindUint8:   uintFactory(KindUint8, math.MaxUint8),
	KindUint16:  uintFactory(KindUint16, math.MaxUint16),
	KindUint32:  uintFactory(KindUint32, math.MaxUint32),
	KindUint64:  uintFactory(KindUint64, math.MaxUint64),
	KindFloat:   {to: fixed(floatTo), from: fixed(floatFrom)},
	KindDouble:  {to: fixed(doubleTo), from: fixed(doubleFrom)},
	KindPointer: {to: fixed(pointerTo), from: fixed(pointerFrom)},
	KindString:  {to: fixed(stringTo), from: fixed(stringFrom)},
	KindObject:  {to: objectTo, from: objectFrom},
	KindArray:   {to: arrayTo, from: arrayFrom},
}

func unsupported(v any, d *Descriptor) error {
	return errors.UnsupportedType(v, d.String())
}

func voidTo(v any) (any, error) {
	if v != nil {
		return nil, unsupported(v, Of(KindVoid))
	}
	return nil, nil
}

func voidFrom(v any) (any, error) {
	if v != nil {
		return nil, unsupported(v, Of(KindVoid))
	}
	return nil, nil
}

func boolTo(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, unsupported(v, Of(KindBool))
	}
	if b {
		return uint64(1), nil
	}
	return uint64(0), nil
}

func boolFrom(v any) (any, error) {
	raw, ok := v.(uint64)
	if !ok || raw > 1 {
		return nil, unsupported(v, Of(KindBool))
	}
	return raw == 1, nil
}

// signed and unsigned read any Go integer, or an integral float, as a
// 64-bit value.
func signed(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func unsigned(v any) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

// Integers narrower than 64 bits travel as WebAssembly i32 values.
func intFactory(k Kind, lo, hi int64) factory {
	d := Of(k)
	to := func(v any) (any, error) {
		i, ok := signed(v)
		if !ok {
			return nil, unsupported(v, d)
		}
		if i < lo || i > hi {
			return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
				Descriptor(d.String()).
				GoType(fmt.Sprintf("%T", v)).
				Value(v).
				Cause(errors.Overflow(errors.PhaseConvert, v, d.String())).
				Detail("value out of range").
				Build()
		}
		if k == KindSint64 {
			return api.EncodeI64(i), nil
		}
		return api.EncodeI32(int32(i)), nil
	}
	from := func(v any) (any, error) {
		raw, ok := v.(uint64)
		if !ok {
			return nil, unsupported(v, d)
		}
		if k == KindSint64 {
			return int64(raw), nil
		}
		if raw>>32 != 0 {
			return nil, unsupported(v, d)
		}
		i := int64(api.DecodeI32(raw))
		if i < lo || i > hi {
			return nil, unsupported(v, d)
		}
		switch k {
		case KindSint8:
			return int8(i), nil
		case KindSint16:
			return int16(i), nil
		default:
			return int32(i), nil
		}
	}
	return factory{to: fixed(to), from: fixed(from)}
}

func uintFactory(k Kind, hi uint64) factory {
	d := Of(k)
	to := func(v any) (any, error) {
		u, ok := unsigned(v)
		if !ok {
			return nil, unsupported(v, d)
		}
		if u > hi {
			return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
				Descriptor(d.String()).
				GoType(fmt.Sprintf("%T", v)).
				Value(v).
				Cause(errors.Overflow(errors.PhaseConvert, v, d.String())).
				Detail("value out of range").
				Build()
		}
		return u, nil
	}
	from := func(v any) (any, error) {
		raw, ok := v.(uint64)
		if !ok || raw > hi {
			return nil, unsupported(v, d)
		}
		switch k {
		case KindUint8:
			return uint8(raw), nil
		case KindUint16:
			return uint16(raw), nil
		case KindUint32:
			return uint32(raw), nil
		default:
			return raw, nil
		}
	}
	return factory{to: fixed(to), from: fixed(from)}
}

func float64Of(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func floatTo(v any) (any, error) {
	f, ok := float64Of(v)
	if !ok {
		return nil, unsupported(v, Of(KindFloat))
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return nil, unsupported(v, Of(KindFloat))
	}
	return api.EncodeF32(float32(f)), nil
}

func floatFrom(v any) (any, error) {
	raw, ok := v.(uint64)
	if !ok || raw>>32 != 0 {
		return nil, unsupported(v, Of(KindFloat))
	}
	return api.DecodeF32(raw), nil
}

func doubleTo(v any) (any, error) {
	f, ok := float64Of(v)
	if !ok {
		return nil, unsupported(v, Of(KindDouble))
	}
	return api.EncodeF64(f), nil
}

func doubleFrom(v any) (any, error) {
	raw, ok := v.(uint64)
	if !ok {
		return nil, unsupported(v, Of(KindDouble))
	}
	return api.DecodeF64(raw), nil
}

func pointerTo(v any) (any, error) {
	switch p := v.(type) {
	case uintptr:
		return uint64(p), nil
	case uint64:
		return p, nil
	case nil:
		return uint64(0), nil
	}
	return nil, unsupported(v, Of(KindPointer))
}

func pointerFrom(v any) (any, error) {
	raw, ok := v.(uint64)
	if !ok {
		return nil, unsupported(v, Of(KindPointer))
	}
	return uintptr(raw), nil
}

// Strings cross as NUL-terminated bytes, so they cannot contain NUL.
func stringTo(v any) (any, error) {
	s, ok := v.(string)
	if !ok || strings.IndexByte(s, 0) >= 0 {
		return nil, unsupported(v, Of(KindString))
	}
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out, nil
}

func stringFrom(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, unsupported(v, Of(KindString))
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

func objectTo(b *Boundary, d *Descriptor) (Converter, error) {
	return func(v any) (any, error) {
		h, err := b.handles.Put(v)
		if err != nil {
			return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
				Descriptor(d.String()).
				GoType(fmt.Sprintf("%T", v)).
				Value(v).
				Cause(err).
				Build()
		}
		return uint64(h), nil
	}, nil
}

func objectFrom(b *Boundary, d *Descriptor) (Converter, error) {
	return func(v any) (any, error) {
		raw, ok := v.(uint64)
		if !ok {
			return nil, unsupported(v, d)
		}
		if raw == 0 {
			return nil, nil
		}
		obj, ok := b.handles.Get(handles.Handle(raw))
		if !ok {
			return nil, unsupported(v, d)
		}
		return obj, nil
	}, nil
}

func arrayTo(b *Boundary, d *Descriptor) (Converter, error) {
	elem, err := b.converter(ToNative, d.elem)
	if err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, unsupported(v, d)
		}
		out := make([]any, rv.Len())
		for i := range out {
			n, err := elem(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}, nil
}

func arrayFrom(b *Boundary, d *Descriptor) (Converter, error) {
	elem, err := b.converter(FromNative, d.elem)
	if err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		in, ok := v.([]any)
		if !ok {
			return nil, unsupported(v, d)
		}
		out := make([]any, len(in))
		for i, n := range in {
			h, err := elem(n)
			if err != nil {
				return nil, err
			}
			out[i] = h
		}
		return out, nil
	}, nil
}
