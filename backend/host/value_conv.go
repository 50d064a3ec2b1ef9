package host

import (
	"fmt"
	"hash/fnv"
	"math"
	"reflect"
	"time"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isNumber(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || k == reflect.Float32 || k == reflect.Float64
}

// exactInt64 returns rv as an int64 when it has an exact int64 form.
func exactInt64(rv reflect.Value) (int64, bool) {
	switch k := rv.Kind(); {
	case isSigned(k):
		return rv.Int(), true
	case isUnsigned(k):
		u := rv.Uint()
		return int64(u), u <= math.MaxInt64
	case k == reflect.Float32 || k == reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func exactUint64(rv reflect.Value) (uint64, bool) {
	switch k := rv.Kind(); {
	case isSigned(k):
		i := rv.Int()
		return uint64(i), i >= 0
	case isUnsigned(k):
		return rv.Uint(), true
	case k == reflect.Float32 || k == reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= 1<<64 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

func floatOf(rv reflect.Value) float64 {
	switch k := rv.Kind(); {
	case isSigned(k):
		return float64(rv.Int())
	case isUnsigned(k):
		return float64(rv.Uint())
	}
	return rv.Float()
}

// fits reports whether rv converts to kind without losing information.
func fits(rv reflect.Value, kind impl.NumberKind) bool {
	if !rv.IsValid() || !isNumber(rv.Kind()) {
		return false
	}
	switch kind {
	case impl.NumberInt8:
		i, ok := exactInt64(rv)
		return ok && i >= math.MinInt8 && i <= math.MaxInt8
	case impl.NumberInt16:
		i, ok := exactInt64(rv)
		return ok && i >= math.MinInt16 && i <= math.MaxInt16
	case impl.NumberInt32:
		i, ok := exactInt64(rv)
		return ok && i >= math.MinInt32 && i <= math.MaxInt32
	case impl.NumberInt64:
		_, ok := exactInt64(rv)
		return ok
	case impl.NumberFloat32:
		if k := rv.Kind(); k == reflect.Float32 || k == reflect.Float64 {
			f := rv.Float()
			return math.IsNaN(f) || float64(float32(f)) == f
		}
		return exactFloat(rv, func(f float64) float64 { return float64(float32(f)) })
	case impl.NumberFloat64:
		if k := rv.Kind(); k == reflect.Float32 || k == reflect.Float64 {
			return true
		}
		return exactFloat(rv, func(f float64) float64 { return f })
	}
	return false
}

// exactFloat reports whether an integer survives rounding to a float and
// back.
func exactFloat(rv reflect.Value, round func(float64) float64) bool {
	if isUnsigned(rv.Kind()) {
		u := rv.Uint()
		f := round(float64(u))
		return f < 1<<64 && uint64(f) == u
	}
	i := rv.Int()
	f := round(float64(i))
	return f >= -(1<<63) && f < 1<<63 && int64(f) == i
}

func (v *value) number(op string, kind impl.NumberKind, target string) (reflect.Value, error) {
	rv := reflect.ValueOf(v.v)
	if !rv.IsValid() || !isNumber(rv.Kind()) {
		return reflect.Value{}, v.unsupported(op)
	}
	if !fits(rv, kind) {
		return reflect.Value{}, errors.Overflow(errors.PhaseDispatch, v.v, target)
	}
	return rv, nil
}

func (valueDispatch) Fits(r any, kind impl.NumberKind) bool {
	return fits(reflect.ValueOf(valueOf(r).v), kind)
}

func (valueDispatch) AsInt8(r any) (int8, error) {
	rv, err := valueOf(r).number("AsInt8", impl.NumberInt8, "int8")
	if err != nil {
		return 0, err
	}
	i, _ := exactInt64(rv)
	return int8(i), nil
}

func (valueDispatch) AsInt16(r any) (int16, error) {
	rv, err := valueOf(r).number("AsInt16", impl.NumberInt16, "int16")
	if err != nil {
		return 0, err
	}
	i, _ := exactInt64(rv)
	return int16(i), nil
}

func (valueDispatch) AsInt32(r any) (int32, error) {
	rv, err := valueOf(r).number("AsInt32", impl.NumberInt32, "int32")
	if err != nil {
		return 0, err
	}
	i, _ := exactInt64(rv)
	return int32(i), nil
}

func (valueDispatch) AsInt64(r any) (int64, error) {
	rv, err := valueOf(r).number("AsInt64", impl.NumberInt64, "int64")
	if err != nil {
		return 0, err
	}
	i, _ := exactInt64(rv)
	return i, nil
}

func (valueDispatch) AsFloat32(r any) (float32, error) {
	rv, err := valueOf(r).number("AsFloat32", impl.NumberFloat32, "float32")
	if err != nil {
		return 0, err
	}
	return float32(floatOf(rv)), nil
}

func (valueDispatch) AsFloat64(r any) (float64, error) {
	rv, err := valueOf(r).number("AsFloat64", impl.NumberFloat64, "float64")
	if err != nil {
		return 0, err
	}
	return floatOf(rv), nil
}

func (valueDispatch) AsString(r any) (string, error) {
	v := valueOf(r)
	rv := reflect.ValueOf(v.v)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", v.unsupported("AsString")
	}
	return rv.String(), nil
}

func (valueDispatch) AsBoolean(r any) (bool, error) {
	v := valueOf(r)
	rv := reflect.ValueOf(v.v)
	if !rv.IsValid() || rv.Kind() != reflect.Bool {
		return false, v.unsupported("AsBoolean")
	}
	return rv.Bool(), nil
}

func (valueDispatch) AsNativePointer(r any) (uintptr, error) {
	v := valueOf(r)
	rv := reflect.ValueOf(v.v)
	if !rv.IsValid() || rv.Kind() != reflect.Uintptr {
		return 0, v.unsupported("AsNativePointer")
	}
	return uintptr(rv.Uint()), nil
}

func (valueDispatch) AsHostObject(r any) (any, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapHostObject) {
		return nil, v.unsupported("AsHostObject")
	}
	return v.v, nil
}

func (valueDispatch) AsProxyObject(r any) (any, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapProxyObject) {
		return nil, v.unsupported("AsProxyObject")
	}
	return v.v, nil
}

func (valueDispatch) AsDate(r any) (time.Time, error) {
	v := valueOf(r)
	t, ok := v.v.(time.Time)
	if !ok {
		return time.Time{}, v.unsupported("AsDate")
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
}

func (valueDispatch) AsTime(r any) (time.Time, error) {
	v := valueOf(r)
	t, ok := v.v.(time.Time)
	if !ok {
		return time.Time{}, v.unsupported("AsTime")
	}
	return t, nil
}

func (valueDispatch) AsInstant(r any) (time.Time, error) {
	v := valueOf(r)
	t, ok := v.v.(time.Time)
	if !ok {
		return time.Time{}, v.unsupported("AsInstant")
	}
	return t.UTC(), nil
}

func (valueDispatch) AsTimeZone(r any) (*time.Location, error) {
	v := valueOf(r)
	switch x := v.v.(type) {
	case time.Time:
		return x.Location(), nil
	case *time.Location:
		return x, nil
	}
	return nil, v.unsupported("AsTimeZone")
}

func (valueDispatch) AsDuration(r any) (time.Duration, error) {
	v := valueOf(r)
	d, ok := v.v.(time.Duration)
	if !ok {
		return 0, v.unsupported("AsDuration")
	}
	return d, nil
}

func (valueDispatch) ThrowException(r any) error {
	v := valueOf(r)
	err, ok := v.v.(error)
	if !ok {
		return v.unsupported("ThrowException")
	}
	return v.hostError(err)
}

func (valueDispatch) String(r any) string {
	switch x := valueOf(r).v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case error:
		return x.Error()
	case metaType:
		return x.t.String()
	case *iterator:
		return "iterator"
	case *parsed:
		return x.src.name
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// identity is the comparison key of a value. Slices, maps and funcs
// compare by type and address; other values compare as themselves.
func identity(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Slice:
		return [3]any{rv.Type(), rv.Pointer(), rv.Len()}
	case reflect.Map, reflect.Func:
		return [2]any{rv.Type(), rv.Pointer()}
	}
	return v
}

func (valueDispatch) Equal(r any, other any) (equal bool) {
	o, ok := other.(*value)
	if !ok {
		return false
	}
	a, b := identity(valueOf(r).v), identity(o.v)
	if a != nil && !reflect.TypeOf(a).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	defer func() {
		if recover() != nil {
			equal = reflect.DeepEqual(a, b)
		}
	}()
	return a == b
}

func (valueDispatch) Hash(r any) uint64 {
	v := valueOf(r).v
	h := fnv.New64a()
	fmt.Fprintf(h, "%T:%v", v, identity(v))
	return h.Sum64()
}

func (d valueDispatch) SourceLocation(r any) (impl.SourceSectionRef, bool) {
	if p, ok := valueOf(r).v.(*parsed); ok {
		return impl.SourceSectionRef{Dispatch: d.b.sections, Receiver: p.src.whole()}, true
	}
	return impl.SourceSectionRef{}, false
}
