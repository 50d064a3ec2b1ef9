package host

import (
	"encoding/binary"
	"reflect"
	"sort"
	"time"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// ReadOnlyBuffer is a byte buffer guest code may read but not write.
type ReadOnlyBuffer []byte

// ProxyObject is implemented by Go values that expose members of their own
// choosing instead of their fields.
type ProxyObject interface {
	Member(key string) any
	MemberKeys() []string
	HasMember(key string) bool
	PutMember(key string, value any)
	RemoveMember(key string) bool
}

// ProxyExecutable is implemented by Go values that are executable with
// unwrapped arguments.
type ProxyExecutable interface {
	Execute(args ...any) (any, error)
}

// metaType is the meta object of a Go type.
type metaType struct{ t reflect.Type }

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// caps reports what a Go value supports under the scope's host access.
func (s *scope) caps(v any) impl.ValueCaps {
	switch x := v.(type) {
	case nil:
		return impl.CapNull
	case bool:
		return impl.CapBoolean
	case string:
		return impl.CapString
	case time.Duration:
		return impl.CapDuration
	case time.Time:
		return impl.CapDate | impl.CapTime | impl.CapInstant | impl.CapTimeZone
	case *time.Location:
		return impl.CapTimeZone
	case ReadOnlyBuffer:
		if s.policy(impl.APIAccess.IsBufferAccessible) {
			return impl.CapBufferElements | impl.CapHostObject
		}
		return impl.CapHostObject
	case []byte:
		c := impl.CapHostObject | impl.CapArrayElements | impl.CapIterable
		if s.policy(impl.APIAccess.IsBufferAccessible) {
			c |= impl.CapBufferElements
		}
		return c
	case metaType:
		return impl.CapMetaObject | impl.CapInstantiable
	case *iterator:
		return impl.CapIterator
	case *parsed:
		return impl.CapExecutable
	case *value:
		return s.caps(x.v)
	}

	var c impl.ValueCaps
	if _, ok := v.(ProxyObject); ok {
		c |= impl.CapProxyObject | impl.CapMembers
	}
	if _, ok := v.(ProxyExecutable); ok {
		c |= impl.CapProxyObject | impl.CapExecutable
	}
	if c != 0 {
		return c
	}
	if _, ok := v.(error); ok {
		c |= impl.CapException
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return c | impl.CapBoolean
	case reflect.String:
		return c | impl.CapString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return c | impl.CapNumber
	case reflect.Uintptr:
		return c | impl.CapNumber | impl.CapNativePointer
	case reflect.Slice:
		if s.policy(impl.APIAccess.IsListAccessible) {
			c |= impl.CapArrayElements | impl.CapIterable
		}
	case reflect.Array:
		if s.policy(impl.APIAccess.IsArrayAccessible) {
			c |= impl.CapArrayElements | impl.CapIterable
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String && s.allowsPublic() {
			c |= impl.CapMembers
		}
		if s.policy(impl.APIAccess.IsMapAccessible) {
			c |= impl.CapHashEntries
		}
	case reflect.Func:
		c |= impl.CapExecutable
	case reflect.Struct:
		if s.allowsPublic() {
			c |= impl.CapMembers
		}
	case reflect.Pointer:
		switch rv.Type().Elem().Kind() {
		case reflect.Struct:
			if s.allowsPublic() {
				c |= impl.CapMembers
			}
		case reflect.Slice:
			if s.policy(impl.APIAccess.IsListAccessible) {
				c |= impl.CapArrayElements | impl.CapIterable
			}
		case reflect.Array:
			if s.policy(impl.APIAccess.IsArrayAccessible) {
				c |= impl.CapArrayElements | impl.CapIterable
			}
		}
	}
	if rv.Type().NumMethod() > 0 && s.allowsPublic() {
		c |= impl.CapMembers
	}
	return c | impl.CapHostObject
}

type valueDispatch struct {
	impl.BaseValueDispatch
	b *Backend
}

func valueOf(r any) *value { return r.(*value) }

func (valueDispatch) Caps(r any) impl.ValueCaps {
	v := valueOf(r)
	return v.scope.caps(v.v)
}

func (v *value) unsupported(op string) error {
	return errors.UnsupportedOperation(op, v.v)
}

// array returns the reflect view of an array-like value. Pointers to slices
// and arrays are dereferenced so their elements can be written.
func (v *value) array() (reflect.Value, bool) {
	rv := reflect.ValueOf(v.v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	case reflect.Pointer:
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		if k := rv.Elem().Kind(); k == reflect.Slice || k == reflect.Array {
			return rv.Elem(), true
		}
	}
	return reflect.Value{}, false
}

func (v *value) index(op string, rv reflect.Value, i int64) error {
	if i < 0 || i >= int64(rv.Len()) {
		return errors.OutOfBounds(errors.PhaseDispatch, []string{op}, i, int64(rv.Len()))
	}
	return nil
}

func (d valueDispatch) ArrayElement(r any, i int64) (impl.ValueRef, error) {
	v := valueOf(r)
	rv, ok := v.array()
	if !ok {
		return impl.ValueRef{}, v.unsupported("ArrayElement")
	}
	if err := v.index("ArrayElement", rv, i); err != nil {
		return impl.ValueRef{}, err
	}
	return v.scope.wrap(rv.Index(int(i)).Interface()), nil
}

func (d valueDispatch) SetArrayElement(r any, i int64, x any) error {
	v := valueOf(r)
	rv, ok := v.array()
	if !ok {
		return v.unsupported("SetArrayElement")
	}
	if err := v.index("SetArrayElement", rv, i); err != nil {
		return err
	}
	elem := rv.Index(int(i))
	if !elem.CanSet() {
		return v.unsupported("SetArrayElement")
	}
	cv, err := coerce(v.scope.unwrap(x), elem.Type())
	if err != nil {
		return err
	}
	elem.Set(cv)
	return nil
}

// RemoveArrayElement removes from slices held by pointer; other arrays have
// a fixed size.
func (d valueDispatch) RemoveArrayElement(r any, i int64) (bool, error) {
	v := valueOf(r)
	rv := reflect.ValueOf(v.v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return false, v.unsupported("RemoveArrayElement")
	}
	s := rv.Elem()
	if err := v.index("RemoveArrayElement", s, i); err != nil {
		return false, err
	}
	s.Set(reflect.AppendSlice(s.Slice(0, int(i)), s.Slice(int(i)+1, s.Len())))
	return true, nil
}

func (d valueDispatch) ArraySize(r any) (int64, error) {
	v := valueOf(r)
	rv, ok := v.array()
	if !ok {
		return 0, v.unsupported("ArraySize")
	}
	return int64(rv.Len()), nil
}

func (v *value) buffer() ([]byte, bool, bool) {
	switch b := v.v.(type) {
	case []byte:
		return b, true, true
	case ReadOnlyBuffer:
		return b, false, true
	}
	return nil, false, false
}

func (v *value) writable(op string) ([]byte, error) {
	buf, w, ok := v.buffer()
	if !ok {
		return nil, v.unsupported(op)
	}
	if !w {
		return nil, errors.BufferNotWritable(v.v)
	}
	return buf, nil
}

func (v *value) readable(op string) ([]byte, error) {
	buf, _, ok := v.buffer()
	if !ok {
		return nil, v.unsupported(op)
	}
	return buf, nil
}

func (d valueDispatch) IsBufferWritable(r any) (bool, error) {
	v := valueOf(r)
	_, w, ok := v.buffer()
	if !ok {
		return false, v.unsupported("IsBufferWritable")
	}
	return w, nil
}

func (d valueDispatch) BufferSize(r any) (int64, error) {
	buf, err := valueOf(r).readable("BufferSize")
	return int64(len(buf)), err
}

func (d valueDispatch) ReadBufferByte(r any, off int64) (byte, error) {
	buf, err := valueOf(r).readable("ReadBufferByte")
	if err != nil {
		return 0, err
	}
	return impl.ReadByteAt(buf, off)
}

func (d valueDispatch) WriteBufferByte(r any, off int64, x byte) error {
	buf, err := valueOf(r).writable("WriteBufferByte")
	if err != nil {
		return err
	}
	return impl.WriteByteAt(buf, off, x)
}

func (d valueDispatch) ReadBufferInt16(r any, o binary.ByteOrder, off int64) (int16, error) {
	buf, err := valueOf(r).readable("ReadBufferInt16")
	if err != nil {
		return 0, err
	}
	return impl.ReadInt16At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt16(r any, o binary.ByteOrder, off int64, x int16) error {
	buf, err := valueOf(r).writable("WriteBufferInt16")
	if err != nil {
		return err
	}
	return impl.WriteInt16At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferInt32(r any, o binary.ByteOrder, off int64) (int32, error) {
	buf, err := valueOf(r).readable("ReadBufferInt32")
	if err != nil {
		return 0, err
	}
	return impl.ReadInt32At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt32(r any, o binary.ByteOrder, off int64, x int32) error {
	buf, err := valueOf(r).writable("WriteBufferInt32")
	if err != nil {
		return err
	}
	return impl.WriteInt32At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferInt64(r any, o binary.ByteOrder, off int64) (int64, error) {
	buf, err := valueOf(r).readable("ReadBufferInt64")
	if err != nil {
		return 0, err
	}
	return impl.ReadInt64At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt64(r any, o binary.ByteOrder, off int64, x int64) error {
	buf, err := valueOf(r).writable("WriteBufferInt64")
	if err != nil {
		return err
	}
	return impl.WriteInt64At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferFloat32(r any, o binary.ByteOrder, off int64) (float32, error) {
	buf, err := valueOf(r).readable("ReadBufferFloat32")
	if err != nil {
		return 0, err
	}
	return impl.ReadFloat32At(buf, o, off)
}

func (d valueDispatch) WriteBufferFloat32(r any, o binary.ByteOrder, off int64, x float32) error {
	buf, err := valueOf(r).writable("WriteBufferFloat32")
	if err != nil {
		return err
	}
	return impl.WriteFloat32At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferFloat64(r any, o binary.ByteOrder, off int64) (float64, error) {
	buf, err := valueOf(r).readable("ReadBufferFloat64")
	if err != nil {
		return 0, err
	}
	return impl.ReadFloat64At(buf, o, off)
}

func (d valueDispatch) WriteBufferFloat64(r any, o binary.ByteOrder, off int64, x float64) error {
	buf, err := valueOf(r).writable("WriteBufferFloat64")
	if err != nil {
		return err
	}
	return impl.WriteFloat64At(buf, o, off, x)
}

// structOf returns the struct behind v and whether its fields are settable.
func structOf(rv reflect.Value) (reflect.Value, bool) {
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		return rv.Elem(), true
	}
	if rv.Kind() == reflect.Struct {
		return rv, false
	}
	return reflect.Value{}, false
}

func (d valueDispatch) HasMember(r any, key string) bool {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return false
	}
	if p, ok := v.v.(ProxyObject); ok {
		return p.HasMember(key)
	}
	_, ok := v.member(key)
	return ok
}

func (v *value) member(key string) (reflect.Value, bool) {
	rv := reflect.ValueOf(v.v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		return mv, mv.IsValid()
	}
	if m := rv.MethodByName(key); m.IsValid() {
		return m, true
	}
	if sv, _ := structOf(rv); sv.IsValid() {
		if f, ok := sv.Type().FieldByName(key); ok && f.IsExported() {
			return sv.FieldByIndex(f.Index), true
		}
	}
	return reflect.Value{}, false
}

func (d valueDispatch) Member(r any, key string) (impl.ValueRef, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return impl.ValueRef{}, v.unsupported("Member")
	}
	if p, ok := v.v.(ProxyObject); ok {
		return v.scope.wrap(p.Member(key)), nil
	}
	mv, ok := v.member(key)
	if !ok {
		return v.scope.wrap(nil), nil
	}
	return v.scope.wrap(mv.Interface()), nil
}

func (d valueDispatch) MemberKeys(r any) ([]string, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return nil, v.unsupported("MemberKeys")
	}
	if p, ok := v.v.(ProxyObject); ok {
		return p.MemberKeys(), nil
	}

	rv := reflect.ValueOf(v.v)
	var keys []string
	if rv.Kind() == reflect.Map {
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return keys, nil
	}
	if sv, _ := structOf(rv); sv.IsValid() {
		for _, f := range reflect.VisibleFields(sv.Type()) {
			if f.IsExported() && !f.Anonymous {
				keys = append(keys, f.Name)
			}
		}
	}
	t := rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		keys = append(keys, t.Method(i).Name)
	}
	return keys, nil
}

func (d valueDispatch) PutMember(r any, key string, x any) error {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return v.unsupported("PutMember")
	}
	if p, ok := v.v.(ProxyObject); ok {
		p.PutMember(key, v.scope.unwrap(x))
		return nil
	}

	rv := reflect.ValueOf(v.v)
	if rv.Kind() == reflect.Map {
		if rv.IsNil() {
			return errors.InvalidInput(errors.PhaseDispatch, "cannot put a member into a nil map")
		}
		cv, err := coerce(v.scope.unwrap(x), rv.Type().Elem())
		if err != nil {
			return err
		}
		rv.SetMapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()), cv)
		return nil
	}

	sv, settable := structOf(rv)
	if !sv.IsValid() || !settable {
		return v.unsupported("PutMember")
	}
	f, ok := sv.Type().FieldByName(key)
	if !ok || !f.IsExported() {
		return errors.NotFound(errors.PhaseDispatch, "member", key)
	}
	cv, err := coerce(v.scope.unwrap(x), f.Type)
	if err != nil {
		return err
	}
	sv.FieldByIndex(f.Index).Set(cv)
	return nil
}

func (d valueDispatch) RemoveMember(r any, key string) (bool, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return false, v.unsupported("RemoveMember")
	}
	if p, ok := v.v.(ProxyObject); ok {
		return p.RemoveMember(key), nil
	}
	rv := reflect.ValueOf(v.v)
	if rv.Kind() != reflect.Map {
		return false, v.unsupported("RemoveMember")
	}
	k := reflect.ValueOf(key).Convert(rv.Type().Key())
	if !rv.MapIndex(k).IsValid() {
		return false, nil
	}
	rv.SetMapIndex(k, reflect.Value{})
	return true, nil
}
