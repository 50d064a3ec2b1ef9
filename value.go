package polyglot

import (
	"encoding/binary"
	"time"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// Value is a handle to a guest or host value. Every operation is gated by
// the value's capabilities: an operation whose capability the value lacks
// fails with errors.ErrUnsupportedOperation, whatever the backend would do.
// Values are only valid while their context is open.
type Value struct {
	ref impl.ValueRef
}

func newValue(ref impl.ValueRef) *Value {
	return &Value{ref: ref}
}

func (v *Value) d() impl.ValueDispatch { return v.ref.Dispatch }
func (v *Value) r() any                { return v.ref.Receiver }

// Caps returns the value's capability flags.
func (v *Value) Caps() impl.ValueCaps { return v.d().Caps(v.r()) }

func (v *Value) has(c impl.ValueCaps) bool { return v.Caps().Has(c) }

func (v *Value) require(c impl.ValueCaps, op string) error {
	if v.has(c) {
		return nil
	}
	return errors.UnsupportedOperation(op, v)
}

func (v *Value) wrap(ref impl.ValueRef, err error) (*Value, error) {
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

func (v *Value) IsNull() bool            { return v.has(impl.CapNull) }
func (v *Value) IsBoolean() bool         { return v.has(impl.CapBoolean) }
func (v *Value) IsNumber() bool          { return v.has(impl.CapNumber) }
func (v *Value) IsString() bool          { return v.has(impl.CapString) }
func (v *Value) IsDate() bool            { return v.has(impl.CapDate) }
func (v *Value) IsTime() bool            { return v.has(impl.CapTime) }
func (v *Value) IsTimeZone() bool        { return v.has(impl.CapTimeZone) }
func (v *Value) IsDuration() bool        { return v.has(impl.CapDuration) }
func (v *Value) IsInstant() bool         { return v.has(impl.CapInstant) }
func (v *Value) IsNativePointer() bool   { return v.has(impl.CapNativePointer) }
func (v *Value) IsHostObject() bool      { return v.has(impl.CapHostObject) }
func (v *Value) IsProxyObject() bool     { return v.has(impl.CapProxyObject) }
func (v *Value) IsMetaObject() bool      { return v.has(impl.CapMetaObject) }
func (v *Value) IsException() bool       { return v.has(impl.CapException) }
func (v *Value) HasArrayElements() bool  { return v.has(impl.CapArrayElements) }
func (v *Value) HasBufferElements() bool { return v.has(impl.CapBufferElements) }
func (v *Value) HasMembers() bool        { return v.has(impl.CapMembers) }
func (v *Value) CanExecute() bool        { return v.has(impl.CapExecutable) }
func (v *Value) CanInstantiate() bool    { return v.has(impl.CapInstantiable) }
func (v *Value) HasIterator() bool       { return v.has(impl.CapIterable) }
func (v *Value) IsIterator() bool        { return v.has(impl.CapIterator) }
func (v *Value) HasHashEntries() bool    { return v.has(impl.CapHashEntries) }

// Arrays.

func (v *Value) ArrayElement(index int64) (*Value, error) {
	if err := v.require(impl.CapArrayElements, "ArrayElement"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().ArrayElement(v.r(), index))
}

func (v *Value) SetArrayElement(index int64, value any) error {
	if err := v.require(impl.CapArrayElements, "SetArrayElement"); err != nil {
		return err
	}
	return v.d().SetArrayElement(v.r(), index, value)
}

func (v *Value) RemoveArrayElement(index int64) (bool, error) {
	if err := v.require(impl.CapArrayElements, "RemoveArrayElement"); err != nil {
		return false, err
	}
	return v.d().RemoveArrayElement(v.r(), index)
}

func (v *Value) ArraySize() (int64, error) {
	if err := v.require(impl.CapArrayElements, "ArraySize"); err != nil {
		return 0, err
	}
	return v.d().ArraySize(v.r())
}

// Buffers. Multi-byte accesses take an explicit byte order; writes fail
// with errors.ErrBufferNotWritable on a read-only buffer.

func (v *Value) IsBufferWritable() (bool, error) {
	if err := v.require(impl.CapBufferElements, "IsBufferWritable"); err != nil {
		return false, err
	}
	return v.d().IsBufferWritable(v.r())
}

func (v *Value) BufferSize() (int64, error) {
	if err := v.require(impl.CapBufferElements, "BufferSize"); err != nil {
		return 0, err
	}
	return v.d().BufferSize(v.r())
}

func (v *Value) writable(op string) error {
	if err := v.require(impl.CapBufferElements, op); err != nil {
		return err
	}
	ok, err := v.d().IsBufferWritable(v.r())
	if err != nil {
		return err
	}
	if !ok {
		return errors.BufferNotWritable(v)
	}
	return nil
}

func (v *Value) ReadBufferByte(offset int64) (byte, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferByte"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferByte(v.r(), offset)
}

func (v *Value) WriteBufferByte(offset int64, b byte) error {
	if err := v.writable("WriteBufferByte"); err != nil {
		return err
	}
	return v.d().WriteBufferByte(v.r(), offset, b)
}

func (v *Value) ReadBufferInt16(order binary.ByteOrder, offset int64) (int16, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferInt16"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferInt16(v.r(), order, offset)
}

func (v *Value) WriteBufferInt16(order binary.ByteOrder, offset int64, n int16) error {
	if err := v.writable("WriteBufferInt16"); err != nil {
		return err
	}
	return v.d().WriteBufferInt16(v.r(), order, offset, n)
}

func (v *Value) ReadBufferInt32(order binary.ByteOrder, offset int64) (int32, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferInt32"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferInt32(v.r(), order, offset)
}

func (v *Value) WriteBufferInt32(order binary.ByteOrder, offset int64, n int32) error {
	if err := v.writable("WriteBufferInt32"); err != nil {
		return err
	}
	return v.d().WriteBufferInt32(v.r(), order, offset, n)
}

func (v *Value) ReadBufferInt64(order binary.ByteOrder, offset int64) (int64, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferInt64"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferInt64(v.r(), order, offset)
}

func (v *Value) WriteBufferInt64(order binary.ByteOrder, offset int64, n int64) error {
	if err := v.writable("WriteBufferInt64"); err != nil {
		return err
	}
	return v.d().WriteBufferInt64(v.r(), order, offset, n)
}

func (v *Value) ReadBufferFloat32(order binary.ByteOrder, offset int64) (float32, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferFloat32"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferFloat32(v.r(), order, offset)
}

func (v *Value) WriteBufferFloat32(order binary.ByteOrder, offset int64, f float32) error {
	if err := v.writable("WriteBufferFloat32"); err != nil {
		return err
	}
	return v.d().WriteBufferFloat32(v.r(), order, offset, f)
}

func (v *Value) ReadBufferFloat64(order binary.ByteOrder, offset int64) (float64, error) {
	if err := v.require(impl.CapBufferElements, "ReadBufferFloat64"); err != nil {
		return 0, err
	}
	return v.d().ReadBufferFloat64(v.r(), order, offset)
}

func (v *Value) WriteBufferFloat64(order binary.ByteOrder, offset int64, f float64) error {
	if err := v.writable("WriteBufferFloat64"); err != nil {
		return err
	}
	return v.d().WriteBufferFloat64(v.r(), order, offset, f)
}

// Members.

// HasMember reports whether the value has member key. It is false for
// values without members.
func (v *Value) HasMember(key string) bool {
	return v.has(impl.CapMembers) && v.d().HasMember(v.r(), key)
}

// Member returns member key; a missing member is a null value.
func (v *Value) Member(key string) (*Value, error) {
	if err := v.require(impl.CapMembers, "Member"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().Member(v.r(), key))
}

func (v *Value) MemberKeys() ([]string, error) {
	if err := v.require(impl.CapMembers, "MemberKeys"); err != nil {
		return nil, err
	}
	return v.d().MemberKeys(v.r())
}

func (v *Value) PutMember(key string, value any) error {
	if err := v.require(impl.CapMembers, "PutMember"); err != nil {
		return err
	}
	return v.d().PutMember(v.r(), key, value)
}

func (v *Value) RemoveMember(key string) (bool, error) {
	if err := v.require(impl.CapMembers, "RemoveMember"); err != nil {
		return false, err
	}
	return v.d().RemoveMember(v.r(), key)
}

// Execution. Arguments may be Go values or values of any context of the
// same engine.

func (v *Value) Execute(args ...any) (*Value, error) {
	if err := v.require(impl.CapExecutable, "Execute"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().Execute(v.r(), args))
}

func (v *Value) ExecuteVoid(args ...any) error {
	if err := v.require(impl.CapExecutable, "ExecuteVoid"); err != nil {
		return err
	}
	return v.d().ExecuteVoid(v.r(), args)
}

func (v *Value) NewInstance(args ...any) (*Value, error) {
	if err := v.require(impl.CapInstantiable, "NewInstance"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().NewInstance(v.r(), args))
}

// Invoke executes member name with args.
func (v *Value) Invoke(name string, args ...any) (*Value, error) {
	if err := v.require(impl.CapMembers, "Invoke"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().Invoke(v.r(), name, args))
}

// Conversions.

func (v *Value) AsString() (string, error) {
	if err := v.require(impl.CapString, "AsString"); err != nil {
		return "", err
	}
	return v.d().AsString(v.r())
}

func (v *Value) AsBoolean() (bool, error) {
	if err := v.require(impl.CapBoolean, "AsBoolean"); err != nil {
		return false, err
	}
	return v.d().AsBoolean(v.r())
}

func (v *Value) fits(k impl.NumberKind) bool {
	return v.has(impl.CapNumber) && v.d().Fits(v.r(), k)
}

func (v *Value) FitsInInt8() bool    { return v.fits(impl.NumberInt8) }
func (v *Value) FitsInInt16() bool   { return v.fits(impl.NumberInt16) }
func (v *Value) FitsInInt32() bool   { return v.fits(impl.NumberInt32) }
func (v *Value) FitsInInt64() bool   { return v.fits(impl.NumberInt64) }
func (v *Value) FitsInFloat32() bool { return v.fits(impl.NumberFloat32) }
func (v *Value) FitsInFloat64() bool { return v.fits(impl.NumberFloat64) }

func (v *Value) AsInt8() (int8, error) {
	if err := v.require(impl.CapNumber, "AsInt8"); err != nil {
		return 0, err
	}
	return v.d().AsInt8(v.r())
}

func (v *Value) AsInt16() (int16, error) {
	if err := v.require(impl.CapNumber, "AsInt16"); err != nil {
		return 0, err
	}
	return v.d().AsInt16(v.r())
}

func (v *Value) AsInt32() (int32, error) {
	if err := v.require(impl.CapNumber, "AsInt32"); err != nil {
		return 0, err
	}
	return v.d().AsInt32(v.r())
}

func (v *Value) AsInt64() (int64, error) {
	if err := v.require(impl.CapNumber, "AsInt64"); err != nil {
		return 0, err
	}
	return v.d().AsInt64(v.r())
}

func (v *Value) AsFloat32() (float32, error) {
	if err := v.require(impl.CapNumber, "AsFloat32"); err != nil {
		return 0, err
	}
	return v.d().AsFloat32(v.r())
}

func (v *Value) AsFloat64() (float64, error) {
	if err := v.require(impl.CapNumber, "AsFloat64"); err != nil {
		return 0, err
	}
	return v.d().AsFloat64(v.r())
}

func (v *Value) AsNativePointer() (uintptr, error) {
	if err := v.require(impl.CapNativePointer, "AsNativePointer"); err != nil {
		return 0, err
	}
	return v.d().AsNativePointer(v.r())
}

// AsHostObject returns the Go value behind a host object.
func (v *Value) AsHostObject() (any, error) {
	if err := v.require(impl.CapHostObject, "AsHostObject"); err != nil {
		return nil, err
	}
	return v.d().AsHostObject(v.r())
}

func (v *Value) AsProxyObject() (any, error) {
	if err := v.require(impl.CapProxyObject, "AsProxyObject"); err != nil {
		return nil, err
	}
	return v.d().AsProxyObject(v.r())
}

func (v *Value) AsDate() (time.Time, error) {
	if err := v.require(impl.CapDate, "AsDate"); err != nil {
		return time.Time{}, err
	}
	return v.d().AsDate(v.r())
}

func (v *Value) AsTime() (time.Time, error) {
	if err := v.require(impl.CapTime, "AsTime"); err != nil {
		return time.Time{}, err
	}
	return v.d().AsTime(v.r())
}

func (v *Value) AsTimeZone() (*time.Location, error) {
	if err := v.require(impl.CapTimeZone, "AsTimeZone"); err != nil {
		return nil, err
	}
	return v.d().AsTimeZone(v.r())
}

func (v *Value) AsDuration() (time.Duration, error) {
	if err := v.require(impl.CapDuration, "AsDuration"); err != nil {
		return 0, err
	}
	return v.d().AsDuration(v.r())
}

func (v *Value) AsInstant() (time.Time, error) {
	if err := v.require(impl.CapInstant, "AsInstant"); err != nil {
		return time.Time{}, err
	}
	return v.d().AsInstant(v.r())
}

// ThrowException returns the exception an exception value represents.
func (v *Value) ThrowException() error {
	if err := v.require(impl.CapException, "ThrowException"); err != nil {
		return err
	}
	return v.d().ThrowException(v.r())
}

// Meta objects.

// MetaObject returns the value describing v's type, if there is one.
func (v *Value) MetaObject() (*Value, bool) {
	ref, ok := v.d().MetaObject(v.r())
	if !ok {
		return nil, false
	}
	return newValue(ref), true
}

func (v *Value) MetaQualifiedName() (string, error) {
	if err := v.require(impl.CapMetaObject, "MetaQualifiedName"); err != nil {
		return "", err
	}
	return v.d().MetaQualifiedName(v.r())
}

func (v *Value) MetaSimpleName() (string, error) {
	if err := v.require(impl.CapMetaObject, "MetaSimpleName"); err != nil {
		return "", err
	}
	return v.d().MetaSimpleName(v.r())
}

func (v *Value) IsMetaInstance(instance any) (bool, error) {
	if err := v.require(impl.CapMetaObject, "IsMetaInstance"); err != nil {
		return false, err
	}
	return v.d().IsMetaInstance(v.r(), instance)
}

// Iteration.

func (v *Value) Iterator() (*Value, error) {
	if err := v.require(impl.CapIterable, "Iterator"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().Iterator(v.r()))
}

func (v *Value) HasIteratorNextElement() (bool, error) {
	if err := v.require(impl.CapIterator, "HasIteratorNextElement"); err != nil {
		return false, err
	}
	return v.d().HasIteratorNextElement(v.r())
}

func (v *Value) IteratorNextElement() (*Value, error) {
	if err := v.require(impl.CapIterator, "IteratorNextElement"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().IteratorNextElement(v.r()))
}

// Hash entries.

func (v *Value) HashSize() (int64, error) {
	if err := v.require(impl.CapHashEntries, "HashSize"); err != nil {
		return 0, err
	}
	return v.d().HashSize(v.r())
}

func (v *Value) HashValue(key any) (*Value, error) {
	if err := v.require(impl.CapHashEntries, "HashValue"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().HashValue(v.r(), key))
}

func (v *Value) HashValueOrDefault(key, def any) (*Value, error) {
	if err := v.require(impl.CapHashEntries, "HashValueOrDefault"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().HashValueOrDefault(v.r(), key, def))
}

func (v *Value) PutHashEntry(key, value any) error {
	if err := v.require(impl.CapHashEntries, "PutHashEntry"); err != nil {
		return err
	}
	return v.d().PutHashEntry(v.r(), key, value)
}

func (v *Value) RemoveHashEntry(key any) (bool, error) {
	if err := v.require(impl.CapHashEntries, "RemoveHashEntry"); err != nil {
		return false, err
	}
	return v.d().RemoveHashEntry(v.r(), key)
}

func (v *Value) HashEntriesIterator() (*Value, error) {
	if err := v.require(impl.CapHashEntries, "HashEntriesIterator"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().HashEntriesIterator(v.r()))
}

func (v *Value) HashKeysIterator() (*Value, error) {
	if err := v.require(impl.CapHashEntries, "HashKeysIterator"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().HashKeysIterator(v.r()))
}

func (v *Value) HashValuesIterator() (*Value, error) {
	if err := v.require(impl.CapHashEntries, "HashValuesIterator"); err != nil {
		return nil, err
	}
	return v.wrap(v.d().HashValuesIterator(v.r()))
}

// Identity.

func (v *Value) SourceLocation() (*SourceSection, bool) {
	return newSection(v.d().SourceLocation(v.r()))
}

func (v *Value) String() string { return v.d().String(v.r()) }

// Equal compares by the backend's notion of identity, not by handle.
func (v *Value) Equal(other *Value) bool {
	if other == nil {
		return false
	}
	return v.d().Equal(v.r(), other.r())
}

func (v *Value) Hash() uint64 { return v.d().Hash(v.r()) }
