package impl

import (
	"encoding/binary"
	"reflect"
	"time"

	"github.com/wippyai/polyglot/errors"
)

// ValueCaps is the capability-flags half of the value contract. Each flag
// gates a group of operations; an operation whose flag is clear fails with
// errors.ErrUnsupportedOperation.
type ValueCaps uint32

const (
	CapNull ValueCaps = 1 << iota
	CapBoolean
	CapNumber
	CapString
	CapDate
	CapTime
	CapTimeZone
	CapDuration
	CapInstant
	CapNativePointer
	CapHostObject
	CapProxyObject
	CapMetaObject
	CapException
	CapArrayElements
	CapBufferElements
	CapMembers
	CapExecutable
	CapInstantiable
	CapIterable
	CapIterator
	CapHashEntries
)

// Has reports whether every flag of want is set.
func (c ValueCaps) Has(want ValueCaps) bool {
	return c&want == want
}

// NumberKind names a Go numeric width for Fits queries.
type NumberKind uint8

const (
	NumberInt8 NumberKind = iota
	NumberInt16
	NumberInt32
	NumberInt64
	NumberFloat32
	NumberFloat64
)

// ValueDispatch is the operations half of the value contract. Every method
// must be implemented; BaseValueDispatch supplies the unsupported answers.
type ValueDispatch interface {
	Caps(receiver any) ValueCaps

	ArrayElement(receiver any, index int64) (ValueRef, error)
	SetArrayElement(receiver any, index int64, value any) error
	RemoveArrayElement(receiver any, index int64) (bool, error)
	ArraySize(receiver any) (int64, error)

	IsBufferWritable(receiver any) (bool, error)
	BufferSize(receiver any) (int64, error)
	ReadBufferByte(receiver any, offset int64) (byte, error)
	WriteBufferByte(receiver any, offset int64, value byte) error
	ReadBufferInt16(receiver any, order binary.ByteOrder, offset int64) (int16, error)
	WriteBufferInt16(receiver any, order binary.ByteOrder, offset int64, value int16) error
	ReadBufferInt32(receiver any, order binary.ByteOrder, offset int64) (int32, error)
	WriteBufferInt32(receiver any, order binary.ByteOrder, offset int64, value int32) error
	ReadBufferInt64(receiver any, order binary.ByteOrder, offset int64) (int64, error)
	WriteBufferInt64(receiver any, order binary.ByteOrder, offset int64, value int64) error
	ReadBufferFloat32(receiver any, order binary.ByteOrder, offset int64) (float32, error)
	WriteBufferFloat32(receiver any, order binary.ByteOrder, offset int64, value float32) error
	ReadBufferFloat64(receiver any, order binary.ByteOrder, offset int64) (float64, error)
	WriteBufferFloat64(receiver any, order binary.ByteOrder, offset int64, value float64) error

	HasMember(receiver any, key string) bool
	Member(receiver any, key string) (ValueRef, error)
	MemberKeys(receiver any) ([]string, error)
	PutMember(receiver any, key string, value any) error
	RemoveMember(receiver any, key string) (bool, error)

	Execute(receiver any, args []any) (ValueRef, error)
	ExecuteVoid(receiver any, args []any) error
	NewInstance(receiver any, args []any) (ValueRef, error)
	Invoke(receiver any, member string, args []any) (ValueRef, error)

	AsString(receiver any) (string, error)
	AsBoolean(receiver any) (bool, error)
	Fits(receiver any, kind NumberKind) bool
	AsInt8(receiver any) (int8, error)
	AsInt16(receiver any) (int16, error)
	AsInt32(receiver any) (int32, error)
	AsInt64(receiver any) (int64, error)
	AsFloat32(receiver any) (float32, error)
	AsFloat64(receiver any) (float64, error)
	AsNativePointer(receiver any) (uintptr, error)
	AsHostObject(receiver any) (any, error)
	AsProxyObject(receiver any) (any, error)

	AsDate(receiver any) (time.Time, error)
	AsTime(receiver any) (time.Time, error)
	AsTimeZone(receiver any) (*time.Location, error)
	AsDuration(receiver any) (time.Duration, error)
	AsInstant(receiver any) (time.Time, error)

	// ThrowException returns the guest exception the value represents.
	ThrowException(receiver any) error

	MetaObject(receiver any) (ValueRef, bool)
	MetaQualifiedName(receiver any) (string, error)
	MetaSimpleName(receiver any) (string, error)
	IsMetaInstance(receiver any, instance any) (bool, error)

	Iterator(receiver any) (ValueRef, error)
	HasIteratorNextElement(receiver any) (bool, error)
	IteratorNextElement(receiver any) (ValueRef, error)

	HashSize(receiver any) (int64, error)
	HashValue(receiver any, key any) (ValueRef, error)
	HashValueOrDefault(receiver any, key any, def any) (ValueRef, error)
	PutHashEntry(receiver any, key any, value any) error
	RemoveHashEntry(receiver any, key any) (bool, error)
	HashEntriesIterator(receiver any) (ValueRef, error)
	HashKeysIterator(receiver any) (ValueRef, error)
	HashValuesIterator(receiver any) (ValueRef, error)

	SourceLocation(receiver any) (SourceSectionRef, bool)
	String(receiver any) string
	Equal(receiver any, other any) bool
	Hash(receiver any) uint64
}

// BaseValueDispatch answers every capability query false and fails every
// operation with errors.ErrUnsupportedOperation. Backends embed it and
// override what their values support.
type BaseValueDispatch struct{}

func unsupported(op string, receiver any) error {
	return errors.UnsupportedOperation(op, receiver)
}

func (BaseValueDispatch) Caps(any) ValueCaps { return 0 }

func (BaseValueDispatch) ArrayElement(r any, _ int64) (ValueRef, error) {
	return ValueRef{}, unsupported("ArrayElement", r)
}

func (BaseValueDispatch) SetArrayElement(r any, _ int64, _ any) error {
	return unsupported("SetArrayElement", r)
}

func (BaseValueDispatch) RemoveArrayElement(r any, _ int64) (bool, error) {
	return false, unsupported("RemoveArrayElement", r)
}

func (BaseValueDispatch) ArraySize(r any) (int64, error) {
	return 0, unsupported("ArraySize", r)
}

func (BaseValueDispatch) IsBufferWritable(r any) (bool, error) {
	return false, unsupported("IsBufferWritable", r)
}

func (BaseValueDispatch) BufferSize(r any) (int64, error) {
	return 0, unsupported("BufferSize", r)
}

func (BaseValueDispatch) ReadBufferByte(r any, _ int64) (byte, error) {
	return 0, unsupported("ReadBufferByte", r)
}

func (BaseValueDispatch) WriteBufferByte(r any, _ int64, _ byte) error {
	return unsupported("WriteBufferByte", r)
}

func (BaseValueDispatch) ReadBufferInt16(r any, _ binary.ByteOrder, _ int64) (int16, error) {
	return 0, unsupported("ReadBufferInt16", r)
}

func (BaseValueDispatch) WriteBufferInt16(r any, _ binary.ByteOrder, _ int64, _ int16) error {
	return unsupported("WriteBufferInt16", r)
}

func (BaseValueDispatch) ReadBufferInt32(r any, _ binary.ByteOrder, _ int64) (int32, error) {
	return 0, unsupported("ReadBufferInt32", r)
}

func (BaseValueDispatch) WriteBufferInt32(r any, _ binary.ByteOrder, _ int64, _ int32) error {
	return unsupported("WriteBufferInt32", r)
}

func (BaseValueDispatch) ReadBufferInt64(r any, _ binary.ByteOrder, _ int64) (int64, error) {
	return 0, unsupported("ReadBufferInt64", r)
}

func (BaseValueDispatch) WriteBufferInt64(r any, _ binary.ByteOrder, _ int64, _ int64) error {
	return unsupported("WriteBufferInt64", r)
}

func (BaseValueDispatch) ReadBufferFloat32(r any, _ binary.ByteOrder, _ int64) (float32, error) {
	return 0, unsupported("ReadBufferFloat32", r)
}

func (BaseValueDispatch) WriteBufferFloat32(r any, _ binary.ByteOrder, _ int64, _ float32) error {
	return unsupported("WriteBufferFloat32", r)
}

func (BaseValueDispatch) ReadBufferFloat64(r any, _ binary.ByteOrder, _ int64) (float64, error) {
	return 0, unsupported("ReadBufferFloat64", r)
}

func (BaseValueDispatch) WriteBufferFloat64(r any, _ binary.ByteOrder, _ int64, _ float64) error {
	return unsupported("WriteBufferFloat64", r)
}

func (BaseValueDispatch) HasMember(any, string) bool { return false }

func (BaseValueDispatch) Member(r any, _ string) (ValueRef, error) {
	return ValueRef{}, unsupported("Member", r)
}

func (BaseValueDispatch) MemberKeys(r any) ([]string, error) {
	return nil, unsupported("MemberKeys", r)
}

func (BaseValueDispatch) PutMember(r any, _ string, _ any) error {
	return unsupported("PutMember", r)
}

func (BaseValueDispatch) RemoveMember(r any, _ string) (bool, error) {
	return false, unsupported("RemoveMember", r)
}

func (BaseValueDispatch) Execute(r any, _ []any) (ValueRef, error) {
	return ValueRef{}, unsupported("Execute", r)
}

func (BaseValueDispatch) ExecuteVoid(r any, _ []any) error {
	return unsupported("ExecuteVoid", r)
}

func (BaseValueDispatch) NewInstance(r any, _ []any) (ValueRef, error) {
	return ValueRef{}, unsupported("NewInstance", r)
}

func (BaseValueDispatch) Invoke(r any, _ string, _ []any) (ValueRef, error) {
	return ValueRef{}, unsupported("Invoke", r)
}

func (BaseValueDispatch) AsString(r any) (string, error) {
	return "", unsupported("AsString", r)
}

func (BaseValueDispatch) AsBoolean(r any) (bool, error) {
	return false, unsupported("AsBoolean", r)
}

func (BaseValueDispatch) Fits(any, NumberKind) bool { return false }

func (BaseValueDispatch) AsInt8(r any) (int8, error) {
	return 0, unsupported("AsInt8", r)
}

func (BaseValueDispatch) AsInt16(r any) (int16, error) {
	return 0, unsupported("AsInt16", r)
}

func (BaseValueDispatch) AsInt32(r any) (int32, error) {
	return 0, unsupported("AsInt32", r)
}

func (BaseValueDispatch) AsInt64(r any) (int64, error) {
	return 0, unsupported("AsInt64", r)
}

func (BaseValueDispatch) AsFloat32(r any) (float32, error) {
	return 0, unsupported("AsFloat32", r)
}

func (BaseValueDispatch) AsFloat64(r any) (float64, error) {
	return 0, unsupported("AsFloat64", r)
}

func (BaseValueDispatch) AsNativePointer(r any) (uintptr, error) {
	return 0, unsupported("AsNativePointer", r)
}

func (BaseValueDispatch) AsHostObject(r any) (any, error) {
	return nil, unsupported("AsHostObject", r)
}

func (BaseValueDispatch) AsProxyObject(r any) (any, error) {
	return nil, unsupported("AsProxyObject", r)
}

func (BaseValueDispatch) AsDate(r any) (time.Time, error) {
	return time.Time{}, unsupported("AsDate", r)
}

func (BaseValueDispatch) AsTime(r any) (time.Time, error) {
	return time.Time{}, unsupported("AsTime", r)
}

func (BaseValueDispatch) AsTimeZone(r any) (*time.Location, error) {
	return nil, unsupported("AsTimeZone", r)
}

func (BaseValueDispatch) AsDuration(r any) (time.Duration, error) {
	return 0, unsupported("AsDuration", r)
}

func (BaseValueDispatch) AsInstant(r any) (time.Time, error) {
	return time.Time{}, unsupported("AsInstant", r)
}

func (BaseValueDispatch) ThrowException(r any) error {
	return unsupported("ThrowException", r)
}

func (BaseValueDispatch) MetaObject(any) (ValueRef, bool) { return ValueRef{}, false }

func (BaseValueDispatch) MetaQualifiedName(r any) (string, error) {
	return "", unsupported("MetaQualifiedName", r)
}

func (BaseValueDispatch) MetaSimpleName(r any) (string, error) {
	return "", unsupported("MetaSimpleName", r)
}

func (BaseValueDispatch) IsMetaInstance(r any, _ any) (bool, error) {
	return false, unsupported("IsMetaInstance", r)
}

func (BaseValueDispatch) Iterator(r any) (ValueRef, error) {
	return ValueRef{}, unsupported("Iterator", r)
}

func (BaseValueDispatch) HasIteratorNextElement(r any) (bool, error) {
	return false, unsupported("HasIteratorNextElement", r)
}

func (BaseValueDispatch) IteratorNextElement(r any) (ValueRef, error) {
	return ValueRef{}, unsupported("IteratorNextElement", r)
}

func (BaseValueDispatch) HashSize(r any) (int64, error) {
	return 0, unsupported("HashSize", r)
}

func (BaseValueDispatch) HashValue(r any, _ any) (ValueRef, error) {
	return ValueRef{}, unsupported("HashValue", r)
}

func (BaseValueDispatch) HashValueOrDefault(r any, _ any, _ any) (ValueRef, error) {
	return ValueRef{}, unsupported("HashValueOrDefault", r)
}

func (BaseValueDispatch) PutHashEntry(r any, _ any, _ any) error {
	return unsupported("PutHashEntry", r)
}

func (BaseValueDispatch) RemoveHashEntry(r any, _ any) (bool, error) {
	return false, unsupported("RemoveHashEntry", r)
}

func (BaseValueDispatch) HashEntriesIterator(r any) (ValueRef, error) {
	return ValueRef{}, unsupported("HashEntriesIterator", r)
}

func (BaseValueDispatch) HashKeysIterator(r any) (ValueRef, error) {
	return ValueRef{}, unsupported("HashKeysIterator", r)
}

func (BaseValueDispatch) HashValuesIterator(r any) (ValueRef, error) {
	return ValueRef{}, unsupported("HashValuesIterator", r)
}

func (BaseValueDispatch) SourceLocation(any) (SourceSectionRef, bool) {
	return SourceSectionRef{}, false
}

func (BaseValueDispatch) String(any) string { return "<value>" }

func (BaseValueDispatch) Equal(r any, other any) bool {
	return SameReceiver(r, other)
}

// SameReceiver compares receivers without panicking on uncomparable types.
func SameReceiver(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func (BaseValueDispatch) Hash(any) uint64 { return 0 }
