package convert

import (
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/polyglot/errors"
)

// Kind is the shape of a native type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindSint8
	KindUint8
	KindSint16
	KindUint16
	KindSint32
	KindUint32
	KindSint64
	KindUint64
	KindFloat
	KindDouble
	KindPointer
	KindString
	KindObject
	KindArray

	numKinds
)

var kindNames = [numKinds]string{
	KindVoid:    "void",
	KindBool:    "bool",
	KindSint8:   "sint8",
	KindUint8:   "uint8",
	KindSint16:  "sint16",
	KindUint16:  "uint16",
	KindSint32:  "sint32",
	KindUint32:  "uint32",
	KindSint64:  "sint64",
	KindUint64:  "uint64",
	KindFloat:   "float",
	KindDouble:  "double",
	KindPointer: "pointer",
	KindString:  "string",
	KindObject:  "object",
	KindArray:   "array",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Descriptor is an interned native type. Two descriptors describe the same
// type exactly when they are the same pointer, so caches compare identity.
type Descriptor struct {
	elem *Descriptor
	name string
	kind Kind
}

func (d *Descriptor) Kind() Kind { return d.kind }

// Elem returns the element type of an array descriptor, or nil.
func (d *Descriptor) Elem() *Descriptor { return d.elem }

func (d *Descriptor) String() string { return d.name }

var primitives = func() [KindArray]*Descriptor {
	var out [KindArray]*Descriptor
	for k := KindVoid; k < KindArray; k++ {
		out[k] = &Descriptor{kind: k, name: k.String()}
	}
	return out
}()

var arrays sync.Map // *Descriptor -> *Descriptor

// Of returns the descriptor of a non-array kind. It panics for KindArray
// and unknown kinds; use ArrayOf for arrays.
func Of(k Kind) *Descriptor {
	if k >= KindArray {
		panic("convert: Of called with " + k.String())
	}
	return primitives[k]
}

// ArrayOf returns the descriptor of an array of elem.
func ArrayOf(elem *Descriptor) *Descriptor {
	if d, ok := arrays.Load(elem); ok {
		return d.(*Descriptor)
	}
	d, _ := arrays.LoadOrStore(elem, &Descriptor{
		kind: KindArray,
		elem: elem,
		name: "array<" + elem.name + ">",
	})
	return d.(*Descriptor)
}

// ForValueType maps a WebAssembly value type to its descriptor.
func ForValueType(t api.ValueType) (*Descriptor, error) {
	switch t {
	case api.ValueTypeI32:
		return Of(KindSint32), nil
	case api.ValueTypeI64:
		return Of(KindSint64), nil
	case api.ValueTypeF32:
		return Of(KindFloat), nil
	case api.ValueTypeF64:
		return Of(KindDouble), nil
	case api.ValueTypeExternref:
		return Of(KindObject), nil
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
		Descriptor(api.ValueTypeName(t)).
		Detail("no native descriptor for WebAssembly type").
		Build()
}

// ForWIT maps a WIT type to its descriptor. Primitives, list<T>, aliases
// and resource handles are supported.
func ForWIT(t wit.Type) (*Descriptor, error) {
	switch t := t.(type) {
	case wit.Bool:
		return Of(KindBool), nil
	case wit.S8:
		return Of(KindSint8), nil
	case wit.U8:
		return Of(KindUint8), nil
	case wit.S16:
		return Of(KindSint16), nil
	case wit.U16:
		return Of(KindUint16), nil
	case wit.S32:
		return Of(KindSint32), nil
	case wit.U32:
		return Of(KindUint32), nil
	case wit.S64:
		return Of(KindSint64), nil
	case wit.U64:
		return Of(KindUint64), nil
	case wit.F32:
		return Of(KindFloat), nil
	case wit.F64:
		return Of(KindDouble), nil
	case wit.Char:
		return Of(KindUint32), nil
	case wit.String:
		return Of(KindString), nil
	case *wit.TypeDef:
		switch k := t.Kind.(type) {
		case *wit.List:
			elem, err := ForWIT(k.Type)
			if err != nil {
				return nil, err
			}
			return ArrayOf(elem), nil
		case *wit.Own, *wit.Borrow, *wit.Resource:
			return Of(KindObject), nil
		case wit.Type:
			return ForWIT(k)
		}
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
		GoType(fmt.Sprintf("%T", t)).
		Detail("no native descriptor for WIT type").
		Build()
}
