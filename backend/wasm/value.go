package wasm

import (
	"context"
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/polyglot/convert"
	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// instance is an instantiated module. Its members are the exported
// functions, memories and globals.
type instance struct {
	c        *execContext
	name     string
	mod      api.Module
	compiled wazero.CompiledModule
	src      impl.SourceRef

	mu    sync.Mutex
	funcs map[string]*function
}

// function is an exported function with its own conversion site.
type function struct {
	inst    *instance
	name    string
	fn      api.Function
	def     api.FunctionDefinition
	params  []*convert.Descriptor
	results []*convert.Descriptor
	site    *convert.Site
	err     error
}

type memory struct {
	inst *instance
	name string
	mem  api.Memory
}

// module is a compiled, not yet instantiated module.
type module struct {
	c        *execContext
	compiled wazero.CompiledModule
	src      impl.SourceRef
}

// moduleBindings lists the instances of a context by module name.
type moduleBindings struct {
	c *execContext
}

func (inst *instance) function(name string) (*function, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if f, ok := inst.funcs[name]; ok {
		return f, true
	}
	fn := inst.mod.ExportedFunction(name)
	if fn == nil {
		return nil, false
	}
	def := fn.Definition()
	f := &function{
		inst: inst,
		name: name,
		fn:   fn,
		def:  def,
		site: inst.c.engine.boundary.NewSite(),
	}
	f.params, f.err = descriptors(def.ParamTypes())
	if f.err == nil {
		f.results, f.err = descriptors(def.ResultTypes())
	}
	inst.funcs[name] = f
	return f, true
}

func (inst *instance) keys() []string {
	var out []string
	for name := range inst.mod.ExportedFunctionDefinitions() {
		out = append(out, name)
	}
	for name := range inst.mod.ExportedMemoryDefinitions() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func descriptors(types []api.ValueType) ([]*convert.Descriptor, error) {
	out := make([]*convert.Descriptor, len(types))
	for i, t := range types {
		d, err := convert.ForValueType(t)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// decode converts raw wazero values of types to Go values. Values without a
// descriptor are kept raw.
func (e *engine) decode(types []api.ValueType, raw []uint64) []any {
	out := make([]any, 0, len(types))
	for i, t := range types {
		if i >= len(raw) {
			break
		}
		var v any = raw[i]
		if d, err := convert.ForValueType(t); err == nil {
			if x, err := e.boundary.Convert(convert.FromNative, d, raw[i]); err == nil {
				v = x
			}
		}
		out = append(out, v)
	}
	return out
}

// call converts args, runs the function and converts its results. Several
// results come back as a []any. Host objects passed as externref are
// pinned only for the duration of the call.
func (f *function) call(args []any) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(args) != len(f.params) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Path(f.name).
			Detail("expected %d arguments, got %d", len(f.params), len(args)).
			Build()
	}
	c := f.inst.c
	var pinned []uint64
	defer func() {
		for _, h := range pinned {
			c.engine.boundary.Release(h)
		}
	}()
	stack := make([]uint64, max(len(f.params), len(f.results)))
	for i, a := range args {
		n, err := f.site.ToNative(f.params[i], c.unwrap(a))
		if err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path(f.name, strconv.Itoa(i)).
				Cause(err).
				Detail("cannot convert argument").
				Build()
		}
		raw, ok := n.(uint64)
		if !ok {
			return nil, errors.UnsupportedType(a, f.params[i].String())
		}
		if f.params[i].Kind() == convert.KindObject && raw != 0 {
			pinned = append(pinned, raw)
		}
		stack[i] = raw
	}

	ctx, end, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	if err := c.step(f.inst.src); err != nil {
		return nil, err
	}
	if err := f.fn.CallWithStack(ctx, stack); err != nil {
		return nil, c.trap(err)
	}

	out := make([]any, len(f.results))
	for i, d := range f.results {
		v, err := f.site.FromNative(d, stack[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

// unwrap reduces an argument to a Go value the conversion site accepts.
func (c *execContext) unwrap(a any) any {
	if v, ok := c.engine.hostAccess.HostValue(a); ok {
		return v
	}
	api, ok := c.engine.backend.api()
	if !ok {
		return a
	}
	ref, ok := api.ValueRef(a)
	if !ok {
		return a
	}
	d, r := ref.Dispatch, ref.Receiver
	caps := d.Caps(r)
	switch {
	case caps.Has(impl.CapNull):
		return nil
	case caps.Has(impl.CapBoolean):
		if b, err := d.AsBoolean(r); err == nil {
			return b
		}
	case caps.Has(impl.CapNumber):
		if d.Fits(r, impl.NumberInt64) {
			if i, err := d.AsInt64(r); err == nil {
				return i
			}
		}
		if x, err := d.AsFloat64(r); err == nil {
			return x
		}
	case caps.Has(impl.CapString):
		if s, err := d.AsString(r); err == nil {
			return s
		}
	}
	return r
}

func (m *memory) bytes() []byte {
	buf, _ := m.mem.Read(0, m.mem.Size())
	return buf
}

func (b *moduleBindings) lookup(name string) (*instance, bool) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	for i := len(b.c.instances) - 1; i >= 0; i-- {
		if inst := b.c.instances[i]; inst.name == name {
			return inst, true
		}
	}
	return nil, false
}

func (b *moduleBindings) keys() []string {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, inst := range b.c.instances {
		if !seen[inst.name] {
			seen[inst.name] = true
			out = append(out, inst.name)
		}
	}
	sort.Strings(out)
	return out
}

type valueDispatch struct {
	impl.BaseValueDispatch
	b *Backend
}

func (d valueDispatch) ref(v any) impl.ValueRef {
	return impl.ValueRef{Dispatch: d, Receiver: v}
}

func (d valueDispatch) Caps(r any) impl.ValueCaps {
	switch r.(type) {
	case *instance, *moduleBindings:
		return impl.CapMembers
	case *function:
		return impl.CapExecutable
	case *memory:
		return impl.CapBufferElements
	case *module:
		return impl.CapExecutable | impl.CapInstantiable
	}
	return 0
}

func unsupported(op string, r any) error {
	return errors.UnsupportedOperation(op, r)
}

func (d valueDispatch) HasMember(r any, key string) bool {
	switch v := r.(type) {
	case *instance:
		return v.mod.ExportedFunction(key) != nil || v.mod.ExportedMemory(key) != nil || v.mod.ExportedGlobal(key) != nil
	case *moduleBindings:
		_, ok := v.lookup(key)
		return ok
	}
	return false
}

// Member returns an exported function or memory, or the current value of
// an exported global. Missing members are null.
func (d valueDispatch) Member(r any, key string) (impl.ValueRef, error) {
	switch v := r.(type) {
	case *instance:
		if f, ok := v.function(key); ok {
			return d.ref(f), nil
		}
		if m := v.mod.ExportedMemory(key); m != nil {
			return d.ref(&memory{inst: v, name: key, mem: m}), nil
		}
		if g := v.mod.ExportedGlobal(key); g != nil {
			return v.c.toValue(v.c.engine.decode([]api.ValueType{g.Type()}, []uint64{g.Get()})[0])
		}
		return v.c.toValue(nil)
	case *moduleBindings:
		if inst, ok := v.lookup(key); ok {
			return d.ref(inst), nil
		}
		return v.c.toValue(nil)
	}
	return impl.ValueRef{}, unsupported("Member", r)
}

func (d valueDispatch) MemberKeys(r any) ([]string, error) {
	switch v := r.(type) {
	case *instance:
		return v.keys(), nil
	case *moduleBindings:
		return v.keys(), nil
	}
	return nil, unsupported("MemberKeys", r)
}

// PutMember sets a mutable exported global.
func (d valueDispatch) PutMember(r any, key string, x any) error {
	inst, ok := r.(*instance)
	if !ok {
		return unsupported("PutMember", r)
	}
	g, ok := inst.mod.ExportedGlobal(key).(api.MutableGlobal)
	if !ok {
		return errors.New(errors.PhaseDispatch, errors.KindUnsupportedOperation).
			Path(inst.name, key).
			Detail("not a mutable global").
			Build()
	}
	desc, err := convert.ForValueType(g.Type())
	if err != nil {
		return err
	}
	n, err := inst.c.engine.boundary.Convert(convert.ToNative, desc, inst.c.unwrap(x))
	if err != nil {
		return err
	}
	raw, ok := n.(uint64)
	if !ok {
		return errors.UnsupportedType(x, desc.String())
	}
	g.Set(raw)
	return nil
}

func (d valueDispatch) RemoveMember(r any, _ string) (bool, error) {
	return false, unsupported("RemoveMember", r)
}

func (d valueDispatch) Execute(r any, args []any) (impl.ValueRef, error) {
	switch v := r.(type) {
	case *function:
		out, err := v.call(args)
		if err != nil {
			return impl.ValueRef{}, err
		}
		return v.inst.c.toValue(out)
	case *module:
		return d.NewInstance(r, args)
	}
	return impl.ValueRef{}, unsupported("Execute", r)
}

func (d valueDispatch) ExecuteVoid(r any, args []any) error {
	_, err := d.Execute(r, args)
	return err
}

func (d valueDispatch) Invoke(r any, name string, args []any) (impl.ValueRef, error) {
	inst, ok := r.(*instance)
	if !ok {
		return impl.ValueRef{}, unsupported("Invoke", r)
	}
	f, ok := inst.function(name)
	if !ok {
		return impl.ValueRef{}, errors.NotFound(errors.PhaseDispatch, "function", name)
	}
	return d.Execute(f, args)
}

// NewInstance instantiates a parsed module. It takes no arguments.
func (d valueDispatch) NewInstance(r any, args []any) (impl.ValueRef, error) {
	m, ok := r.(*module)
	if !ok {
		return impl.ValueRef{}, unsupported("NewInstance", r)
	}
	if len(args) > 0 {
		return impl.ValueRef{}, errors.InvalidInput(errors.PhaseDispatch, "module instantiation takes no arguments")
	}
	if err := m.c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	inst, err := m.c.instantiate(m.compiled, m.src)
	if err != nil {
		return impl.ValueRef{}, err
	}
	return d.ref(inst), nil
}

func (d valueDispatch) IsBufferWritable(r any) (bool, error) {
	if _, ok := r.(*memory); !ok {
		return false, unsupported("IsBufferWritable", r)
	}
	return true, nil
}

func (d valueDispatch) BufferSize(r any) (int64, error) {
	m, ok := r.(*memory)
	if !ok {
		return 0, unsupported("BufferSize", r)
	}
	return int64(m.mem.Size()), nil
}

func memoryOf(op string, r any) ([]byte, error) {
	m, ok := r.(*memory)
	if !ok {
		return nil, unsupported(op, r)
	}
	return m.bytes(), nil
}

func (d valueDispatch) ReadBufferByte(r any, off int64) (byte, error) {
	buf, err := memoryOf("ReadBufferByte", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadByteAt(buf, off)
}

func (d valueDispatch) WriteBufferByte(r any, off int64, x byte) error {
	buf, err := memoryOf("WriteBufferByte", r)
	if err != nil {
		return err
	}
	return impl.WriteByteAt(buf, off, x)
}

func (d valueDispatch) ReadBufferInt16(r any, o binary.ByteOrder, off int64) (int16, error) {
	buf, err := memoryOf("ReadBufferInt16", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadInt16At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt16(r any, o binary.ByteOrder, off int64, x int16) error {
	buf, err := memoryOf("WriteBufferInt16", r)
	if err != nil {
		return err
	}
	return impl.WriteInt16At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferInt32(r any, o binary.ByteOrder, off int64) (int32, error) {
	buf, err := memoryOf("ReadBufferInt32", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadInt32At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt32(r any, o binary.ByteOrder, off int64, x int32) error {
	buf, err := memoryOf("WriteBufferInt32", r)
	if err != nil {
		return err
	}
	return impl.WriteInt32At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferInt64(r any, o binary.ByteOrder, off int64) (int64, error) {
	buf, err := memoryOf("ReadBufferInt64", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadInt64At(buf, o, off)
}

func (d valueDispatch) WriteBufferInt64(r any, o binary.ByteOrder, off int64, x int64) error {
	buf, err := memoryOf("WriteBufferInt64", r)
	if err != nil {
		return err
	}
	return impl.WriteInt64At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferFloat32(r any, o binary.ByteOrder, off int64) (float32, error) {
	buf, err := memoryOf("ReadBufferFloat32", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadFloat32At(buf, o, off)
}

func (d valueDispatch) WriteBufferFloat32(r any, o binary.ByteOrder, off int64, x float32) error {
	buf, err := memoryOf("WriteBufferFloat32", r)
	if err != nil {
		return err
	}
	return impl.WriteFloat32At(buf, o, off, x)
}

func (d valueDispatch) ReadBufferFloat64(r any, o binary.ByteOrder, off int64) (float64, error) {
	buf, err := memoryOf("ReadBufferFloat64", r)
	if err != nil {
		return 0, err
	}
	return impl.ReadFloat64At(buf, o, off)
}

func (d valueDispatch) WriteBufferFloat64(r any, o binary.ByteOrder, off int64, x float64) error {
	buf, err := memoryOf("WriteBufferFloat64", r)
	if err != nil {
		return err
	}
	return impl.WriteFloat64At(buf, o, off, x)
}

func (d valueDispatch) String(r any) string {
	switch v := r.(type) {
	case *instance:
		return "wasm module " + v.name
	case *function:
		return "wasm function " + signature(v.name, v.def)
	case *memory:
		return fmt.Sprintf("wasm memory %s[%d]", v.name, v.mem.Size())
	case *module:
		return "wasm compiled module " + v.src.Dispatch.Name(v.src.Receiver)
	case *moduleBindings:
		return "wasm bindings"
	}
	return "<wasm value>"
}

func signature(name string, def api.FunctionDefinition) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, t := range def.ParamTypes() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
	for i, t := range def.ResultTypes() {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	return b.String()
}

// Equal compares identity. Two memory values of one instance and export
// are equal.
func (d valueDispatch) Equal(r any, other any) bool {
	if m, ok := r.(*memory); ok {
		o, ok := other.(*memory)
		return ok && o.inst == m.inst && o.name == m.name
	}
	return r == other
}

func (d valueDispatch) Hash(r any) uint64 {
	if m, ok := r.(*memory); ok {
		r = m.inst
	}
	return uint64(reflect.ValueOf(r).Pointer())
}

func (d valueDispatch) SourceLocation(any) (impl.SourceSectionRef, bool) {
	return impl.SourceSectionRef{}, false
}

// closeCompiled releases a compiled module that was never instantiated.
func closeCompiled(m wazero.CompiledModule) {
	_ = m.Close(context.Background())
}
