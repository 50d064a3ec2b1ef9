package host

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

func (d valueDispatch) Execute(r any, args []any) (impl.ValueRef, error) {
	v := valueOf(r)
	out, err := v.execute(args)
	if err != nil {
		return impl.ValueRef{}, err
	}
	return v.scope.wrap(out), nil
}

func (d valueDispatch) ExecuteVoid(r any, args []any) error {
	_, err := valueOf(r).execute(args)
	return err
}

func (d valueDispatch) Invoke(r any, member string, args []any) (impl.ValueRef, error) {
	v := valueOf(r)
	if p, ok := v.v.(ProxyObject); ok {
		m := &value{v: p.Member(member), scope: v.scope}
		out, err := m.execute(args)
		if err != nil {
			return impl.ValueRef{}, err
		}
		return v.scope.wrap(out), nil
	}
	if !v.scope.caps(v.v).Has(impl.CapMembers) {
		return impl.ValueRef{}, v.unsupported("Invoke")
	}
	mv, ok := v.member(member)
	if !ok {
		return impl.ValueRef{}, errors.NotFound(errors.PhaseDispatch, "member", member)
	}
	m := &value{v: mv.Interface(), scope: v.scope}
	out, err := m.execute(args)
	if err != nil {
		return impl.ValueRef{}, err
	}
	return v.scope.wrap(out), nil
}

func (d valueDispatch) NewInstance(r any, args []any) (impl.ValueRef, error) {
	v := valueOf(r)
	m, ok := v.v.(metaType)
	if !ok {
		return impl.ValueRef{}, v.unsupported("NewInstance")
	}
	if len(args) != 0 {
		return impl.ValueRef{}, errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("%s takes no constructor arguments, got %d", m.t, len(args)))
	}
	if m.t.Kind() == reflect.Pointer {
		return v.scope.wrap(reflect.New(m.t.Elem()).Interface()), nil
	}
	return v.scope.wrap(reflect.New(m.t).Elem().Interface()), nil
}

// execute calls an executable value. Calls made from a context count as a
// statement and are reported to listeners as root expressions.
func (v *value) execute(args []any) (any, error) {
	if p, ok := v.v.(*parsed); ok {
		return p.c.evalJSON(p.src)
	}
	in := v.scope.unwrapAll(args)
	c := v.scope.ctx
	if c == nil {
		return v.call(in)
	}

	end, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer end()

	ev := &event{
		name:       v.rootName(),
		root:       true,
		expression: true,
		inputs:     in,
		scope:      v.scope,
	}
	c.engine.enter(ev)
	out, err := v.run(in)
	if err != nil {
		ev.err = err
	} else {
		ev.ret, ev.hasRet = out, true
	}
	c.engine.exit(ev)
	return out, err
}

func (v *value) run(in []any) (any, error) {
	c := v.scope.ctx
	if err := c.step(nil); err != nil {
		return nil, err
	}
	c.engine.counter.executions.Add(1)
	return v.call(in)
}

func (v *value) rootName() string {
	rv := reflect.ValueOf(v.v)
	if rv.Kind() == reflect.Func {
		if f := runtime.FuncForPC(rv.Pointer()); f != nil {
			return f.Name()
		}
	}
	return typeName(v.v)
}

func (v *value) call(in []any) (out any, err error) {
	if p, ok := v.v.(ProxyExecutable); ok {
		defer v.recoverHost(&err)
		out, err = p.Execute(in...)
		if err != nil {
			return nil, v.hostError(err)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v.v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, v.unsupported("Execute")
	}
	argv, err := arguments(rv.Type(), in)
	if err != nil {
		return nil, err
	}

	defer v.recoverHost(&err)
	return v.results(rv.Call(argv))
}

func arguments(t reflect.Type, in []any) ([]reflect.Value, error) {
	n := t.NumIn()
	if t.IsVariadic() {
		if len(in) < n-1 {
			return nil, arity(n-1, len(in), true)
		}
	} else if len(in) != n {
		return nil, arity(n, len(in), false)
	}

	argv := make([]reflect.Value, len(in))
	for i, a := range in {
		var pt reflect.Type
		if t.IsVariadic() && i >= n-1 {
			pt = t.In(n - 1).Elem()
		} else {
			pt = t.In(i)
		}
		cv, err := coerce(a, pt)
		if err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path(fmt.Sprintf("arg%d", i)).
				GoType(pt.String()).
				Cause(err).
				Detail("invalid argument").
				Build()
		}
		argv[i] = cv
	}
	return argv, nil
}

func arity(want, got int, variadic bool) error {
	atLeast := ""
	if variadic {
		atLeast = "at least "
	}
	return errors.InvalidInput(errors.PhaseDispatch,
		fmt.Sprintf("expected %s%d arguments, got %d", atLeast, want, got))
}

// results maps Go return values: a trailing error is raised, no results
// is null, one result is itself and several are a slice.
func (v *value) results(out []reflect.Value) (any, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1]; !e.IsNil() {
			return nil, v.hostError(e.Interface().(error))
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	all := make([]any, len(out))
	for i, o := range out {
		all[i] = o.Interface()
	}
	return all, nil
}

// hostError raises err as a host exception unless it already is a guest
// exception.
func (v *value) hostError(err error) error {
	b := v.scope.backend
	if _, ok := b.guestErrorOf(err); ok {
		return err
	}
	return b.raise(&guestError{
		msg:     err.Error(),
		kind:    excHost,
		hostErr: err,
		guest:   err,
		frames:  []frame{{root: v.rootName(), host: true}},
		scope:   v.scope,
	})
}

func (v *value) recoverHost(err *error) {
	p := recover()
	if p == nil {
		return
	}
	cause, ok := p.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", p)
	}
	*err = v.hostError(cause)
}

// coerce converts an unwrapped argument to t. Numbers convert between
// widths when the value fits; slices and maps convert element-wise.
func coerce(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, cannotUse(a, t)
	}

	rv := reflect.ValueOf(a)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return convertNumber(rv, t)
	case rv.Kind() == t.Kind() && (t.Kind() == reflect.String || t.Kind() == reflect.Bool):
		return rv.Convert(t), nil
	case (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := coerce(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := coerce(iter.Key().Interface(), t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := coerce(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, ev)
		}
		return out, nil
	}
	return reflect.Value{}, cannotUse(a, t)
}

func cannotUse(a any, t reflect.Type) error {
	return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
		GoType(typeName(a)).
		Detail("cannot use value as %s", t).
		Build()
}

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch {
	case isSigned(t.Kind()):
		i, ok := exactInt64(rv)
		if !ok || out.OverflowInt(i) {
			return reflect.Value{}, errors.Overflow(errors.PhaseDispatch, rv.Interface(), t.String())
		}
		out.SetInt(i)
	case isUnsigned(t.Kind()):
		u, ok := exactUint64(rv)
		if !ok || out.OverflowUint(u) {
			return reflect.Value{}, errors.Overflow(errors.PhaseDispatch, rv.Interface(), t.String())
		}
		out.SetUint(u)
	default:
		f := floatOf(rv)
		if out.OverflowFloat(f) {
			return reflect.Value{}, errors.Overflow(errors.PhaseDispatch, rv.Interface(), t.String())
		}
		out.SetFloat(f)
	}
	return out, nil
}
