package host

import (
	"fmt"

	"github.com/wippyai/polyglot/impl"
)

// scope is the host state values are created in: the host access policy
// and, for values of a context, the context.
type scope struct {
	backend    *Backend
	hostAccess any
	loader     any
	ctx        *execContext
}

// value is the receiver of every host value.
type value struct {
	v     any
	scope *scope
}

func (s *scope) wrap(v any) impl.ValueRef {
	return impl.ValueRef{Dispatch: s.backend.values, Receiver: &value{v: v, scope: s}}
}

// unwrap turns an argument from the embedder into a Go value. Facade values
// of this backend yield their Go value; values of other backends are
// reduced through their dispatch where a Go form exists.
func (s *scope) unwrap(a any) any {
	if v, ok := a.(*value); ok {
		return v.v
	}
	api, ok := s.backend.api()
	if !ok {
		return a
	}
	ref, ok := api.ValueRef(a)
	if !ok {
		return a
	}
	if v, ok := ref.Receiver.(*value); ok {
		return v.v
	}
	return foreign(ref, a)
}

func foreign(ref impl.ValueRef, handle any) any {
	d, r := ref.Dispatch, ref.Receiver
	caps := d.Caps(r)
	switch {
	case caps.Has(impl.CapNull):
		return nil
	case caps.Has(impl.CapBoolean):
		if b, err := d.AsBoolean(r); err == nil {
			return b
		}
	case caps.Has(impl.CapString):
		if s, err := d.AsString(r); err == nil {
			return s
		}
	case caps.Has(impl.CapNumber):
		if d.Fits(r, impl.NumberInt64) {
			if i, err := d.AsInt64(r); err == nil {
				return i
			}
		}
		if f, err := d.AsFloat64(r); err == nil {
			return f
		}
	case caps.Has(impl.CapHostObject):
		if o, err := d.AsHostObject(r); err == nil {
			return o
		}
	}
	return handle
}

func (s *scope) unwrapAll(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = s.unwrap(a)
	}
	return out
}

func (s *scope) allowsPublic() bool {
	if api, ok := s.backend.api(); ok {
		return api.AllowsPublicAccess(s.hostAccess)
	}
	return true
}

func (s *scope) policy(check func(impl.APIAccess, any) bool) bool {
	if api, ok := s.backend.api(); ok {
		return check(api, s.hostAccess)
	}
	return true
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
