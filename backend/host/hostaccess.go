package host

import (
	"github.com/wippyai/polyglot/impl"
)

type hostAccessDispatch struct{ b *Backend }

func (d hostAccessDispatch) CreateHostContext(hostAccess any, loader any) (any, error) {
	return &scope{backend: d.b, hostAccess: hostAccess, loader: loader}, nil
}

func (d hostAccessDispatch) ToValue(hostContext any, v any) (impl.ValueRef, error) {
	s, ok := hostContext.(*scope)
	if !ok {
		s = &scope{backend: d.b}
	}
	if api, ok := d.b.api(); ok {
		if ref, ok := api.ValueRef(v); ok {
			return ref, nil
		}
	}
	return s.wrap(v), nil
}

// receiver accepts either a value receiver or a facade value handle.
func (d hostAccessDispatch) receiver(v any) (*value, bool) {
	if r, ok := v.(*value); ok {
		return r, true
	}
	if api, ok := d.b.api(); ok {
		if ref, ok := api.ValueRef(v); ok {
			r, ok := ref.Receiver.(*value)
			return r, ok
		}
	}
	return nil, false
}

func (d hostAccessDispatch) IsHostValue(v any) bool {
	_, ok := d.receiver(v)
	return ok
}

func (d hostAccessDispatch) HostValue(v any) (any, bool) {
	r, ok := d.receiver(v)
	if !ok {
		return nil, false
	}
	return r.v, true
}

func (d hostAccessDispatch) IsHostException(err error) bool {
	g, ok := d.b.guestErrorOf(err)
	return ok && g.kind&excHost != 0
}

func (d hostAccessDispatch) HostException(err error) (error, bool) {
	g, ok := d.b.guestErrorOf(err)
	if !ok || g.kind&excHost == 0 {
		return nil, false
	}
	return g.hostErr, true
}
