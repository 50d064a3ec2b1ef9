package host

import (
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// event is one execution step reported to listeners.
type event struct {
	name       string
	root       bool
	statement  bool
	expression bool

	inputs []any
	ret    any
	hasRet bool
	err    error

	location *section
	scope    *scope
}

type listener struct {
	engine *engine
	req    *impl.ListenerRequest
}

func (l *listener) matches(ev *event) bool {
	r := l.req
	if !(r.Roots && ev.root || r.Statements && ev.statement || r.Expressions && ev.expression) {
		return false
	}
	return r.RootNameFilter == nil || r.RootNameFilter(ev.name)
}

// eventView is the receiver listeners see: an event filtered by what the
// listener collects.
type eventView struct {
	ev *event
	l  *listener
}

func (e *engine) enter(ev *event) { e.notify(ev, false) }
func (e *engine) exit(ev *event)  { e.notify(ev, true) }

func (e *engine) notify(ev *event, exit bool) {
	ls := e.listeners.Load()
	if ls == nil || len(*ls) == 0 || e.backend.env == nil {
		return
	}
	mgmt, err := e.backend.env.Management()
	if err != nil {
		e.log.Debug("execution events unavailable", zap.Error(err))
		return
	}
	for _, l := range *ls {
		cb := l.req.OnEnter
		if exit {
			cb = l.req.OnReturn
		}
		if cb == nil || !l.matches(ev) {
			continue
		}
		cb(mgmt.NewExecutionEvent(impl.ExecutionEventRef{
			Dispatch: e.backend.management,
			Receiver: &eventView{ev: ev, l: l},
		}))
	}
}

type managementDispatch struct{ b *Backend }

func (d managementDispatch) AttachExecutionListener(r any, req *impl.ListenerRequest) (any, error) {
	e, ok := r.(*engine)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseEngine, "listener must attach to a host engine")
	}
	if req == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "listener request is nil")
	}
	if e.isClosed() {
		return nil, errors.Closed(errors.PhaseEngine, "engine")
	}
	l := &listener{engine: e, req: req}
	for {
		old := e.listeners.Load()
		var next []*listener
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, l)
		if e.listeners.CompareAndSwap(old, &next) {
			return l, nil
		}
	}
}

func (d managementDispatch) CloseExecutionListener(r any) error {
	l, ok := r.(*listener)
	if !ok {
		return errors.InvalidInput(errors.PhaseEngine, "not a host listener")
	}
	e := l.engine
	for {
		old := e.listeners.Load()
		if old == nil {
			return nil
		}
		next := make([]*listener, 0, len(*old))
		for _, x := range *old {
			if x != l {
				next = append(next, x)
			}
		}
		if e.listeners.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

func viewOf(r any) *eventView { return r.(*eventView) }

func (d managementDispatch) InputValues(r any) []impl.ValueRef {
	v := viewOf(r)
	if !v.l.req.CollectInputs || v.ev.inputs == nil {
		return nil
	}
	out := make([]impl.ValueRef, len(v.ev.inputs))
	for i, in := range v.ev.inputs {
		out[i] = v.ev.scope.wrap(in)
	}
	return out
}

func (d managementDispatch) ReturnValue(r any) (impl.ValueRef, bool) {
	v := viewOf(r)
	if !v.l.req.CollectReturn || !v.ev.hasRet {
		return impl.ValueRef{}, false
	}
	return v.ev.scope.wrap(v.ev.ret), true
}

func (d managementDispatch) Exception(r any) (error, bool) {
	v := viewOf(r)
	if !v.l.req.CollectErrors || v.ev.err == nil {
		return nil, false
	}
	return v.ev.err, true
}

func (d managementDispatch) Location(r any) (impl.SourceSectionRef, bool) {
	v := viewOf(r)
	if v.ev.location == nil {
		return impl.SourceSectionRef{}, false
	}
	return impl.SourceSectionRef{Dispatch: d.b.sections, Receiver: v.ev.location}, true
}

func (managementDispatch) RootName(r any) string   { return viewOf(r).ev.name }
func (managementDispatch) IsExpression(r any) bool { return viewOf(r).ev.expression }
func (managementDispatch) IsStatement(r any) bool  { return viewOf(r).ev.statement }
func (managementDispatch) IsRoot(r any) bool       { return viewOf(r).ev.root }
