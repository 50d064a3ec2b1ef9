package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// event is one call of an exported function reported to listeners.
type event struct {
	name   string
	inputs []any
	ret    any
	hasRet bool
	err    error
	c      *execContext
}

type listener struct {
	engine *engine
	req    *impl.ListenerRequest

	// delegated is the listener attached to the delegate engine, if any.
	delegated any
}

// Exported function calls are roots and expressions.
func (l *listener) matches(ev *event) bool {
	r := l.req
	if !r.Roots && !r.Expressions {
		return false
	}
	return r.RootNameFilter == nil || r.RootNameFilter(ev.name)
}

type eventView struct {
	ev *event
	l  *listener
}

// listenerFactory installs a function listener on every exported function
// of the modules an engine compiles.
type listenerFactory struct{ e *engine }

func (f listenerFactory) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	names := def.ExportNames()
	if len(names) == 0 {
		return nil
	}
	return &functionListener{e: f.e, name: names[0]}
}

type functionListener struct {
	e    *engine
	name string
}

func (l *functionListener) active() bool {
	ls := l.e.listeners.Load()
	return ls != nil && len(*ls) > 0
}

func (l *functionListener) Before(ctx context.Context, _ api.Module, def api.FunctionDefinition, params []uint64, _ experimental.StackIterator) {
	if !l.active() {
		return
	}
	c, _ := contextOfCall(ctx)
	l.e.notify(&event{name: l.name, inputs: l.e.decode(def.ParamTypes(), params), c: c}, false)
}

func (l *functionListener) After(ctx context.Context, _ api.Module, def api.FunctionDefinition, results []uint64) {
	if !l.active() {
		return
	}
	c, _ := contextOfCall(ctx)
	ev := &event{name: l.name, c: c, hasRet: true}
	switch out := l.e.decode(def.ResultTypes(), results); len(out) {
	case 0:
	case 1:
		ev.ret = out[0]
	default:
		ev.ret = out
	}
	l.e.notify(ev, true)
}

func (l *functionListener) Abort(ctx context.Context, _ api.Module, _ api.FunctionDefinition, err error) {
	if !l.active() {
		return
	}
	c, _ := contextOfCall(ctx)
	interrupted := c != nil && c.interrupted.Load()
	l.e.notify(&event{name: l.name, c: c, err: l.e.backend.raise(classify(err, interrupted))}, true)
}

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

// AttachExecutionListener attaches to a wasm engine and to its delegate,
// so host executions of the same engine are reported too.
func (d managementDispatch) AttachExecutionListener(r any, req *impl.ListenerRequest) (any, error) {
	e, ok := r.(*engine)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", r)).
			Detail("not an engine of the wasm backend").
			Build()
	}
	if e.isClosed() {
		return nil, errors.Closed(errors.PhaseEngine, "engine")
	}
	l := &listener{engine: e, req: req}
	if del := e.delegate; del != nil && del.management != nil {
		h, err := del.management.AttachExecutionListener(del.engine.Receiver, req)
		if err != nil {
			return nil, err
		}
		l.delegated = h
	}
	for {
		cur := e.listeners.Load()
		var next []*listener
		if cur != nil {
			next = append(next, *cur...)
		}
		next = append(next, l)
		if e.listeners.CompareAndSwap(cur, &next) {
			break
		}
	}
	e.log.Debug("execution listener attached")
	return l, nil
}

func (d managementDispatch) CloseExecutionListener(r any) error {
	l := r.(*listener)
	e := l.engine
	for {
		cur := e.listeners.Load()
		if cur == nil {
			break
		}
		next := make([]*listener, 0, len(*cur))
		for _, x := range *cur {
			if x != l {
				next = append(next, x)
			}
		}
		if e.listeners.CompareAndSwap(cur, &next) {
			break
		}
	}
	if l.delegated != nil {
		return e.delegate.management.CloseExecutionListener(l.delegated)
	}
	return nil
}

func viewOf(r any) *eventView { return r.(*eventView) }

func (d managementDispatch) InputValues(r any) []impl.ValueRef {
	v := viewOf(r)
	if !v.l.req.CollectInputs || v.ev.c == nil {
		return nil
	}
	out := make([]impl.ValueRef, 0, len(v.ev.inputs))
	for _, in := range v.ev.inputs {
		ref, err := v.ev.c.toValue(in)
		if err != nil {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func (d managementDispatch) ReturnValue(r any) (impl.ValueRef, bool) {
	v := viewOf(r)
	if !v.l.req.CollectReturn || !v.ev.hasRet || v.ev.c == nil {
		return impl.ValueRef{}, false
	}
	ref, err := v.ev.c.toValue(v.ev.ret)
	return ref, err == nil
}

func (d managementDispatch) Exception(r any) (error, bool) {
	v := viewOf(r)
	if !v.l.req.CollectErrors || v.ev.err == nil {
		return nil, false
	}
	return v.ev.err, true
}

func (managementDispatch) Location(any) (impl.SourceSectionRef, bool) {
	return impl.SourceSectionRef{}, false
}

func (managementDispatch) RootName(r any) string { return viewOf(r).ev.name }
func (managementDispatch) IsExpression(any) bool { return true }
func (managementDispatch) IsStatement(any) bool  { return false }
func (managementDispatch) IsRoot(any) bool       { return true }
