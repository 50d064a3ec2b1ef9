package polyglot

import (
	"github.com/wippyai/polyglot/impl"
)

// ListenerConfig selects the executions a listener observes and what their
// events carry.
type ListenerConfig struct {
	OnEnter  func(*ExecutionEvent)
	OnReturn func(*ExecutionEvent)

	// RootNameFilter selects roots by name; nil selects all.
	RootNameFilter func(name string) bool

	Expressions bool
	Statements  bool
	Roots       bool

	CollectInputs bool
	CollectReturn bool
	CollectErrors bool
}

func (cfg *ListenerConfig) request() *impl.ListenerRequest {
	req := &impl.ListenerRequest{
		RootNameFilter: cfg.RootNameFilter,
		Expressions:    cfg.Expressions,
		Statements:     cfg.Statements,
		Roots:          cfg.Roots,
		CollectInputs:  cfg.CollectInputs,
		CollectReturn:  cfg.CollectReturn,
		CollectErrors:  cfg.CollectErrors,
	}
	if f := cfg.OnEnter; f != nil {
		req.OnEnter = func(ev any) { deliver(f, ev) }
	}
	if f := cfg.OnReturn; f != nil {
		req.OnReturn = func(ev any) { deliver(f, ev) }
	}
	return req
}

func deliver(f func(*ExecutionEvent), ev any) {
	if e, ok := ev.(*ExecutionEvent); ok {
		f(e)
	}
}

// ExecutionListener is an attached listener. Close detaches it.
type ExecutionListener struct {
	mgmt     impl.ManagementDispatch
	receiver any
}

func (l *ExecutionListener) Close() error {
	return l.mgmt.CloseExecutionListener(l.receiver)
}

// ExecutionEvent is one enter or return of an observed execution. Its
// accessors are valid only inside the callback that received it.
type ExecutionEvent struct {
	ref impl.ExecutionEventRef
}

func (e *ExecutionEvent) RootName() string   { return e.ref.Dispatch.RootName(e.ref.Receiver) }
func (e *ExecutionEvent) IsExpression() bool { return e.ref.Dispatch.IsExpression(e.ref.Receiver) }
func (e *ExecutionEvent) IsStatement() bool  { return e.ref.Dispatch.IsStatement(e.ref.Receiver) }
func (e *ExecutionEvent) IsRoot() bool       { return e.ref.Dispatch.IsRoot(e.ref.Receiver) }

// InputValues returns the arguments, when the listener collects inputs.
func (e *ExecutionEvent) InputValues() []*Value {
	refs := e.ref.Dispatch.InputValues(e.ref.Receiver)
	out := make([]*Value, len(refs))
	for i, ref := range refs {
		out[i] = newValue(ref)
	}
	return out
}

// ReturnValue returns the result of a returning execution, when the
// listener collects it.
func (e *ExecutionEvent) ReturnValue() (*Value, bool) {
	ref, ok := e.ref.Dispatch.ReturnValue(e.ref.Receiver)
	if !ok {
		return nil, false
	}
	return newValue(ref), true
}

// Exception returns the error an execution failed with, when the listener
// collects errors.
func (e *ExecutionEvent) Exception() (error, bool) {
	return e.ref.Dispatch.Exception(e.ref.Receiver)
}

func (e *ExecutionEvent) Location() (*SourceSection, bool) {
	return newSection(e.ref.Dispatch.Location(e.ref.Receiver))
}
