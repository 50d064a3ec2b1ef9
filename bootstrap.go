package polyglot

import (
	stderrors "errors"
	"io"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/impl"
)

var (
	bootOnce sync.Once
	bootErr  error
)

// bootstrap registers the facade's providers with the process registry the
// first time the facade is used.
func bootstrap() error {
	bootOnce.Do(func() {
		bootErr = register(impl.DefaultCapabilities())
		if bootErr != nil {
			Logger().Error("facade bootstrap failed", zap.Error(bootErr))
		}
	})
	return bootErr
}

// register installs the API and management providers into caps and the I/O
// provider as its lazily loaded default. Repeating it is a no-op.
func register(caps *impl.Capabilities) error {
	if err := caps.Register(impl.CapabilityAPIAccess, apiAccess{}); err != nil {
		return err
	}
	if err := caps.Register(impl.CapabilityManagement, managementAccess{}); err != nil {
		return err
	}
	caps.SetDefault(impl.CapabilityIO, func() (any, error) {
		return ioAccess{}, nil
	})
	return nil
}

// apiAccess builds and takes apart facade handles for backends.
type apiAccess struct{}

func (apiAccess) NewEngine(ref impl.EngineRef) any { return &Engine{ref: ref} }

func (apiAccess) NewContext(ref impl.ContextRef, engine any) any {
	e, _ := engine.(*Engine)
	return &Context{ref: ref, engine: e}
}

func (apiAccess) NewLanguage(ref impl.LanguageRef) any     { return &Language{ref: ref} }
func (apiAccess) NewInstrument(ref impl.InstrumentRef) any { return &Instrument{ref: ref} }
func (apiAccess) NewValue(ref impl.ValueRef) any           { return newValue(ref) }
func (apiAccess) NewSource(ref impl.SourceRef) any         { return &Source{ref: ref} }
func (apiAccess) NewStackFrame(ref impl.StackFrameRef) any { return &StackFrame{ref: ref} }

func (apiAccess) NewSourceSection(source any, ref impl.SourceSectionRef) any {
	s, _ := source.(*Source)
	return &SourceSection{source: s, ref: ref}
}

func (apiAccess) NewLanguageException(message string, ref impl.ExceptionRef) error {
	return &Exception{message: message, ref: ref}
}

func (apiAccess) ValueRef(handle any) (impl.ValueRef, bool) {
	if v, ok := handle.(*Value); ok && v != nil {
		return v.ref, true
	}
	return impl.ValueRef{}, false
}

func (apiAccess) EngineRef(handle any) (impl.EngineRef, bool) {
	if e, ok := handle.(*Engine); ok && e != nil {
		return e.ref, true
	}
	return impl.EngineRef{}, false
}

func (apiAccess) ContextRef(handle any) (impl.ContextRef, bool) {
	if c, ok := handle.(*Context); ok && c != nil {
		return c.ref, true
	}
	return impl.ContextRef{}, false
}

func (apiAccess) SourceRef(handle any) (impl.SourceRef, bool) {
	if s, ok := handle.(*Source); ok && s != nil {
		return s.ref, true
	}
	return impl.SourceRef{}, false
}

func (apiAccess) ExceptionRef(err error) (impl.ExceptionRef, bool) {
	var ex *Exception
	if stderrors.As(err, &ex) {
		return ex.ref, true
	}
	return impl.ExceptionRef{}, false
}

func (apiAccess) AllowsPublicAccess(h any) bool { return hostAccessOf(h).AllowPublicAccess }

func (apiAccess) AllowsImplementation(h any, t reflect.Type) bool {
	return hostAccessOf(h).implementable(t)
}

func (apiAccess) IsArrayAccessible(h any) bool    { return hostAccessOf(h).AllowArrayAccess }
func (apiAccess) IsListAccessible(h any) bool     { return hostAccessOf(h).AllowListAccess }
func (apiAccess) IsBufferAccessible(h any) bool   { return hostAccessOf(h).AllowBufferAccess }
func (apiAccess) IsIterableAccessible(h any) bool { return hostAccessOf(h).AllowIterableAccess }
func (apiAccess) IsIteratorAccessible(h any) bool { return hostAccessOf(h).AllowIteratorAccess }
func (apiAccess) IsMapAccessible(h any) bool      { return hostAccessOf(h).AllowMapAccess }

func (apiAccess) EvalAccess(p any, language string) []string {
	return polyglotAccessOf(p).evalAccess(language)
}

func (apiAccess) BindingsAccess(p any) []string {
	return polyglotAccessOf(p).bindingsAccess()
}

func (apiAccess) ValidatePolyglotAccess(p any, languages []string) error {
	return polyglotAccessOf(p).validate(languages)
}

// managementAccess wraps backend events in facade events.
type managementAccess struct{}

func (managementAccess) NewExecutionEvent(ref impl.ExecutionEventRef) any {
	return &ExecutionEvent{ref: ref}
}

// ioAccess builds process commands and stream redirects.
type ioAccess struct{}

func (ioAccess) NewProcessCommand(cmd []string, dir string, env map[string]string, redirectErrorStream bool, in, out, errRedirect any) any {
	return &ProcessCommand{
		Command:             cmd,
		Dir:                 dir,
		Env:                 env,
		RedirectErrorStream: redirectErrorStream,
		Input:               redirectOf(in),
		Output:              redirectOf(out),
		Error:               redirectOf(errRedirect),
	}
}

func (ioAccess) RedirectToStream(w io.Writer) any { return RedirectStream(w) }

func (ioAccess) RedirectWriter(r any) (io.Writer, bool) {
	switch v := r.(type) {
	case Redirect:
		return v.Writer()
	case *Redirect:
		if v != nil {
			return v.Writer()
		}
	}
	return nil, false
}
