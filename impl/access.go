package impl

import (
	"io"
	"reflect"
)

// APIAccess is the facade's constructor and policy bridge. Backends use it
// to turn (dispatch, receiver) pairs into embedder-visible handles, to take
// handles apart again, and to read host/polyglot access policies whose
// concrete types live in the facade.
//
// Exactly one implementation may exist per process.
type APIAccess interface {
	NewEngine(ref EngineRef) any
	NewContext(ref ContextRef, engine any) any
	NewLanguage(ref LanguageRef) any
	NewInstrument(ref InstrumentRef) any
	NewValue(ref ValueRef) any
	NewSource(ref SourceRef) any
	NewSourceSection(source any, ref SourceSectionRef) any
	NewStackFrame(ref StackFrameRef) any
	// NewLanguageException returns the facade error carrying ref.
	NewLanguageException(message string, ref ExceptionRef) error

	ValueRef(handle any) (ValueRef, bool)
	EngineRef(handle any) (EngineRef, bool)
	ContextRef(handle any) (ContextRef, bool)
	SourceRef(handle any) (SourceRef, bool)
	ExceptionRef(err error) (ExceptionRef, bool)

	AllowsPublicAccess(hostAccess any) bool
	AllowsImplementation(hostAccess any, t reflect.Type) bool
	IsArrayAccessible(hostAccess any) bool
	IsListAccessible(hostAccess any) bool
	IsBufferAccessible(hostAccess any) bool
	IsIterableAccessible(hostAccess any) bool
	IsIteratorAccessible(hostAccess any) bool
	IsMapAccessible(hostAccess any) bool

	// EvalAccess lists the languages language may evaluate code of.
	EvalAccess(polyglotAccess any, language string) []string
	// BindingsAccess lists the languages allowed to use polyglot bindings.
	BindingsAccess(polyglotAccess any) []string
	// ValidatePolyglotAccess checks the policy against the languages the
	// context permits.
	ValidatePolyglotAccess(polyglotAccess any, languages []string) error
}

// ManagementAccess builds facade execution events.
// Exactly one implementation may exist per process.
type ManagementAccess interface {
	NewExecutionEvent(ref ExecutionEventRef) any
}

// IOAccess is the I/O-policy bridge: process commands and stream redirects.
// Exactly one implementation may exist per process.
type IOAccess interface {
	NewProcessCommand(cmd []string, dir string, env map[string]string, redirectErrorStream bool, in, out, errRedirect any) any
	// RedirectToStream returns a redirect that sends output to w.
	RedirectToStream(w io.Writer) any
	// RedirectWriter returns the stream a redirect writes to, if any.
	RedirectWriter(redirect any) (io.Writer, bool)
}
