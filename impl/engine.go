package impl

import (
	"reflect"
	"time"
)

// EngineDispatch is the operation contract of an engine.
type EngineDispatch interface {
	RequirePublicLanguage(receiver any, id string) (LanguageRef, error)
	RequirePublicInstrument(receiver any, id string) (InstrumentRef, error)
	Close(receiver any, cancelIfExecuting bool) error
	Instruments(receiver any) map[string]InstrumentRef
	Languages(receiver any) map[string]LanguageRef
	Options(receiver any) []OptionDescriptor
	CreateContext(receiver any, req *ContextRequest) (ContextRef, error)
	ImplementationName(receiver any) string
	CachedSources(receiver any) []SourceRef
	Version(receiver any) string
}

// ContextDispatch is the operation contract of a context.
type ContextDispatch interface {
	InitializeLanguage(receiver any, languageID string) (bool, error)
	Eval(receiver any, language string, source SourceRef) (ValueRef, error)
	Parse(receiver any, language string, source SourceRef) (ValueRef, error)
	Close(receiver any, cancelIfExecuting bool) error
	// Interrupt stops running guest code and reports whether it stopped
	// within timeout. A zero timeout waits indefinitely.
	Interrupt(receiver any, timeout time.Duration) (bool, error)
	AsValue(receiver any, hostValue any) (ValueRef, error)
	Enter(receiver any) error
	Leave(receiver any) error
	Bindings(receiver any, language string) (ValueRef, error)
	PolyglotBindings(receiver any) (ValueRef, error)
	ResetLimits(receiver any) error
	Safepoint(receiver any) error
}

// LanguageDispatch is the operation contract of an installed language.
type LanguageDispatch interface {
	ID(receiver any) string
	Name(receiver any) string
	ImplementationName(receiver any) string
	IsInteractive(receiver any) bool
	Version(receiver any) string
	Options(receiver any) []OptionDescriptor
	MimeTypes(receiver any) []string
	DefaultMimeType(receiver any) string
}

// InstrumentDispatch is the operation contract of an installed instrument.
type InstrumentDispatch interface {
	ID(receiver any) string
	Name(receiver any) string
	Options(receiver any) []OptionDescriptor
	Version(receiver any) string
	// Lookup returns the service of type t the instrument exposes.
	Lookup(receiver any, t reflect.Type) (any, bool)
}
