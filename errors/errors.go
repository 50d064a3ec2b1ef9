package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // capability registration, chain install
	PhaseResolve   Phase = "resolve"   // backend chain resolution
	PhaseEngine    Phase = "engine"    // engine construction and use
	PhaseContext   Phase = "context"   // context construction and use
	PhaseDispatch  Phase = "dispatch"  // value and handle operations
	PhaseSource    Phase = "source"    // source building and lookup
	PhaseConvert   Phase = "convert"   // native conversion boundary
	PhaseRuntime   Phase = "runtime"   // guest execution
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateCapability   Kind = "duplicate_capability"
	KindCapabilityUnavailable Kind = "capability_unavailable"
	KindNoCompatibleBackend   Kind = "no_compatible_backend"
	KindUnsupportedOperation  Kind = "unsupported_operation"
	KindBufferNotWritable     Kind = "buffer_not_writable"
	KindUnsupportedType       Kind = "unsupported_type"
	KindOutOfBounds           Kind = "out_of_bounds"
	KindOverflow              Kind = "overflow"
	KindNotFound              Kind = "not_found"
	KindInvalidInput          Kind = "invalid_input"
	KindRegistration          Kind = "registration"
	KindClosed                Kind = "closed"
	KindGuest                 Kind = "guest"
)

// Sentinels for errors.Is. An empty Phase matches every phase.
var (
	ErrDuplicateCapability   = &Error{Kind: KindDuplicateCapability}
	ErrCapabilityUnavailable = &Error{Kind: KindCapabilityUnavailable}
	ErrNoCompatibleBackend   = &Error{Kind: KindNoCompatibleBackend}
	ErrUnsupportedOperation  = &Error{Kind: KindUnsupportedOperation}
	ErrBufferNotWritable     = &Error{Kind: KindBufferNotWritable}
	ErrUnsupportedType       = &Error{Kind: KindUnsupportedType}
	ErrOutOfBounds           = &Error{Kind: KindOutOfBounds}
	ErrOverflow              = &Error{Kind: KindOverflow}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrClosed                = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	Descriptor string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.Descriptor != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.Descriptor != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", descriptor ")
			b.WriteString(e.Descriptor)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("descriptor ")
			b.WriteString(e.Descriptor)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Descriptor != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Kinds must be equal; phases must be equal unless the target leaves it empty.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Descriptor sets the native type descriptor name
func (b *Builder) Descriptor(d string) *Builder {
	b.err.Descriptor = d
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the failures reported by the layer

// DuplicateCapability reports a second registration of a different concrete
// provider type for a singleton capability.
func DuplicateCapability(capability, registered, attempted string) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindDuplicateCapability,
		Path:   []string{capability},
		GoType: attempted,
		Detail: fmt.Sprintf("only one implementation allowed, %s already registered", registered),
	}
}

// CapabilityUnavailable reports that the lazily loaded default provider
// could not be initialized.
func CapabilityUnavailable(capability string, cause error) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindCapabilityUnavailable,
		Path:   []string{capability},
		Detail: "default provider could not be initialized",
		Cause:  cause,
	}
}

// NoCompatibleBackend reports that no backend in the chain accepted op.
func NoCompatibleBackend(op string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNoCompatibleBackend,
		Detail: fmt.Sprintf("no backend in the chain supports %s", op),
	}
}

// UnsupportedOperation reports a capability operation invoked on a value
// whose paired capability query is false.
func UnsupportedOperation(op string, value any) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnsupportedOperation,
		Path:   []string{op},
		GoType: fmt.Sprintf("%T", value),
		Value:  value,
		Detail: fmt.Sprintf("unsupported operation %s for %v", op, value),
	}
}

// BufferNotWritable reports a write on a read-only buffer view.
func BufferNotWritable(value any) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindBufferNotWritable,
		GoType: fmt.Sprintf("%T", value),
		Value:  value,
		Detail: "buffer is not writable",
	}
}

// UnsupportedType reports a value that has no form for descriptor.
func UnsupportedType(value any, descriptor string) *Error {
	return &Error{
		Phase:      PhaseConvert,
		Kind:       KindUnsupportedType,
		GoType:     fmt.Sprintf("%T", value),
		Descriptor: descriptor,
		Value:      value,
		Detail:     fmt.Sprintf("cannot convert %v", value),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Descriptor: target,
		Detail:     fmt.Sprintf("value %v overflows %s", value, target),
		Value:      value,
	}
}

// NotFound creates a lookup failure error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a closed engine or context.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
