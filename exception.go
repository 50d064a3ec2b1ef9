package polyglot

import (
	"github.com/wippyai/polyglot/impl"
)

// Exception is an error raised by guest code, or a host error that crossed
// guest code.
type Exception struct {
	message string
	ref     impl.ExceptionRef
}

func (e *Exception) Error() string { return e.message }

// Unwrap returns the host error of a host exception, else the backend's own
// error.
func (e *Exception) Unwrap() error {
	if e.IsHostException() {
		return e.HostError()
	}
	if err, ok := e.ref.Receiver.(error); ok {
		return err
	}
	return nil
}

func (e *Exception) Message() string       { return e.ref.Dispatch.Message(e.ref.Receiver) }
func (e *Exception) IsInternalError() bool { return e.ref.Dispatch.IsInternalError(e.ref.Receiver) }
func (e *Exception) IsCancelled() bool     { return e.ref.Dispatch.IsCancelled(e.ref.Receiver) }
func (e *Exception) IsInterrupted() bool   { return e.ref.Dispatch.IsInterrupted(e.ref.Receiver) }
func (e *Exception) IsExit() bool          { return e.ref.Dispatch.IsExit(e.ref.Receiver) }
func (e *Exception) ExitStatus() int       { return e.ref.Dispatch.ExitStatus(e.ref.Receiver) }
func (e *Exception) IsSyntaxError() bool   { return e.ref.Dispatch.IsSyntaxError(e.ref.Receiver) }
func (e *Exception) IsIncompleteSource() bool {
	return e.ref.Dispatch.IsIncompleteSource(e.ref.Receiver)
}
func (e *Exception) IsResourceExhausted() bool {
	return e.ref.Dispatch.IsResourceExhausted(e.ref.Receiver)
}
func (e *Exception) IsHostException() bool { return e.ref.Dispatch.IsHostException(e.ref.Receiver) }
func (e *Exception) HostError() error      { return e.ref.Dispatch.HostError(e.ref.Receiver) }

// GuestObject returns the guest value that was thrown, if any.
func (e *Exception) GuestObject() (*Value, bool) {
	ref, ok := e.ref.Dispatch.GuestObject(e.ref.Receiver)
	if !ok {
		return nil, false
	}
	return newValue(ref), true
}

func (e *Exception) SourceLocation() (*SourceSection, bool) {
	return newSection(e.ref.Dispatch.SourceLocation(e.ref.Receiver))
}

// StackTrace returns the polyglot stack, innermost frame first.
func (e *Exception) StackTrace() []*StackFrame {
	refs := e.ref.Dispatch.StackTrace(e.ref.Receiver)
	out := make([]*StackFrame, len(refs))
	for i, ref := range refs {
		out[i] = &StackFrame{ref: ref}
	}
	return out
}

// StackFrame is one frame of a polyglot stack trace.
type StackFrame struct {
	ref impl.StackFrameRef
}

func (f *StackFrame) RootName() string  { return f.ref.Dispatch.RootName(f.ref.Receiver) }
func (f *StackFrame) IsHostFrame() bool { return f.ref.Dispatch.IsHostFrame(f.ref.Receiver) }
func (f *StackFrame) String() string    { return f.ref.Dispatch.String(f.ref.Receiver) }

func (f *StackFrame) Language() (*Language, bool) {
	ref, ok := f.ref.Dispatch.Language(f.ref.Receiver)
	if !ok {
		return nil, false
	}
	return &Language{ref: ref}, true
}

func (f *StackFrame) SourceLocation() (*SourceSection, bool) {
	return newSection(f.ref.Dispatch.SourceLocation(f.ref.Receiver))
}
