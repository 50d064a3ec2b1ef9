package impl

// ExceptionDispatch is the operation contract of a guest or host exception
// surfaced to the embedder.
type ExceptionDispatch interface {
	Message(receiver any) string
	IsInternalError(receiver any) bool
	IsCancelled(receiver any) bool
	IsInterrupted(receiver any) bool
	IsExit(receiver any) bool
	ExitStatus(receiver any) int
	IsSyntaxError(receiver any) bool
	IsIncompleteSource(receiver any) bool
	IsResourceExhausted(receiver any) bool
	IsHostException(receiver any) bool
	// HostError returns the original host error of a host exception.
	HostError(receiver any) error
	GuestObject(receiver any) (ValueRef, bool)
	SourceLocation(receiver any) (SourceSectionRef, bool)
	StackTrace(receiver any) []StackFrameRef
}

// StackFrameDispatch is the operation contract of one polyglot stack frame.
type StackFrameDispatch interface {
	RootName(receiver any) string
	Language(receiver any) (LanguageRef, bool)
	SourceLocation(receiver any) (SourceSectionRef, bool)
	IsHostFrame(receiver any) bool
	String(receiver any) string
}

// HostAccessDispatch is the engine's bridge to host (Go) values.
type HostAccessDispatch interface {
	// CreateHostContext builds the per-context host state for a policy.
	CreateHostContext(hostAccess any, loader any) (any, error)
	// ToValue wraps a Go value as a guest-visible value.
	ToValue(hostContext any, value any) (ValueRef, error)
	IsHostValue(value any) bool
	// HostValue unwraps a value created by ToValue.
	HostValue(value any) (any, bool)
	IsHostException(err error) bool
	HostException(err error) (error, bool)
}
