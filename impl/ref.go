package impl

// Ref pairs a dispatch table with the opaque backend receiver it operates on.
// It is how handles cross the facade/backend boundary.
type Ref[D any] struct {
	Dispatch D
	Receiver any
}

type (
	EngineRef         = Ref[EngineDispatch]
	ContextRef        = Ref[ContextDispatch]
	LanguageRef       = Ref[LanguageDispatch]
	InstrumentRef     = Ref[InstrumentDispatch]
	ValueRef          = Ref[ValueDispatch]
	SourceRef         = Ref[SourceDispatch]
	SourceSectionRef  = Ref[SourceSectionDispatch]
	ExceptionRef      = Ref[ExceptionDispatch]
	StackFrameRef     = Ref[StackFrameDispatch]
	ExecutionEventRef = Ref[ManagementDispatch]
)
