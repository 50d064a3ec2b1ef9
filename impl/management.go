package impl

// ListenerRequest describes an execution listener to attach to an engine.
// Callbacks receive facade execution events built through ManagementAccess.
type ListenerRequest struct {
	OnEnter  func(event any)
	OnReturn func(event any)

	// RootNameFilter selects roots by name; nil selects all.
	RootNameFilter func(name string) bool

	Expressions   bool
	Statements    bool
	Roots         bool
	CollectInputs bool
	CollectReturn bool
	CollectErrors bool
}

// ManagementDispatch is the operation contract of execution listeners and
// their events.
type ManagementDispatch interface {
	// AttachExecutionListener attaches to the engine receiver and returns the
	// listener receiver.
	AttachExecutionListener(engine any, req *ListenerRequest) (any, error)
	CloseExecutionListener(listener any) error

	InputValues(event any) []ValueRef
	ReturnValue(event any) (ValueRef, bool)
	Exception(event any) (error, bool)
	Location(event any) (SourceSectionRef, bool)
	RootName(event any) string
	IsExpression(event any) bool
	IsStatement(event any) bool
	IsRoot(event any) bool
}
