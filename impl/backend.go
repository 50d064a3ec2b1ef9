package impl

import (
	"io"
	"io/fs"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Operation names a request a backend may be asked to serve.
type Operation string

const (
	OpBuildEngine           Operation = "build-engine"
	OpPreInitialize         Operation = "pre-initialize"
	OpSourceDispatch        Operation = "source-dispatch"
	OpSourceSectionDispatch Operation = "source-section-dispatch"
	OpManagementDispatch    Operation = "management-dispatch"
	OpHostAccess            Operation = "host-access"
)

// Request is what a backend is asked about before it is asked to perform.
type Request struct {
	Options map[string]string
	Op      Operation
}

// Backend is one link of the implementation chain. A backend is asked
// Supports before any other method for an operation; the chain never calls
// an operation on a backend that declined it.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Priority orders the chain; lower values are asked first.
	Priority() int

	// Initialize is called once when the chain is built.
	Initialize(env *Env) error

	// Supports reports whether the backend can serve req.
	Supports(req Request) bool

	BuildEngine(req *EngineRequest) (EngineRef, error)

	// PreInitializeEngine performs ahead-of-time warmup whose state a later
	// BuildEngine either adopts or discards.
	PreInitializeEngine() error

	// ResetPreInitializedEngine discards warmup state.
	ResetPreInitializedEngine() error

	SourceDispatch() SourceDispatch
	SourceSectionDispatch() SourceSectionDispatch
	ManagementDispatch() ManagementDispatch
	HostAccess() HostAccessDispatch
}

// LanguageDetector is implemented by backends that can tell the language of
// a source from its MIME type or from a file's name and leading bytes.
type LanguageDetector interface {
	LanguageOfMimeType(mimeType string) (string, bool)
	DetectMimeType(path string, head []byte) (string, bool)
}

// Env is handed to every backend when the chain is built.
type Env struct {
	Chain        *Chain
	Capabilities *Capabilities
}

// API returns the API-access provider.
func (e *Env) API() (APIAccess, error) {
	return e.Capabilities.API()
}

// Management returns the management provider.
func (e *Env) Management() (ManagementAccess, error) {
	return e.Capabilities.Management()
}

// IO returns the I/O-policy provider, loading the default on first use.
func (e *Env) IO() (IOAccess, error) {
	return e.Capabilities.IO()
}

// MessageEndpoint is one side of an out-of-process message channel.
type MessageEndpoint interface {
	SendText(text string) error
	SendBinary(data []byte) error
	SendPing(data []byte) error
	SendPong(data []byte) error
	SendClose() error
}

// MessageTransport intercepts message channels an engine would open to
// out-of-process peers. Returning (nil, nil) lets the engine open the
// channel itself.
type MessageTransport interface {
	Open(uri *url.URL, peer MessageEndpoint) (MessageEndpoint, error)
}

// OptionDescriptor describes one option a backend understands.
type OptionDescriptor struct {
	Name         string
	Help         string
	Default      string
	Experimental bool
}

// EngineRequest carries everything an embedder supplies to build an engine.
type EngineRequest struct {
	Out        io.Writer
	Err        io.Writer
	In         io.Reader
	Transport  MessageTransport
	LogSink    any
	HostAccess any
	Options    map[string]string

	// Log is built by the chain from LogSink before the request reaches a
	// backend.
	Log *zap.Logger

	UseSystemProperties      bool
	AllowExperimentalOptions bool
	Bound                    bool
}

// EnvironmentAccess controls which process environment a context sees.
type EnvironmentAccess uint8

const (
	EnvironmentNone EnvironmentAccess = iota
	EnvironmentInherit
)

// ResourceLimits bounds guest execution per context.
type ResourceLimits struct {
	// SourceFilter selects the sources whose executions are counted; nil
	// counts all.
	SourceFilter func(source any) bool

	// OnLimit is called once when the limit is exceeded.
	OnLimit func(context any)

	// StatementLimit is the number of executions allowed; 0 disables.
	StatementLimit int64
}

// ContextRequest carries everything an embedder supplies to build a context.
type ContextRequest struct {
	Out            io.Writer
	Err            io.Writer
	In             io.Reader
	HostAccess     any
	PolyglotAccess any
	ClassFilter    func(name string) bool
	Options        map[string]string
	Arguments      map[string][]string
	FileSystem     fs.FS
	LogSink        any
	ProcessHandler any
	Environment    map[string]string
	TimeZone       *time.Location
	ResourceLimits *ResourceLimits
	HostLoader     any

	// Handle is the facade context being built; backends pass it to
	// callbacks that expect the embedder's context.
	Handle any

	WorkingDirectory   string
	PermittedLanguages []string

	EnvironmentAccess EnvironmentAccess

	AllowNativeAccess        bool
	AllowCreateThread        bool
	AllowHostIO              bool
	AllowHostClassLoading    bool
	AllowExperimentalOptions bool
	AllowCreateProcess       bool
}

// LanguagePermitted reports whether id is in the permitted list; an empty
// list permits every language.
func (r *ContextRequest) LanguagePermitted(id string) bool {
	if len(r.PermittedLanguages) == 0 {
		return true
	}
	for _, l := range r.PermittedLanguages {
		if l == id {
			return true
		}
	}
	return false
}
