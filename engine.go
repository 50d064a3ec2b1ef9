package polyglot

import (
	"io"
	"io/fs"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// EngineConfig configures an engine.
type EngineConfig struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	// Options are passed to the backend chain; a backend that does not know
	// an option declines the engine and the next link is asked.
	Options map[string]string

	// Transport intercepts message channels to out-of-process peers.
	Transport impl.MessageTransport

	// LogSink is a *zap.Logger, a zapcore.Core or an io.Writer.
	LogSink any

	// HostAccess is the default policy of the engine's contexts.
	HostAccess *HostAccess

	// Chain overrides the process chain installed with Install.
	Chain *impl.Chain

	// UseSystemProperties merges OptionsEnv under Options.
	UseSystemProperties      bool
	AllowExperimentalOptions bool

	// Bound limits the engine to a single context.
	Bound bool
}

// Engine is a handle to an engine built by the backend chain.
type Engine struct {
	ref     impl.EngineRef
	backend impl.Backend
	chain   *impl.Chain
}

// Install builds the process chain from backends. It can be called once.
func Install(backends ...impl.Backend) error {
	if err := bootstrap(); err != nil {
		return err
	}
	_, err := impl.Install(backends...)
	return err
}

// NewEngine builds an engine on the first backend of the chain that accepts
// cfg.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := bootstrap(); err != nil {
		return nil, err
	}
	chain := cfg.Chain
	if chain == nil {
		chain = impl.DefaultChain()
	}
	if err := register(chain.Capabilities()); err != nil {
		return nil, err
	}

	opts, err := mergeOptions(cfg.Options, cfg.UseSystemProperties)
	if err != nil {
		return nil, err
	}
	ref, b, err := chain.BuildEngine(&impl.EngineRequest{
		Out:                      cfg.Out,
		Err:                      cfg.Err,
		In:                       cfg.In,
		Transport:                cfg.Transport,
		LogSink:                  cfg.LogSink,
		HostAccess:               cfg.HostAccess.policy(),
		Options:                  opts,
		UseSystemProperties:      cfg.UseSystemProperties,
		AllowExperimentalOptions: cfg.AllowExperimentalOptions,
		Bound:                    cfg.Bound,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{ref: ref, backend: b, chain: chain}
	trackEngine(e)
	Logger().Debug("engine created",
		zap.String("backend", b.Name()),
		zap.String("implementation", e.ImplementationName()))
	return e, nil
}

// Chain returns the chain the engine was built from.
func (e *Engine) Chain() *impl.Chain { return e.chain }

// Backend returns the backend that built the engine.
func (e *Engine) Backend() impl.Backend { return e.backend }

func (e *Engine) Version() string { return e.ref.Dispatch.Version(e.ref.Receiver) }
func (e *Engine) ImplementationName() string {
	return e.ref.Dispatch.ImplementationName(e.ref.Receiver)
}

// Options lists the options the engine understands, by name.
func (e *Engine) Options() []OptionDescriptor {
	out := append([]OptionDescriptor(nil), e.ref.Dispatch.Options(e.ref.Receiver)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Languages returns the installed languages by id.
func (e *Engine) Languages() map[string]*Language {
	refs := e.ref.Dispatch.Languages(e.ref.Receiver)
	out := make(map[string]*Language, len(refs))
	for id, ref := range refs {
		out[id] = &Language{ref: ref}
	}
	return out
}

// Language returns the public language id.
func (e *Engine) Language(id string) (*Language, error) {
	ref, err := e.ref.Dispatch.RequirePublicLanguage(e.ref.Receiver, id)
	if err != nil {
		return nil, err
	}
	return &Language{ref: ref}, nil
}

// Instruments returns the installed instruments by id.
func (e *Engine) Instruments() map[string]*Instrument {
	refs := e.ref.Dispatch.Instruments(e.ref.Receiver)
	out := make(map[string]*Instrument, len(refs))
	for id, ref := range refs {
		out[id] = &Instrument{ref: ref}
	}
	return out
}

// Instrument returns the public instrument id.
func (e *Engine) Instrument(id string) (*Instrument, error) {
	ref, err := e.ref.Dispatch.RequirePublicInstrument(e.ref.Receiver, id)
	if err != nil {
		return nil, err
	}
	return &Instrument{ref: ref}, nil
}

// CachedSources returns the sources the engine keeps compiled.
func (e *Engine) CachedSources() []*Source {
	refs := e.ref.Dispatch.CachedSources(e.ref.Receiver)
	out := make([]*Source, len(refs))
	for i, ref := range refs {
		out[i] = &Source{ref: ref}
	}
	return out
}

// Close closes the engine and its contexts. With cancelIfExecuting running
// guest code is interrupted; otherwise closing fails while code runs.
func (e *Engine) Close(cancelIfExecuting bool) error {
	if err := e.ref.Dispatch.Close(e.ref.Receiver, cancelIfExecuting); err != nil {
		return err
	}
	untrackEngine(e)
	return nil
}

// BuildSource builds a source with the engine's chain.
func (e *Engine) BuildSource(cfg SourceConfig) (*Source, error) {
	return buildSource(e.chain, cfg)
}

// ContextConfig configures a context.
type ContextConfig struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	// HostAccess overrides the engine's policy.
	HostAccess     *HostAccess
	PolyglotAccess *PolyglotAccess
	ResourceLimits *ResourceLimits

	// Languages lists the permitted languages; empty permits all.
	Languages []string

	Options   map[string]string
	Arguments map[string][]string

	// Environment is added to the guest environment; with
	// InheritEnvironment the process environment is visible too.
	Environment        map[string]string
	InheritEnvironment bool

	ClassFilter      func(name string) bool
	FileSystem       fs.FS
	LogSink          any
	ProcessHandler   ProcessHandler
	TimeZone         *time.Location
	WorkingDirectory string
	HostLoader       any

	AllowNativeAccess        bool
	AllowCreateThread        bool
	AllowHostIO              bool
	AllowHostClassLoading    bool
	AllowExperimentalOptions bool
	AllowCreateProcess       bool
}

func (cfg *ContextConfig) request(handle *Context) *impl.ContextRequest {
	req := &impl.ContextRequest{
		Out:                      cfg.Out,
		Err:                      cfg.Err,
		In:                       cfg.In,
		HostAccess:               cfg.HostAccess.policy(),
		PolyglotAccess:           cfg.PolyglotAccess.policy(),
		ClassFilter:              cfg.ClassFilter,
		Options:                  cfg.Options,
		Arguments:                cfg.Arguments,
		FileSystem:               cfg.FileSystem,
		LogSink:                  cfg.LogSink,
		Environment:              cfg.Environment,
		TimeZone:                 cfg.TimeZone,
		ResourceLimits:           cfg.ResourceLimits.request(),
		HostLoader:               cfg.HostLoader,
		Handle:                   handle,
		WorkingDirectory:         cfg.WorkingDirectory,
		PermittedLanguages:       cfg.Languages,
		AllowNativeAccess:        cfg.AllowNativeAccess,
		AllowCreateThread:        cfg.AllowCreateThread,
		AllowHostIO:              cfg.AllowHostIO,
		AllowHostClassLoading:    cfg.AllowHostClassLoading,
		AllowExperimentalOptions: cfg.AllowExperimentalOptions,
		AllowCreateProcess:       cfg.AllowCreateProcess,
	}
	if cfg.ProcessHandler != nil {
		req.ProcessHandler = cfg.ProcessHandler
	}
	if cfg.InheritEnvironment {
		req.EnvironmentAccess = impl.EnvironmentInherit
	}
	return req
}

// NewContext creates a context on the engine. A failure leaves no context
// behind.
func (e *Engine) NewContext(cfg ContextConfig) (*Context, error) {
	c := &Context{engine: e}
	ref, err := e.ref.Dispatch.CreateContext(e.ref.Receiver, cfg.request(c))
	if err != nil {
		return nil, err
	}
	c.ref = ref
	return c, nil
}

// AttachExecutionListener attaches a listener to the engine's executions.
func (e *Engine) AttachExecutionListener(cfg ListenerConfig) (*ExecutionListener, error) {
	var mgmt impl.ManagementDispatch
	if e.backend != nil && e.backend.Supports(impl.Request{Op: impl.OpManagementDispatch}) {
		mgmt = e.backend.ManagementDispatch()
	}
	if mgmt == nil {
		return nil, errors.New(errors.PhaseEngine, errors.KindUnsupportedOperation).
			Path("AttachExecutionListener").
			Detail("backend %q has no execution listeners", e.backendName()).
			Build()
	}
	receiver, err := mgmt.AttachExecutionListener(e.ref.Receiver, cfg.request())
	if err != nil {
		return nil, err
	}
	return &ExecutionListener{mgmt: mgmt, receiver: receiver}, nil
}

func (e *Engine) backendName() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// Language is a handle to an installed language.
type Language struct {
	ref impl.LanguageRef
}

func (l *Language) ID() string   { return l.ref.Dispatch.ID(l.ref.Receiver) }
func (l *Language) Name() string { return l.ref.Dispatch.Name(l.ref.Receiver) }
func (l *Language) ImplementationName() string {
	return l.ref.Dispatch.ImplementationName(l.ref.Receiver)
}
func (l *Language) Version() string         { return l.ref.Dispatch.Version(l.ref.Receiver) }
func (l *Language) IsInteractive() bool     { return l.ref.Dispatch.IsInteractive(l.ref.Receiver) }
func (l *Language) MimeTypes() []string     { return l.ref.Dispatch.MimeTypes(l.ref.Receiver) }
func (l *Language) DefaultMimeType() string { return l.ref.Dispatch.DefaultMimeType(l.ref.Receiver) }

// Options lists the language's options.
func (l *Language) Options() []OptionDescriptor {
	return l.ref.Dispatch.Options(l.ref.Receiver)
}

// Instrument is a handle to an installed instrument.
type Instrument struct {
	ref impl.InstrumentRef
}

func (i *Instrument) ID() string                  { return i.ref.Dispatch.ID(i.ref.Receiver) }
func (i *Instrument) Name() string                { return i.ref.Dispatch.Name(i.ref.Receiver) }
func (i *Instrument) Version() string             { return i.ref.Dispatch.Version(i.ref.Receiver) }
func (i *Instrument) Options() []OptionDescriptor { return i.ref.Dispatch.Options(i.ref.Receiver) }

// LookupInstrument returns the service of type T the instrument exposes.
func LookupInstrument[T any](i *Instrument) (T, bool) {
	var zero T
	v, ok := i.ref.Dispatch.Lookup(i.ref.Receiver, reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
