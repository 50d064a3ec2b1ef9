package wasm

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/convert"
	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// delegate is the engine of the next link. It serves every language other
// than wasm.
type delegate struct {
	engine     impl.EngineRef
	management impl.ManagementDispatch
}

type engine struct {
	id      uuid.UUID
	backend *Backend
	log     *zap.Logger
	opts    options

	runtime    wazero.Runtime
	cache      *sharedCache
	boundary   *convert.Boundary
	hostAccess impl.HostAccessDispatch
	policy     any
	delegate   *delegate

	out    io.Writer
	errOut io.Writer
	in     io.Reader
	bound  bool

	listeners atomic.Pointer[[]*listener]

	mu       sync.Mutex
	contexts map[*execContext]struct{}
	cached   []impl.SourceRef
	closed   bool
}

func newEngine(b *Backend, req *impl.EngineRequest, opts options, rt wazero.Runtime, ha impl.HostAccessDispatch, del *delegate) *engine {
	id := uuid.New()
	log := req.Log
	if log == nil {
		log = Logger()
	}
	return &engine{
		id:         id,
		backend:    b,
		log:        log.With(zap.String("engine", id.String()), zap.String("backend", Name)),
		opts:       opts,
		runtime:    rt,
		boundary:   convert.NewBoundary(),
		hostAccess: ha,
		policy:     req.HostAccess,
		delegate:   del,
		out:        req.Out,
		errOut:     req.Err,
		in:         req.In,
		bound:      req.Bound,
		contexts:   make(map[*execContext]struct{}),
	}
}

func (e *engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *engine) cacheSource(src impl.SourceRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cached {
		if c.Dispatch == src.Dispatch && c.Dispatch.Equal(c.Receiver, src.Receiver) {
			return
		}
	}
	e.cached = append(e.cached, src)
}

// language reports whether id is served by this engine, and by whom.
func (e *engine) language(id string) (own bool, ok bool) {
	if id == wasmLanguageID {
		return true, true
	}
	if e.delegate == nil {
		return false, false
	}
	d := e.delegate.engine
	_, ok = d.Dispatch.Languages(d.Receiver)[id]
	return false, ok
}

type engineDispatch struct{ b *Backend }

func engineOf(r any) *engine { return r.(*engine) }

func (d engineDispatch) RequirePublicLanguage(r any, id string) (impl.LanguageRef, error) {
	e := engineOf(r)
	if id == wasmLanguageID {
		return impl.LanguageRef{Dispatch: d.b.languages, Receiver: wasmLanguage}, nil
	}
	if e.delegate != nil {
		return e.delegate.engine.Dispatch.RequirePublicLanguage(e.delegate.engine.Receiver, id)
	}
	return impl.LanguageRef{}, notInstalled("language", id)
}

func (d engineDispatch) RequirePublicInstrument(r any, id string) (impl.InstrumentRef, error) {
	e := engineOf(r)
	if e.delegate != nil {
		return e.delegate.engine.Dispatch.RequirePublicInstrument(e.delegate.engine.Receiver, id)
	}
	return impl.InstrumentRef{}, notInstalled("instrument", id)
}

func (d engineDispatch) Close(r any, cancelIfExecuting bool) error {
	e := engineOf(r)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	contexts := make([]*execContext, 0, len(e.contexts))
	for c := range e.contexts {
		contexts = append(contexts, c)
	}
	e.mu.Unlock()

	for _, c := range contexts {
		if err := c.close(cancelIfExecuting); err != nil {
			return err
		}
	}
	if e.delegate != nil {
		if err := e.delegate.engine.Dispatch.Close(e.delegate.engine.Receiver, cancelIfExecuting); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.closed = true
	e.cached = nil
	e.mu.Unlock()
	e.listeners.Store(nil)

	if err := e.runtime.Close(context.Background()); err != nil {
		e.log.Warn("closing runtime", zap.Error(err))
	}
	e.mu.Lock()
	cache := e.cache
	e.cache = nil
	e.mu.Unlock()
	if err := e.backend.releaseCache(cache); err != nil {
		e.log.Warn("closing compilation cache", zap.Error(err))
	}
	if err := e.boundary.Close(); err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindClosed, err, "releasing native objects")
	}
	e.log.Debug("engine closed")
	return nil
}

func (d engineDispatch) Instruments(r any) map[string]impl.InstrumentRef {
	e := engineOf(r)
	if e.delegate != nil {
		return e.delegate.engine.Dispatch.Instruments(e.delegate.engine.Receiver)
	}
	return map[string]impl.InstrumentRef{}
}

func (d engineDispatch) Languages(r any) map[string]impl.LanguageRef {
	e := engineOf(r)
	out := make(map[string]impl.LanguageRef)
	if e.delegate != nil {
		for id, l := range e.delegate.engine.Dispatch.Languages(e.delegate.engine.Receiver) {
			out[id] = l
		}
	}
	out[wasmLanguageID] = impl.LanguageRef{Dispatch: d.b.languages, Receiver: wasmLanguage}
	return out
}

// Options lists the options of this backend followed by those of the
// delegate it does not define itself.
func (d engineDispatch) Options(r any) []impl.OptionDescriptor {
	e := engineOf(r)
	out := make([]impl.OptionDescriptor, len(optionDescriptors))
	copy(out, optionDescriptors)
	if e.delegate == nil {
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, o := range out {
		seen[o.Name] = true
	}
	for _, o := range e.delegate.engine.Dispatch.Options(e.delegate.engine.Receiver) {
		if !seen[o.Name] {
			out = append(out, o)
		}
	}
	return out
}

func (d engineDispatch) CreateContext(r any, req *impl.ContextRequest) (impl.ContextRef, error) {
	e := engineOf(r)
	if e.isClosed() {
		return impl.ContextRef{}, errors.Closed(errors.PhaseEngine, "engine")
	}
	c, err := newContext(e, req)
	if err != nil {
		return impl.ContextRef{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = c.closeDelegate(true)
		return impl.ContextRef{}, errors.Closed(errors.PhaseEngine, "engine")
	}
	if e.bound && len(e.contexts) > 0 {
		_ = c.closeDelegate(true)
		return impl.ContextRef{}, errors.InvalidInput(errors.PhaseEngine, "bound engine already has a context")
	}
	e.contexts[c] = struct{}{}
	c.log.Debug("context created", zap.Strings("languages", c.req.PermittedLanguages))
	return impl.ContextRef{Dispatch: d.b.contexts, Receiver: c}, nil
}

func (d engineDispatch) ImplementationName(any) string { return "wazero" }

func (d engineDispatch) CachedSources(r any) []impl.SourceRef {
	e := engineOf(r)
	e.mu.Lock()
	out := make([]impl.SourceRef, len(e.cached))
	copy(out, e.cached)
	e.mu.Unlock()
	if e.delegate != nil {
		out = append(out, e.delegate.engine.Dispatch.CachedSources(e.delegate.engine.Receiver)...)
	}
	return out
}

func (d engineDispatch) Version(any) string { return Version }

const (
	wasmLanguageID = "wasm"
	wasmMimeType   = "application/wasm"
)

type language struct {
	id        string
	name      string
	impl      string
	version   string
	mimeTypes []string
}

var wasmLanguage = &language{
	id:        wasmLanguageID,
	name:      "WebAssembly",
	impl:      "wazero",
	version:   "2.0",
	mimeTypes: []string{wasmMimeType},
}

type languageDispatch struct{}

func languageOf(r any) *language { return r.(*language) }

func (languageDispatch) ID(r any) string                     { return languageOf(r).id }
func (languageDispatch) Name(r any) string                   { return languageOf(r).name }
func (languageDispatch) ImplementationName(r any) string     { return languageOf(r).impl }
func (languageDispatch) IsInteractive(any) bool              { return false }
func (languageDispatch) Version(r any) string                { return languageOf(r).version }
func (languageDispatch) DefaultMimeType(r any) string        { return languageOf(r).mimeTypes[0] }
func (languageDispatch) Options(any) []impl.OptionDescriptor { return nil }

func (languageDispatch) MimeTypes(r any) []string {
	m := languageOf(r).mimeTypes
	out := make([]string, len(m))
	copy(out, m)
	sort.Strings(out)
	return out
}
