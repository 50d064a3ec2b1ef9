package host

import (
	"io"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

type engine struct {
	id      uuid.UUID
	backend *Backend
	log     *zap.Logger
	opts    options

	out        io.Writer
	errOut     io.Writer
	in         io.Reader
	hostAccess any
	bound      bool

	languages   map[string]*language
	instruments map[string]*instrument
	counter     *Counter

	listeners atomic.Pointer[[]*listener]

	mu       sync.Mutex
	contexts map[*execContext]struct{}
	cached   []*source
	closed   bool
}

func newEngine(b *Backend, req *impl.EngineRequest, opts options) *engine {
	id := uuid.New()
	log := req.Log
	if log == nil {
		log = Logger()
	}
	counter := &Counter{}
	return &engine{
		id:          id,
		backend:     b,
		log:         log.With(zap.String("engine", id.String())),
		opts:        opts,
		out:         req.Out,
		errOut:      req.Err,
		in:          req.In,
		hostAccess:  req.HostAccess,
		bound:       req.Bound,
		languages:   map[string]*language{jsonLanguageID: jsonLanguage},
		instruments: map[string]*instrument{counterInstrumentID: {id: counterInstrumentID, name: "Execution Counter", counter: counter}},
		counter:     counter,
		contexts:    make(map[*execContext]struct{}),
	}
}

func (e *engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *engine) cacheSource(s *source) {
	if !s.cached {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cached {
		if c.equal(s) {
			return
		}
	}
	e.cached = append(e.cached, s)
}

type engineDispatch struct{ b *Backend }

func engineOf(r any) *engine { return r.(*engine) }

func (d engineDispatch) RequirePublicLanguage(r any, id string) (impl.LanguageRef, error) {
	l, ok := engineOf(r).languages[id]
	if !ok {
		return impl.LanguageRef{}, notInstalled("language", id)
	}
	return impl.LanguageRef{Dispatch: d.b.languages, Receiver: l}, nil
}

func (d engineDispatch) RequirePublicInstrument(r any, id string) (impl.InstrumentRef, error) {
	i, ok := engineOf(r).instruments[id]
	if !ok {
		return impl.InstrumentRef{}, notInstalled("instrument", id)
	}
	return impl.InstrumentRef{Dispatch: d.b.instruments, Receiver: i}, nil
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

	e.mu.Lock()
	e.closed = true
	e.cached = nil
	e.mu.Unlock()
	e.listeners.Store(nil)
	e.log.Debug("engine closed")
	return nil
}

func (d engineDispatch) Instruments(r any) map[string]impl.InstrumentRef {
	out := make(map[string]impl.InstrumentRef)
	for id, i := range engineOf(r).instruments {
		out[id] = impl.InstrumentRef{Dispatch: d.b.instruments, Receiver: i}
	}
	return out
}

func (d engineDispatch) Languages(r any) map[string]impl.LanguageRef {
	out := make(map[string]impl.LanguageRef)
	for id, l := range engineOf(r).languages {
		out[id] = impl.LanguageRef{Dispatch: d.b.languages, Receiver: l}
	}
	return out
}

func (d engineDispatch) Options(any) []impl.OptionDescriptor {
	out := make([]impl.OptionDescriptor, len(optionDescriptors))
	copy(out, optionDescriptors)
	return out
}

func (d engineDispatch) CreateContext(r any, req *impl.ContextRequest) (impl.ContextRef, error) {
	e := engineOf(r)
	c, err := newContext(e, req)
	if err != nil {
		return impl.ContextRef{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return impl.ContextRef{}, errors.Closed(errors.PhaseEngine, "engine")
	}
	if e.bound && len(e.contexts) > 0 {
		return impl.ContextRef{}, errors.InvalidInput(errors.PhaseEngine, "bound engine already has a context")
	}
	e.contexts[c] = struct{}{}
	c.log.Debug("context created", zap.Strings("languages", c.req.PermittedLanguages))
	return impl.ContextRef{Dispatch: d.b.contexts, Receiver: c}, nil
}

func (d engineDispatch) ImplementationName(any) string { return Name }

func (d engineDispatch) CachedSources(r any) []impl.SourceRef {
	e := engineOf(r)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]impl.SourceRef, len(e.cached))
	for i, s := range e.cached {
		out[i] = impl.SourceRef{Dispatch: d.b.sources, Receiver: s}
	}
	return out
}

func (d engineDispatch) Version(any) string { return Version }

const (
	jsonLanguageID = "json"
	jsonMimeType   = "application/json"

	counterInstrumentID = "counter"
)

type language struct {
	id          string
	name        string
	impl        string
	version     string
	mimeTypes   []string
	interactive bool
}

var jsonLanguage = &language{
	id:        jsonLanguageID,
	name:      "JSON",
	impl:      "encoding/json",
	version:   Version,
	mimeTypes: []string{jsonMimeType, "text/json"},
}

type languageDispatch struct{}

func languageOf(r any) *language { return r.(*language) }

func (languageDispatch) ID(r any) string                 { return languageOf(r).id }
func (languageDispatch) Name(r any) string               { return languageOf(r).name }
func (languageDispatch) ImplementationName(r any) string { return languageOf(r).impl }
func (languageDispatch) IsInteractive(r any) bool        { return languageOf(r).interactive }
func (languageDispatch) Version(r any) string            { return languageOf(r).version }
func (languageDispatch) DefaultMimeType(r any) string    { return languageOf(r).mimeTypes[0] }

func (languageDispatch) Options(any) []impl.OptionDescriptor {
	return []impl.OptionDescriptor{optionDescriptors[1], optionDescriptors[2]}
}

func (languageDispatch) MimeTypes(r any) []string {
	m := languageOf(r).mimeTypes
	out := make([]string, len(m))
	copy(out, m)
	sort.Strings(out)
	return out
}

// Counter counts what an engine ran. It is the service of the "counter"
// instrument.
type Counter struct {
	evaluations atomic.Int64
	executions  atomic.Int64
}

// Evaluations returns the number of sources evaluated.
func (c *Counter) Evaluations() int64 { return c.evaluations.Load() }

// Executions returns the number of host function executions.
func (c *Counter) Executions() int64 { return c.executions.Load() }

type instrument struct {
	id      string
	name    string
	counter *Counter
}

type instrumentDispatch struct{}

func instrumentOf(r any) *instrument { return r.(*instrument) }

var counterType = reflect.TypeOf((*Counter)(nil))

func (instrumentDispatch) ID(r any) string                     { return instrumentOf(r).id }
func (instrumentDispatch) Name(r any) string                   { return instrumentOf(r).name }
func (instrumentDispatch) Options(any) []impl.OptionDescriptor { return nil }
func (instrumentDispatch) Version(any) string                  { return Version }

func (instrumentDispatch) Lookup(r any, t reflect.Type) (any, bool) {
	if t != counterType {
		return nil, false
	}
	return instrumentOf(r).counter, true
}
