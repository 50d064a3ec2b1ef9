package host

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

const (
	// Name of the backend in the chain.
	Name = "host"

	// DefaultPriority places the backend after optimising backends.
	DefaultPriority = 100

	// Version is reported by engines and languages of this backend.
	Version = "1.0.0"
)

// Backend is the baseline chain link.
type Backend struct {
	env      *impl.Env
	priority int

	engines     engineDispatch
	contexts    contextDispatch
	values      valueDispatch
	languages   languageDispatch
	instruments instrumentDispatch
	sources     sourceDispatch
	sections    sectionDispatch
	exceptions  exceptionDispatch
	frames      frameDispatch
	hostAccess  hostAccessDispatch
	management  managementDispatch
}

// Option configures a Backend.
type Option func(*Backend)

// WithPriority overrides DefaultPriority.
func WithPriority(p int) Option {
	return func(b *Backend) { b.priority = p }
}

// New creates the backend.
func New(opts ...Option) *Backend {
	b := &Backend{priority: DefaultPriority}
	for _, opt := range opts {
		opt(b)
	}
	b.engines = engineDispatch{b}
	b.contexts = contextDispatch{b}
	b.values = valueDispatch{b: b}
	b.sources = sourceDispatch{b}
	b.sections = sectionDispatch{}
	b.exceptions = exceptionDispatch{b}
	b.frames = frameDispatch{b}
	b.hostAccess = hostAccessDispatch{b}
	b.management = managementDispatch{b}
	return b
}

func (b *Backend) Name() string  { return Name }
func (b *Backend) Priority() int { return b.priority }

func (b *Backend) Initialize(env *impl.Env) error {
	b.env = env
	return nil
}

// Supports accepts every request.
func (b *Backend) Supports(impl.Request) bool { return true }

func (b *Backend) BuildEngine(req *impl.EngineRequest) (impl.EngineRef, error) {
	opts, err := parseOptions(req.Options, nil)
	if err != nil {
		return impl.EngineRef{}, err
	}
	e := newEngine(b, req, opts)
	e.log.Debug("engine built", zap.Bool("bound", req.Bound))
	return impl.EngineRef{Dispatch: b.engines, Receiver: e}, nil
}

// PreInitializeEngine has nothing to warm up.
func (b *Backend) PreInitializeEngine() error { return nil }

func (b *Backend) ResetPreInitializedEngine() error { return nil }

func (b *Backend) SourceDispatch() impl.SourceDispatch { return b.sources }

func (b *Backend) SourceSectionDispatch() impl.SourceSectionDispatch { return b.sections }

func (b *Backend) ManagementDispatch() impl.ManagementDispatch { return b.management }

func (b *Backend) HostAccess() impl.HostAccessDispatch { return b.hostAccess }

// ValueDispatch returns the dispatch table of host values, for backends that
// hand Go values back to the embedder.
func (b *Backend) ValueDispatch() impl.ValueDispatch { return b.values }

// LanguageOfMimeType maps JSON MIME types to the json language.
func (b *Backend) LanguageOfMimeType(mimeType string) (string, bool) {
	switch mimeType {
	case jsonMimeType, "text/json":
		return jsonLanguageID, true
	}
	return "", false
}

// DetectMimeType recognises .json files.
func (b *Backend) DetectMimeType(path string, _ []byte) (string, bool) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return jsonMimeType, true
	}
	return "", false
}

func (b *Backend) api() (impl.APIAccess, bool) {
	if b.env == nil {
		return nil, false
	}
	api, err := b.env.API()
	if err != nil {
		Logger().Debug("api access unavailable", zap.Error(err))
		return nil, false
	}
	return api, true
}

func (b *Backend) detectors() []impl.LanguageDetector {
	if b.env == nil || b.env.Chain == nil {
		return []impl.LanguageDetector{b}
	}
	if d := b.env.Chain.Detectors(); len(d) > 0 {
		return d
	}
	return []impl.LanguageDetector{b}
}

// raise turns a guest error into the error the embedder sees.
func (b *Backend) raise(g *guestError) error {
	api, ok := b.api()
	if !ok {
		return g
	}
	return api.NewLanguageException(g.msg, impl.ExceptionRef{Dispatch: b.exceptions, Receiver: g})
}

// guestErrorOf recovers the guest error behind an error returned by raise.
func (b *Backend) guestErrorOf(err error) (*guestError, bool) {
	if g, ok := err.(*guestError); ok {
		return g, true
	}
	if api, ok := b.api(); ok {
		if ref, ok := api.ExceptionRef(err); ok {
			g, ok := ref.Receiver.(*guestError)
			return g, ok
		}
	}
	return nil, false
}

func notInstalled(what, id string) error {
	return errors.NotFound(errors.PhaseEngine, what, id)
}
