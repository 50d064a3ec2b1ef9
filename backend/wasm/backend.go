package wasm

import (
	"bytes"
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

const (
	// Name of the backend in the chain.
	Name = "wasm"

	// DefaultPriority places the backend ahead of the host backend.
	DefaultPriority = 10

	// Version is reported by engines and languages of this backend.
	Version = "1.0.0"
)

var magic = []byte{0x00, 'a', 's', 'm'}

// Backend runs WebAssembly modules with wazero. It builds engines only for
// requests whose options it knows, and hands sources, sections and host
// values to the next link of the chain.
type Backend struct {
	env      *impl.Env
	priority int

	engines    engineDispatch
	contexts   contextDispatch
	values     valueDispatch
	languages  languageDispatch
	exceptions exceptionDispatch
	frames     frameDispatch
	management managementDispatch

	mu    sync.Mutex
	cache *sharedCache
	warm  wazero.Runtime
}

// sharedCache is a compilation cache and the number of runtimes built on
// it. A dropped cache is closed once its last runtime is gone.
type sharedCache struct {
	cache   wazero.CompilationCache
	users   int
	dropped bool
	closed  bool
}

func (sc *sharedCache) close(ctx context.Context) error {
	sc.closed = true
	return sc.cache.Close(ctx)
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
	b.exceptions = exceptionDispatch{b}
	b.frames = frameDispatch{b}
	b.management = managementDispatch{b}
	return b
}

func (b *Backend) Name() string  { return Name }
func (b *Backend) Priority() int { return b.priority }

func (b *Backend) Initialize(env *impl.Env) error {
	b.env = env
	return nil
}

// Supports accepts engine requests whose options are all known, warmup and
// management.
func (b *Backend) Supports(req impl.Request) bool {
	switch req.Op {
	case impl.OpBuildEngine:
		return known(req.Options)
	case impl.OpPreInitialize, impl.OpManagementDispatch:
		return true
	}
	return false
}

func (b *Backend) BuildEngine(req *impl.EngineRequest) (impl.EngineRef, error) {
	opts, err := parseOptions(req.Options, req.AllowExperimentalOptions)
	if err != nil {
		return impl.EngineRef{}, err
	}
	next, err := b.next(impl.Request{Op: impl.OpHostAccess})
	if err != nil {
		return impl.EngineRef{}, err
	}

	var del *delegate
	if nb, err := b.next(impl.Request{Op: impl.OpBuildEngine, Options: req.Options}); err == nil {
		ref, err := nb.BuildEngine(req)
		if err != nil {
			return impl.EngineRef{}, err
		}
		del = &delegate{engine: ref, management: nb.ManagementDispatch()}
	}

	rt, cache := b.runtime(opts)
	e := newEngine(b, req, opts, rt, next.HostAccess(), del)
	e.cache = cache
	e.log.Debug("engine built",
		zap.Bool("bound", req.Bound),
		zap.Bool("interpreter", opts.interpreter),
		zap.Bool("delegate", del != nil))
	return impl.EngineRef{Dispatch: b.engines, Receiver: e}, nil
}

// runtime adopts the warm runtime when opts match its configuration and
// discards it otherwise. The returned cache, if any, must be handed back
// with releaseCache once the runtime is closed.
func (b *Backend) runtime(opts options) (wazero.Runtime, *sharedCache) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if warm := b.warm; warm != nil {
		b.warm = nil
		if opts == defaultOptions {
			Logger().Debug("adopting pre-initialized runtime")
			return warm, b.cache
		}
		_ = warm.Close(context.Background())
		_ = b.release(b.cache)
	}
	if b.cache == nil {
		return opts.newRuntime(nil), nil
	}
	b.cache.users++
	return opts.newRuntime(b.cache.cache), b.cache
}

// PreInitializeEngine creates the compilation cache later engines share and
// a runtime with the default options.
func (b *Backend) PreInitializeEngine() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cache == nil {
		b.cache = &sharedCache{cache: wazero.NewCompilationCache()}
	}
	if b.warm == nil {
		b.cache.users++
		b.warm = defaultOptions.newRuntime(b.cache.cache)
	}
	Logger().Debug("engine pre-initialized")
	return nil
}

// ResetPreInitializedEngine closes the warm runtime and drops the
// compilation cache. Engines that already use the cache keep it until they
// close.
func (b *Backend) ResetPreInitializedEngine() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset(context.Background())
}

// Close releases the warm runtime and the compilation cache.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset(ctx)
}

func (b *Backend) reset(ctx context.Context) error {
	var errs []error
	if b.warm != nil {
		errs = append(errs, b.warm.Close(ctx))
		b.warm = nil
		errs = append(errs, b.release(b.cache))
	}
	if sc := b.cache; sc != nil {
		b.cache = nil
		sc.dropped = true
		if sc.users == 0 {
			errs = append(errs, sc.close(ctx))
		}
	}
	return stderrors.Join(errs...)
}

// releaseCache hands back a cache returned by runtime.
func (b *Backend) releaseCache(sc *sharedCache) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.release(sc)
}

func (b *Backend) release(sc *sharedCache) error {
	if sc == nil {
		return nil
	}
	sc.users--
	if sc.dropped && sc.users == 0 {
		return sc.close(context.Background())
	}
	return nil
}

func (b *Backend) SourceDispatch() impl.SourceDispatch { return nil }

func (b *Backend) SourceSectionDispatch() impl.SourceSectionDispatch { return nil }

func (b *Backend) ManagementDispatch() impl.ManagementDispatch { return b.management }

func (b *Backend) HostAccess() impl.HostAccessDispatch { return nil }

// LanguageOfMimeType maps application/wasm to the wasm language.
func (b *Backend) LanguageOfMimeType(mimeType string) (string, bool) {
	if mimeType == wasmMimeType {
		return wasmLanguageID, true
	}
	return "", false
}

// DetectMimeType recognises the binary module magic and .wasm files.
func (b *Backend) DetectMimeType(path string, head []byte) (string, bool) {
	if bytes.HasPrefix(head, magic) || strings.EqualFold(filepath.Ext(path), ".wasm") {
		return wasmMimeType, true
	}
	return "", false
}

// next resolves req among the links after this backend.
func (b *Backend) next(req impl.Request) (impl.Backend, error) {
	if b.env == nil || b.env.Chain == nil {
		return nil, errors.NoCompatibleBackend(string(req.Op))
	}
	return b.env.Chain.ResolveAfter(b, req)
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

// raise turns a guest error into the error the embedder sees.
func (b *Backend) raise(g *guestError) error {
	api, ok := b.api()
	if !ok {
		return g
	}
	return api.NewLanguageException(g.msg, impl.ExceptionRef{Dispatch: b.exceptions, Receiver: g})
}

func notInstalled(what, id string) error {
	return errors.NotFound(errors.PhaseEngine, what, id)
}
