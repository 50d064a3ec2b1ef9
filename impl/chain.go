package impl

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
)

// Chain is the ordered fallback list of backends. It is immutable once built,
// so concurrent resolution needs no locking.
type Chain struct {
	caps     *Capabilities
	backends []Backend
}

// NewChain orders backends by ascending priority (stable for ties) and
// initializes each with an Env pointing back at the chain.
func NewChain(caps *Capabilities, backends ...Backend) (*Chain, error) {
	if caps == nil {
		caps = DefaultCapabilities()
	}

	seen := make(map[Backend]struct{}, len(backends))
	ordered := make([]Backend, 0, len(backends))
	for i, b := range backends {
		if b == nil {
			return nil, errors.InvalidInput(errors.PhaseBootstrap, fmt.Sprintf("backend %d is nil", i))
		}
		if _, dup := seen[b]; dup {
			return nil, errors.InvalidInput(errors.PhaseBootstrap, fmt.Sprintf("backend %q appears twice in the chain", b.Name()))
		}
		seen[b] = struct{}{}
		ordered = append(ordered, b)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	c := &Chain{caps: caps, backends: ordered}
	env := &Env{Chain: c, Capabilities: caps}
	for _, b := range ordered {
		if err := b.Initialize(env); err != nil {
			return nil, errors.New(errors.PhaseBootstrap, errors.KindRegistration).
				Path(b.Name()).
				Cause(err).
				Detail("backend initialization failed").
				Build()
		}
	}

	Logger().Debug("backend chain built", zap.Strings("backends", names(ordered)))
	return c, nil
}

func names(backends []Backend) []string {
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.Name()
	}
	return out
}

// Capabilities returns the registry the chain's backends were given.
func (c *Chain) Capabilities() *Capabilities {
	return c.caps
}

// Backends returns the backends in resolution order.
func (c *Chain) Backends() []Backend {
	out := make([]Backend, len(c.backends))
	copy(out, c.backends)
	return out
}

// Len returns the number of backends.
func (c *Chain) Len() int {
	return len(c.backends)
}

// Resolve returns the first backend, in ascending priority, that supports req.
func (c *Chain) Resolve(req Request) (Backend, error) {
	return c.resolveFrom(0, req)
}

// ResolveAfter resolves req among the backends strictly after b. A backend
// uses it to defer an operation to the rest of the chain.
func (c *Chain) ResolveAfter(b Backend, req Request) (Backend, error) {
	for i, cur := range c.backends {
		if cur == b {
			return c.resolveFrom(i+1, req)
		}
	}
	return nil, errors.NotFound(errors.PhaseResolve, "backend", b.Name())
}

func (c *Chain) resolveFrom(start int, req Request) (Backend, error) {
	for _, b := range c.backends[start:] {
		if b.Supports(req) {
			Logger().Debug("resolved backend",
				zap.String("op", string(req.Op)),
				zap.String("backend", b.Name()))
			return b, nil
		}
	}
	return nil, errors.NoCompatibleBackend(string(req.Op))
}

// BuildEngine resolves the backend for req and asks it to build the engine.
// A failure of the resolved backend is final; the chain does not try the
// next one.
func (c *Chain) BuildEngine(req *EngineRequest) (EngineRef, Backend, error) {
	if req == nil {
		req = &EngineRequest{}
	}
	b, err := c.Resolve(Request{Op: OpBuildEngine, Options: req.Options})
	if err != nil {
		return EngineRef{}, nil, err
	}

	if req.Log == nil {
		log, err := NewLogger(req.LogSink, req.Options[LogLevelOption])
		if err != nil {
			return EngineRef{}, nil, err
		}
		derived := *req
		derived.Log = log
		req = &derived
	}

	ref, err := b.BuildEngine(req)
	if err != nil {
		Logger().Debug("engine construction failed", zap.String("backend", b.Name()), zap.Error(err))
		return EngineRef{}, nil, err
	}
	return ref, b, nil
}

// PreInitialize asks the first backend supporting warmup to warm up.
// It is a no-op when no backend supports it.
func (c *Chain) PreInitialize() error {
	b, err := c.Resolve(Request{Op: OpPreInitialize})
	if err != nil {
		Logger().Debug("no backend supports pre-initialization")
		return nil
	}
	return b.PreInitializeEngine()
}

// ResetPreInitialized discards warmup state of the backend that owns it.
func (c *Chain) ResetPreInitialized() error {
	b, err := c.Resolve(Request{Op: OpPreInitialize})
	if err != nil {
		return nil
	}
	return b.ResetPreInitializedEngine()
}

// SourceDispatch returns the source dispatch of the first capable backend.
func (c *Chain) SourceDispatch() (SourceDispatch, error) {
	b, err := c.Resolve(Request{Op: OpSourceDispatch})
	if err != nil {
		return nil, err
	}
	return b.SourceDispatch(), nil
}

// SourceSectionDispatch returns the source-section dispatch of the first
// capable backend.
func (c *Chain) SourceSectionDispatch() (SourceSectionDispatch, error) {
	b, err := c.Resolve(Request{Op: OpSourceSectionDispatch})
	if err != nil {
		return nil, err
	}
	return b.SourceSectionDispatch(), nil
}

// ManagementDispatch returns the management dispatch of the first capable
// backend.
func (c *Chain) ManagementDispatch() (ManagementDispatch, error) {
	b, err := c.Resolve(Request{Op: OpManagementDispatch})
	if err != nil {
		return nil, err
	}
	return b.ManagementDispatch(), nil
}

// HostAccess returns the host access dispatch of the first capable backend.
func (c *Chain) HostAccess() (HostAccessDispatch, error) {
	b, err := c.Resolve(Request{Op: OpHostAccess})
	if err != nil {
		return nil, err
	}
	return b.HostAccess(), nil
}

// Detectors returns the backends that registered language detection, in
// chain order.
func (c *Chain) Detectors() []LanguageDetector {
	var out []LanguageDetector
	for _, b := range c.backends {
		if d, ok := b.(LanguageDetector); ok {
			out = append(out, d)
		}
	}
	return out
}

// Close closes every backend that holds resources.
func (c *Chain) Close(ctx context.Context) error {
	var errs []error
	for _, b := range c.backends {
		if cl, ok := b.(interface{ Close(context.Context) error }); ok {
			if err := cl.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

var (
	installMu    sync.Mutex
	defaultChain *Chain
)

// Install builds the process-wide chain over DefaultCapabilities. It can be
// called once.
func Install(backends ...Backend) (*Chain, error) {
	installMu.Lock()
	defer installMu.Unlock()

	if defaultChain != nil {
		return nil, errors.New(errors.PhaseBootstrap, errors.KindRegistration).
			Detail("backend chain already installed").
			Build()
	}
	c, err := NewChain(DefaultCapabilities(), backends...)
	if err != nil {
		return nil, err
	}
	defaultChain = c
	return c, nil
}

// DefaultChain returns the installed process-wide chain, or an empty chain
// when none was installed.
func DefaultChain() *Chain {
	installMu.Lock()
	defer installMu.Unlock()

	if defaultChain == nil {
		return &Chain{caps: DefaultCapabilities()}
	}
	return defaultChain
}
