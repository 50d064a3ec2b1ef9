package wasm

import (
	"context"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

type contextKey struct{}

// contextOfCall returns the context a wazero call was started from.
func contextOfCall(ctx context.Context) (*execContext, bool) {
	c, ok := ctx.Value(contextKey{}).(*execContext)
	return c, ok
}

type execContext struct {
	id       uuid.UUID
	engine   *engine
	req      *impl.ContextRequest
	log      *zap.Logger
	hostCtx  any
	delegate *impl.ContextRef

	mu          sync.Mutex
	initialized bool
	instances   []*instance
	runs        map[uint64]context.CancelFunc
	nextRun     uint64

	statements  atomic.Int64
	limitFired  atomic.Bool
	interrupted atomic.Bool
	running     atomic.Int32
	depth       atomic.Int32
	closed      atomic.Bool
}

func newContext(e *engine, req *impl.ContextRequest) (*execContext, error) {
	if req == nil {
		req = &impl.ContextRequest{}
	}
	for _, id := range req.PermittedLanguages {
		if _, ok := e.language(id); !ok {
			return nil, notInstalled("language", id)
		}
	}
	if api, ok := e.backend.api(); ok && req.PolyglotAccess != nil {
		if err := api.ValidatePolyglotAccess(req.PolyglotAccess, req.PermittedLanguages); err != nil {
			return nil, err
		}
	}

	policy := req.HostAccess
	if policy == nil {
		policy = e.policy
	}
	hostCtx, err := e.hostAccess.CreateHostContext(policy, req.HostLoader)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	c := &execContext{
		id:      id,
		engine:  e,
		req:     req,
		log:     e.log.With(zap.String("context", id.String())),
		hostCtx: hostCtx,
		runs:    make(map[uint64]context.CancelFunc),
	}
	if e.delegate != nil {
		ref, err := e.delegate.engine.Dispatch.CreateContext(e.delegate.engine.Receiver, delegateRequest(req, e))
		if err != nil {
			return nil, err
		}
		c.delegate = &ref
	}
	return c, nil
}

// delegateRequest narrows req to the languages of the delegate. Polyglot
// access was validated against the full language set already.
func delegateRequest(req *impl.ContextRequest, e *engine) *impl.ContextRequest {
	out := *req
	out.PolyglotAccess = nil
	if len(req.PermittedLanguages) == 0 {
		return &out
	}
	out.PermittedLanguages = nil
	for _, id := range req.PermittedLanguages {
		if own, _ := e.language(id); !own {
			out.PermittedLanguages = append(out.PermittedLanguages, id)
		}
	}
	if len(out.PermittedLanguages) == 0 {
		// The delegate must not widen an all-wasm context; it keeps one
		// language so its bindings stay reachable.
		ids := make([]string, 0)
		for id := range e.delegate.engine.Dispatch.Languages(e.delegate.engine.Receiver) {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out.PermittedLanguages = ids[:min(len(ids), 1)]
	}
	return &out
}

func (c *execContext) checkOpen() error {
	if c.closed.Load() {
		return errors.Closed(errors.PhaseContext, "context")
	}
	if c.engine.isClosed() {
		return errors.Closed(errors.PhaseContext, "engine")
	}
	return nil
}

// route checks that lang may run in the context and reports whether this
// backend serves it.
func (c *execContext) route(lang string) (bool, error) {
	own, ok := c.engine.language(lang)
	if !ok {
		return false, notInstalled("language", lang)
	}
	if !c.req.LanguagePermitted(lang) {
		return false, errors.New(errors.PhaseContext, errors.KindInvalidInput).
			Path(lang).
			Detail("language is not permitted by the context").
			Build()
	}
	return own, nil
}

// begin starts one guest execution. The returned context is cancelled by
// Interrupt and by a cancelling Close; end must be called when the
// execution returns.
func (c *execContext) begin() (context.Context, func(), error) {
	if err := c.checkOpen(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), contextKey{}, c))

	c.mu.Lock()
	id := c.nextRun
	c.nextRun++
	c.runs[id] = cancel
	c.mu.Unlock()
	c.running.Add(1)

	end := func() {
		cancel()
		c.mu.Lock()
		delete(c.runs, id)
		c.mu.Unlock()
		if c.running.Add(-1) == 0 {
			c.interrupted.Store(false)
		}
	}
	if err := c.safepoint(); err != nil {
		end()
		return nil, nil, err
	}
	return ctx, end, nil
}

func (c *execContext) cancelRuns() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.runs {
		cancel()
	}
}

func (c *execContext) safepoint() error {
	if c.interrupted.Load() {
		return c.engine.backend.raise(interruptedError())
	}
	return nil
}

// step counts one function call or instantiation against the statement
// limit.
func (c *execContext) step(src impl.SourceRef) error {
	limits := c.req.ResourceLimits
	if limits == nil || limits.StatementLimit <= 0 {
		return nil
	}
	if limits.SourceFilter != nil {
		api, ok := c.engine.backend.api()
		if ok && !limits.SourceFilter(api.NewSource(src)) {
			return nil
		}
	}

	n := c.statements.Add(1)
	if n <= limits.StatementLimit {
		return nil
	}
	if c.limitFired.CompareAndSwap(false, true) {
		c.log.Debug("statement limit exceeded", zap.Int64("limit", limits.StatementLimit))
		if limits.OnLimit != nil {
			limits.OnLimit(c.req.Handle)
		}
	}
	return c.engine.backend.raise(&guestError{
		msg:  "statement count limit of " + strconv.FormatInt(limits.StatementLimit, 10) + " exceeded",
		kind: excResourceExhausted | excCancelled,
	})
}

// compile reads the module bytes of src and compiles them with the
// engine's listeners installed.
func (c *execContext) compile(src impl.SourceRef) (wazero.CompiledModule, error) {
	if !src.Dispatch.HasBytes(src.Receiver) {
		return nil, errors.InvalidInput(errors.PhaseSource, "wasm sources must be byte based")
	}
	bin, err := src.Dispatch.Bytes(src.Receiver)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	ctx := experimental.WithFunctionListenerFactory(context.Background(), listenerFactory{c.engine})
	compiled, err := c.engine.runtime.CompileModule(ctx, bin)
	if err != nil {
		c.log.Debug("compile failed", zap.String("source", src.Dispatch.Name(src.Receiver)), zap.Error(err))
		return nil, c.engine.backend.raise(&guestError{
			msg:  err.Error(),
			kind: excSyntax,
		})
	}
	c.engine.cacheSource(src)
	return compiled, nil
}

func (c *execContext) instantiate(compiled wazero.CompiledModule, src impl.SourceRef) (*instance, error) {
	ctx, end, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	if err := c.step(src); err != nil {
		return nil, err
	}

	mod, err := c.engine.runtime.InstantiateModule(ctx, compiled, c.moduleConfig())
	if err != nil {
		return nil, c.trap(err)
	}
	inst := &instance{
		c:        c,
		name:     src.Dispatch.Name(src.Receiver),
		mod:      mod,
		compiled: compiled,
		src:      src,
		funcs:    make(map[string]*function),
	}

	c.mu.Lock()
	c.instances = append(c.instances, inst)
	c.mu.Unlock()
	c.log.Debug("module instantiated", zap.String("module", inst.name))
	return inst, nil
}

func (c *execContext) moduleConfig() wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().WithName("")
	if w := firstWriter(c.req.Out, c.engine.out); w != nil {
		cfg = cfg.WithStdout(w)
	}
	if w := firstWriter(c.req.Err, c.engine.errOut); w != nil {
		cfg = cfg.WithStderr(w)
	}
	if c.req.In != nil {
		cfg = cfg.WithStdin(c.req.In)
	} else if c.engine.in != nil {
		cfg = cfg.WithStdin(c.engine.in)
	}
	if c.req.EnvironmentAccess == impl.EnvironmentInherit {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				cfg = cfg.WithEnv(k, v)
			}
		}
	}
	for k, v := range c.req.Environment {
		cfg = cfg.WithEnv(k, v)
	}
	return cfg
}

// toValue hands a Go value to the host backend.
func (c *execContext) toValue(v any) (impl.ValueRef, error) {
	return c.engine.hostAccess.ToValue(c.hostCtx, v)
}

func (c *execContext) close(cancelIfExecuting bool) error {
	if c.running.Load() > 0 {
		if !cancelIfExecuting {
			return errors.InvalidInput(errors.PhaseContext, "context is executing; close with cancellation")
		}
		c.interrupted.Store(true)
		c.cancelRuns()
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	instances := c.instances
	c.instances = nil
	c.mu.Unlock()
	for _, inst := range instances {
		if err := inst.mod.Close(context.Background()); err != nil {
			c.log.Debug("closing module", zap.String("module", inst.name), zap.Error(err))
		}
	}
	if err := c.closeDelegate(cancelIfExecuting); err != nil {
		return err
	}

	e := c.engine
	e.mu.Lock()
	delete(e.contexts, c)
	e.mu.Unlock()
	c.log.Debug("context closed")
	return nil
}

func (c *execContext) closeDelegate(cancelIfExecuting bool) error {
	if c.delegate == nil {
		return nil
	}
	return c.delegate.Dispatch.Close(c.delegate.Receiver, cancelIfExecuting)
}

func firstWriter(ws ...io.Writer) io.Writer {
	for _, w := range ws {
		if w != nil {
			return w
		}
	}
	return nil
}

type contextDispatch struct{ b *Backend }

func contextOf(r any) *execContext { return r.(*execContext) }

func (d contextDispatch) InitializeLanguage(r any, id string) (bool, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	own, err := c.route(id)
	if err != nil {
		return false, err
	}
	if !own {
		return c.delegate.Dispatch.InitializeLanguage(c.delegate.Receiver, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return false, nil
	}
	c.initialized = true
	return true, nil
}

func (d contextDispatch) Eval(r any, lang string, src impl.SourceRef) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	own, err := c.route(lang)
	if err != nil {
		return impl.ValueRef{}, err
	}
	if !own {
		return c.delegate.Dispatch.Eval(c.delegate.Receiver, lang, src)
	}
	compiled, err := c.compile(src)
	if err != nil {
		return impl.ValueRef{}, err
	}
	inst, err := c.instantiate(compiled, src)
	if err != nil {
		closeCompiled(compiled)
		return impl.ValueRef{}, err
	}
	return d.b.values.ref(inst), nil
}

// Parse compiles a wasm source without instantiating it. The result is
// executable; each execution creates a new instance.
func (d contextDispatch) Parse(r any, lang string, src impl.SourceRef) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	own, err := c.route(lang)
	if err != nil {
		return impl.ValueRef{}, err
	}
	if !own {
		return c.delegate.Dispatch.Parse(c.delegate.Receiver, lang, src)
	}
	compiled, err := c.compile(src)
	if err != nil {
		return impl.ValueRef{}, err
	}
	return d.b.values.ref(&module{c: c, compiled: compiled, src: src}), nil
}

func (d contextDispatch) Close(r any, cancelIfExecuting bool) error {
	return contextOf(r).close(cancelIfExecuting)
}

// Interrupt cancels running calls. Cancellation stops guest code only when
// the engine was built with wasm.Interruptible; the instance that was
// interrupted is closed by the runtime.
func (d contextDispatch) Interrupt(r any, timeout time.Duration) (bool, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if c.delegate != nil {
		if ok, err := c.delegate.Dispatch.Interrupt(c.delegate.Receiver, timeout); err != nil || !ok {
			return ok, err
		}
	}
	// The flag goes up before running is checked: a run that ends in
	// between must not leave it set.
	c.interrupted.Store(true)
	if c.running.Load() == 0 {
		c.interrupted.Store(false)
		return true, nil
	}
	c.cancelRuns()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for c.running.Load() > 0 {
		select {
		case <-deadline:
			return false, nil
		case <-tick.C:
		}
	}
	c.interrupted.CompareAndSwap(true, false)
	return true, nil
}

func (d contextDispatch) AsValue(r any, hostValue any) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	if c.delegate != nil {
		return c.delegate.Dispatch.AsValue(c.delegate.Receiver, hostValue)
	}
	if api, ok := d.b.api(); ok {
		if ref, ok := api.ValueRef(hostValue); ok {
			return ref, nil
		}
	}
	return c.toValue(hostValue)
}

func (d contextDispatch) Enter(r any) error {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.delegate != nil {
		if err := c.delegate.Dispatch.Enter(c.delegate.Receiver); err != nil {
			return err
		}
	}
	c.depth.Add(1)
	return nil
}

func (d contextDispatch) Leave(r any) error {
	c := contextOf(r)
	for {
		n := c.depth.Load()
		if n == 0 {
			return errors.InvalidInput(errors.PhaseContext, "leave without enter")
		}
		if c.depth.CompareAndSwap(n, n-1) {
			break
		}
	}
	if c.delegate != nil {
		return c.delegate.Dispatch.Leave(c.delegate.Receiver)
	}
	return nil
}

// Bindings of wasm are the modules instantiated in the context, by source
// name. Other languages use the delegate's bindings.
func (d contextDispatch) Bindings(r any, lang string) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	own, err := c.route(lang)
	if err != nil {
		return impl.ValueRef{}, err
	}
	if !own {
		return c.delegate.Dispatch.Bindings(c.delegate.Receiver, lang)
	}
	return d.b.values.ref(&moduleBindings{c: c}), nil
}

func (d contextDispatch) PolyglotBindings(r any) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	if c.delegate == nil {
		return impl.ValueRef{}, errors.UnsupportedOperation("PolyglotBindings", nil)
	}
	return c.delegate.Dispatch.PolyglotBindings(c.delegate.Receiver)
}

func (d contextDispatch) ResetLimits(r any) error {
	c := contextOf(r)
	c.statements.Store(0)
	c.limitFired.Store(false)
	if c.delegate != nil {
		return c.delegate.Dispatch.ResetLimits(c.delegate.Receiver)
	}
	return nil
}

func (d contextDispatch) Safepoint(r any) error {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.safepoint(); err != nil {
		return err
	}
	if c.delegate != nil {
		return c.delegate.Dispatch.Safepoint(c.delegate.Receiver)
	}
	return nil
}
