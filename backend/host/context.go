package host

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

type execContext struct {
	id     uuid.UUID
	engine *engine
	req    *impl.ContextRequest
	scope  *scope
	log    *zap.Logger
	opts   options

	mu          sync.Mutex
	bindings    map[string]*bindings
	polyglot    *bindings
	initialized map[string]bool

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
		if _, ok := e.languages[id]; !ok {
			return nil, notInstalled("language", id)
		}
	}
	if api, ok := e.backend.api(); ok && req.PolyglotAccess != nil {
		if err := api.ValidatePolyglotAccess(req.PolyglotAccess, req.PermittedLanguages); err != nil {
			return nil, err
		}
	}

	opts, err := parseOptions(req.Options, &e.opts)
	if err != nil {
		return nil, err
	}

	hostAccess := req.HostAccess
	if hostAccess == nil {
		hostAccess = e.hostAccess
	}

	id := uuid.New()
	c := &execContext{
		id:          id,
		engine:      e,
		req:         req,
		log:         e.log.With(zap.String("context", id.String())),
		opts:        opts,
		bindings:    make(map[string]*bindings),
		polyglot:    newBindings(),
		initialized: make(map[string]bool),
	}
	c.scope = &scope{backend: e.backend, hostAccess: hostAccess, loader: req.HostLoader, ctx: c}
	return c, nil
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

func (c *execContext) requireLanguage(id string) (*language, error) {
	l, ok := c.engine.languages[id]
	if !ok {
		return nil, notInstalled("language", id)
	}
	if !c.req.LanguagePermitted(id) {
		return nil, errors.New(errors.PhaseContext, errors.KindInvalidInput).
			Path(id).
			Detail("language is not permitted by the context").
			Build()
	}
	return l, nil
}

// begin marks guest execution as running and checks for a pending
// interrupt. The returned func must be called when execution ends.
func (c *execContext) begin() (func(), error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.running.Add(1)
	end := func() {
		if c.running.Add(-1) == 0 {
			c.interrupted.Store(false)
		}
	}
	if err := c.safepoint(); err != nil {
		end()
		return nil, err
	}
	return end, nil
}

func (c *execContext) safepoint() error {
	if c.interrupted.Load() {
		return c.engine.backend.raise(&guestError{msg: "execution interrupted", kind: excInterrupted | excCancelled})
	}
	return nil
}

// step counts one statement against the resource limit. Statements of a
// source are counted when the limit's filter accepts the source; statements
// without a source are counted when there is no filter.
func (c *execContext) step(src *source) error {
	limits := c.req.ResourceLimits
	if limits == nil || limits.StatementLimit <= 0 {
		return nil
	}
	if limits.SourceFilter != nil {
		if src == nil {
			return nil
		}
		api, ok := c.engine.backend.api()
		if ok && !limits.SourceFilter(api.NewSource(impl.SourceRef{Dispatch: c.engine.backend.sources, Receiver: src})) {
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

func (c *execContext) close(cancelIfExecuting bool) error {
	if c.running.Load() > 0 {
		if !cancelIfExecuting {
			return errors.InvalidInput(errors.PhaseContext, "context is executing; close with cancellation")
		}
		c.interrupted.Store(true)
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	e := c.engine
	e.mu.Lock()
	delete(e.contexts, c)
	e.mu.Unlock()
	c.log.Debug("context closed")
	return nil
}

type contextDispatch struct{ b *Backend }

func contextOf(r any) *execContext { return r.(*execContext) }

func (d contextDispatch) InitializeLanguage(r any, id string) (bool, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if _, err := c.requireLanguage(id); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized[id] {
		return false, nil
	}
	c.initialized[id] = true
	return true, nil
}

func (d contextDispatch) Eval(r any, lang string, src impl.SourceRef) (impl.ValueRef, error) {
	c := contextOf(r)
	s, err := c.prepare(lang, src)
	if err != nil {
		return impl.ValueRef{}, err
	}
	v, err := c.evalJSON(s)
	if err != nil {
		return impl.ValueRef{}, err
	}
	return c.scope.wrap(v), nil
}

func (d contextDispatch) Parse(r any, lang string, src impl.SourceRef) (impl.ValueRef, error) {
	c := contextOf(r)
	s, err := c.prepare(lang, src)
	if err != nil {
		return impl.ValueRef{}, err
	}
	if _, err := c.decodeJSON(s); err != nil {
		return impl.ValueRef{}, err
	}
	return c.scope.wrap(&parsed{c: c, src: s}), nil
}

func (c *execContext) prepare(lang string, ref impl.SourceRef) (*source, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if _, err := c.requireLanguage(lang); err != nil {
		return nil, err
	}
	s, ok := ref.Receiver.(*source)
	if !ok {
		return nil, errors.New(errors.PhaseContext, errors.KindInvalidInput).
			GoType(typeName(ref.Receiver)).
			Detail("source was not built by the host backend").
			Build()
	}
	if !s.hasChars {
		return nil, errors.InvalidInput(errors.PhaseSource, "json sources must be character based")
	}
	c.mu.Lock()
	c.initialized[lang] = true
	c.mu.Unlock()
	c.engine.cacheSource(s)
	return s, nil
}

func (d contextDispatch) Close(r any, cancelIfExecuting bool) error {
	return contextOf(r).close(cancelIfExecuting)
}

// Interrupt waits for running executions to observe the interrupt.
func (d contextDispatch) Interrupt(r any, timeout time.Duration) (bool, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if c.running.Load() == 0 {
		return true, nil
	}
	c.interrupted.Store(true)

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
	return true, nil
}

func (d contextDispatch) AsValue(r any, hostValue any) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	if api, ok := d.b.api(); ok {
		if ref, ok := api.ValueRef(hostValue); ok {
			return ref, nil
		}
	}
	return c.scope.wrap(hostValue), nil
}

func (d contextDispatch) Enter(r any) error {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return err
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
			return nil
		}
	}
}

func (d contextDispatch) Bindings(r any, lang string) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	if _, err := c.requireLanguage(lang); err != nil {
		return impl.ValueRef{}, err
	}
	c.mu.Lock()
	m, ok := c.bindings[lang]
	if !ok {
		m = newBindings()
		c.bindings[lang] = m
	}
	c.mu.Unlock()
	return c.scope.wrap(m), nil
}

func (d contextDispatch) PolyglotBindings(r any) (impl.ValueRef, error) {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return impl.ValueRef{}, err
	}
	return c.scope.wrap(c.polyglot), nil
}

func (d contextDispatch) ResetLimits(r any) error {
	c := contextOf(r)
	c.statements.Store(0)
	c.limitFired.Store(false)
	return nil
}

func (d contextDispatch) Safepoint(r any) error {
	c := contextOf(r)
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.safepoint()
}
