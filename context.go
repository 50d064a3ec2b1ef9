package polyglot

import (
	"time"

	"github.com/wippyai/polyglot/impl"
)

// Context is a handle to an isolated execution context of an engine.
type Context struct {
	ref    impl.ContextRef
	engine *Engine
}

// Engine returns the engine the context was created on.
func (c *Context) Engine() *Engine { return c.engine }

// Eval evaluates src in the language of the source.
func (c *Context) Eval(src *Source) (*Value, error) {
	ref, err := c.ref.Dispatch.Eval(c.ref.Receiver, src.Language(), src.ref)
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

// EvalString evaluates code of language.
func (c *Context) EvalString(language, code string) (*Value, error) {
	chain := impl.DefaultChain()
	if c.engine != nil {
		chain = c.engine.chain
	}
	src, err := buildSource(chain, SourceConfig{Language: language, Content: code})
	if err != nil {
		return nil, err
	}
	return c.Eval(src)
}

// Parse parses src without running it. The result is executable.
func (c *Context) Parse(src *Source) (*Value, error) {
	ref, err := c.ref.Dispatch.Parse(c.ref.Receiver, src.Language(), src.ref)
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

// InitializeLanguage initializes language and reports whether this call
// did the initialization.
func (c *Context) InitializeLanguage(language string) (bool, error) {
	return c.ref.Dispatch.InitializeLanguage(c.ref.Receiver, language)
}

// AsValue wraps a Go value for use with guest code.
func (c *Context) AsValue(v any) (*Value, error) {
	ref, err := c.ref.Dispatch.AsValue(c.ref.Receiver, v)
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

// Bindings returns the top-level scope of language.
func (c *Context) Bindings(language string) (*Value, error) {
	ref, err := c.ref.Dispatch.Bindings(c.ref.Receiver, language)
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

// PolyglotBindings returns the scope shared by every language.
func (c *Context) PolyglotBindings() (*Value, error) {
	ref, err := c.ref.Dispatch.PolyglotBindings(c.ref.Receiver)
	if err != nil {
		return nil, err
	}
	return newValue(ref), nil
}

// Interrupt stops running guest code and reports whether it stopped within
// timeout. A zero timeout waits until it stops.
func (c *Context) Interrupt(timeout time.Duration) (bool, error) {
	return c.ref.Dispatch.Interrupt(c.ref.Receiver, timeout)
}

func (c *Context) ResetLimits() error { return c.ref.Dispatch.ResetLimits(c.ref.Receiver) }
func (c *Context) Safepoint() error   { return c.ref.Dispatch.Safepoint(c.ref.Receiver) }

// Enter makes c the current context until the matching Leave.
func (c *Context) Enter() error {
	if err := c.ref.Dispatch.Enter(c.ref.Receiver); err != nil {
		return err
	}
	pushEntered(c)
	return nil
}

func (c *Context) Leave() error {
	if err := c.ref.Dispatch.Leave(c.ref.Receiver); err != nil {
		return err
	}
	popEntered(c)
	return nil
}

// Close closes the context. With cancelIfExecuting running guest code is
// interrupted first.
func (c *Context) Close(cancelIfExecuting bool) error {
	if err := c.ref.Dispatch.Close(c.ref.Receiver, cancelIfExecuting); err != nil {
		return err
	}
	dropEntered(c)
	return nil
}
