package polyglot

import (
	"context"
	"slices"
	"sync"
)

var active struct {
	mu      sync.Mutex
	engines []*Engine
	entered []*Context
}

func trackEngine(e *Engine) {
	active.mu.Lock()
	defer active.mu.Unlock()
	active.engines = append(active.engines, e)
}

func untrackEngine(e *Engine) {
	active.mu.Lock()
	defer active.mu.Unlock()
	active.engines = slices.DeleteFunc(active.engines, func(x *Engine) bool { return x == e })
	active.entered = slices.DeleteFunc(active.entered, func(c *Context) bool { return c.engine == e })
}

func pushEntered(c *Context) {
	active.mu.Lock()
	defer active.mu.Unlock()
	active.entered = append(active.entered, c)
}

// popEntered removes the innermost entry of c.
func popEntered(c *Context) {
	active.mu.Lock()
	defer active.mu.Unlock()
	for i := len(active.entered) - 1; i >= 0; i-- {
		if active.entered[i] == c {
			active.entered = slices.Delete(active.entered, i, i+1)
			return
		}
	}
}

func dropEntered(c *Context) {
	active.mu.Lock()
	defer active.mu.Unlock()
	active.entered = slices.DeleteFunc(active.entered, func(x *Context) bool { return x == c })
}

// ActiveEngines returns the engines created and not yet closed, oldest
// first.
func ActiveEngines() []*Engine {
	active.mu.Lock()
	defer active.mu.Unlock()
	return slices.Clone(active.engines)
}

type currentKey struct{}

// WithCurrent returns a copy of parent that carries c as the current
// context.
func WithCurrent(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, currentKey{}, c)
}

// CurrentContext returns the context carried by ctx. Without one it falls
// back to the innermost context entered with Enter and not yet left.
func CurrentContext(ctx context.Context) (*Context, bool) {
	if ctx != nil {
		if c, ok := ctx.Value(currentKey{}).(*Context); ok && c != nil {
			return c, true
		}
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	if n := len(active.entered); n > 0 {
		return active.entered[n-1], true
	}
	return nil, false
}
