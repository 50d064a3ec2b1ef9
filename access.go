package polyglot

import (
	"io"
	"reflect"
	"sort"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// HostAccess is the policy for what guest code may do with host values.
// A nil policy is HostAccessAll.
type HostAccess struct {
	// Implementable lists the interface types guest values may implement.
	Implementable []reflect.Type

	AllowPublicAccess       bool
	AllowAllImplementations bool
	AllowArrayAccess        bool
	AllowListAccess         bool
	AllowBufferAccess       bool
	AllowIterableAccess     bool
	AllowIteratorAccess     bool
	AllowMapAccess          bool
}

var (
	// HostAccessAll grants every host access.
	HostAccessAll = &HostAccess{
		AllowPublicAccess:       true,
		AllowAllImplementations: true,
		AllowArrayAccess:        true,
		AllowListAccess:         true,
		AllowBufferAccess:       true,
		AllowIterableAccess:     true,
		AllowIteratorAccess:     true,
		AllowMapAccess:          true,
	}

	// HostAccessNone exposes host values as opaque objects.
	HostAccessNone = &HostAccess{}
)

func hostAccessOf(v any) *HostAccess {
	if h, ok := v.(*HostAccess); ok && h != nil {
		return h
	}
	return HostAccessAll
}

func (h *HostAccess) implementable(t reflect.Type) bool {
	if h.AllowAllImplementations {
		return true
	}
	for _, it := range h.Implementable {
		if it == t {
			return true
		}
	}
	return false
}

// policy returns h as the untyped policy a backend request carries, so a
// nil policy stays nil.
func (h *HostAccess) policy() any {
	if h == nil {
		return nil
	}
	return h
}

// AllLanguages in a polyglot access list stands for every permitted
// language.
const AllLanguages = "*"

// PolyglotAccess is the policy for cross-language evaluation and polyglot
// bindings. A nil policy is PolyglotAccessNone.
type PolyglotAccess struct {
	// Eval maps a language to the languages it may evaluate code of.
	Eval map[string][]string

	// Bindings lists the languages that may use the polyglot bindings.
	Bindings []string

	All bool
}

var (
	PolyglotAccessAll  = &PolyglotAccess{All: true}
	PolyglotAccessNone = &PolyglotAccess{}
)

func polyglotAccessOf(v any) *PolyglotAccess {
	if p, ok := v.(*PolyglotAccess); ok && p != nil {
		return p
	}
	return PolyglotAccessNone
}

func (p *PolyglotAccess) policy() any {
	if p == nil {
		return nil
	}
	return p
}

func (p *PolyglotAccess) evalAccess(language string) []string {
	if p.All {
		return []string{AllLanguages}
	}
	return sorted(p.Eval[language])
}

func (p *PolyglotAccess) bindingsAccess() []string {
	if p.All {
		return []string{AllLanguages}
	}
	return sorted(p.Bindings)
}

// validate checks that every language the policy names is permitted. An
// empty permitted list permits every language.
func (p *PolyglotAccess) validate(permitted []string) error {
	if p.All || len(permitted) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(permitted)+1)
	allowed[AllLanguages] = true
	for _, l := range permitted {
		allowed[l] = true
	}

	check := func(lang string) error {
		if allowed[lang] {
			return nil
		}
		return errors.New(errors.PhaseContext, errors.KindInvalidInput).
			Path("polyglot-access", lang).
			Detail("language %q is not permitted by the context", lang).
			Build()
	}
	for from, targets := range p.Eval {
		if err := check(from); err != nil {
			return err
		}
		for _, to := range targets {
			if err := check(to); err != nil {
				return err
			}
		}
	}
	for _, l := range p.Bindings {
		if err := check(l); err != nil {
			return err
		}
	}
	return nil
}

func sorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// ResourceLimits bounds guest execution in a context.
type ResourceLimits struct {
	// SourceFilter selects the sources whose executions count; nil counts
	// all of them.
	SourceFilter func(*Source) bool

	// OnLimit is called once when the limit is exceeded.
	OnLimit func(*Context)

	// StatementLimit is the number of executions allowed; 0 disables the
	// limit.
	StatementLimit int64
}

func (l *ResourceLimits) request() *impl.ResourceLimits {
	if l == nil {
		return nil
	}
	out := &impl.ResourceLimits{StatementLimit: l.StatementLimit}
	if f := l.SourceFilter; f != nil {
		out.SourceFilter = func(source any) bool {
			s, ok := source.(*Source)
			return ok && f(s)
		}
	}
	if f := l.OnLimit; f != nil {
		out.OnLimit = func(context any) {
			c, _ := context.(*Context)
			f(c)
		}
	}
	return out
}

// Redirect says where a subprocess stream goes.
type Redirect struct {
	w       io.Writer
	inherit bool
}

var (
	// RedirectInherit connects the stream to the context's own stream.
	RedirectInherit = Redirect{inherit: true}

	// RedirectDiscard drops the stream.
	RedirectDiscard = Redirect{w: io.Discard}
)

// RedirectStream sends the stream to w.
func RedirectStream(w io.Writer) Redirect {
	if w == nil {
		return RedirectInherit
	}
	return Redirect{w: w}
}

// Writer returns the stream output goes to, if the redirect names one.
func (r Redirect) Writer() (io.Writer, bool) { return r.w, r.w != nil }

// Inherit reports whether the redirect uses the context's stream.
func (r Redirect) Inherit() bool { return r.inherit }

func redirectOf(v any) Redirect {
	switch r := v.(type) {
	case Redirect:
		return r
	case *Redirect:
		if r != nil {
			return *r
		}
	case io.Writer:
		return RedirectStream(r)
	}
	return RedirectInherit
}

// ProcessCommand describes a subprocess guest code asks to start.
type ProcessCommand struct {
	Command []string
	Dir     string
	Env     map[string]string
	Input   Redirect
	Output  Redirect
	Error   Redirect

	RedirectErrorStream bool
}

// ProcessHandler starts subprocesses on behalf of a context.
type ProcessHandler func(cmd *ProcessCommand) error
