package host

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"
)

// parsed is a checked source that evaluates when executed.
type parsed struct {
	c   *execContext
	src *source
}

// evalJSON evaluates a JSON source into host values, notifying listeners
// and counting one statement.
func (c *execContext) evalJSON(s *source) (any, error) {
	end, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer end()

	ev := &event{
		name:      s.name,
		root:      true,
		statement: true,
		location:  s.whole(),
		scope:     c.scope,
	}
	c.engine.enter(ev)

	v, err := c.runJSON(s)
	if err != nil {
		ev.err = err
	} else {
		ev.ret, ev.hasRet = v, true
	}
	c.engine.exit(ev)
	return v, err
}

func (c *execContext) runJSON(s *source) (any, error) {
	if err := c.step(s); err != nil {
		return nil, err
	}
	c.engine.counter.evaluations.Add(1)
	return c.decodeJSON(s)
}

func (c *execContext) decodeJSON(s *source) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s.chars))
	if c.opts.useNumber {
		dec.UseNumber()
	}

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, c.syntaxError(s, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		off := int(dec.InputOffset())
		return nil, c.engine.backend.raise(&guestError{
			msg:      "invalid character after top-level value",
			kind:     excSyntax,
			location: s.section(off, 1),
			frames:   []frame{{root: s.name, lang: jsonLanguage, location: s.section(off, 1)}},
		})
	}
	if depth(v) > c.opts.maxDepth {
		return nil, c.engine.backend.raise(&guestError{
			msg:  "maximum nesting depth exceeded",
			kind: excResourceExhausted,
		})
	}
	if c.opts.useNumber {
		v = numbers(v)
	}
	return v, nil
}

func (c *execContext) syntaxError(s *source, err error) error {
	g := &guestError{msg: err.Error(), kind: excSyntax}

	var syn *json.SyntaxError
	switch {
	case stderrors.As(err, &syn):
		off := int(syn.Offset) - 1
		if off < 0 {
			off = 0
		}
		g.location = s.section(off, 1)
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		g.kind |= excIncomplete
		g.location = s.section(len(s.chars), 0)
	}
	if strings.TrimSpace(s.chars) == "" || strings.HasPrefix(g.msg, "unexpected end") {
		g.kind |= excIncomplete
	}
	g.frames = []frame{{root: s.name, lang: jsonLanguage, location: g.location}}
	return c.engine.backend.raise(g)
}

// numbers replaces json.Number with int64 when integral, float64 otherwise.
func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = numbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = numbers(x[k])
		}
	}
	return v
}

func depth(v any) int {
	switch x := v.(type) {
	case []any:
		d := 0
		for _, e := range x {
			d = max(d, depth(e))
		}
		return d + 1
	case map[string]any:
		d := 0
		for _, e := range x {
			d = max(d, depth(e))
		}
		return d + 1
	}
	return 0
}
