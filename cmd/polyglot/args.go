package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/polyglot/convert"
)

var witPrimitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"s8":     wit.S8{},
	"u8":     wit.U8{},
	"s16":    wit.S16{},
	"u16":    wit.U16{},
	"s32":    wit.S32{},
	"u32":    wit.U32{},
	"s64":    wit.S64{},
	"u64":    wit.U64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// witType resolves a WIT type name: a primitive or list<T>.
func witType(name string) (wit.Type, bool) {
	if t, ok := witPrimitives[name]; ok {
		return t, true
	}
	inner, ok := strings.CutPrefix(name, "list<")
	if !ok {
		return nil, false
	}
	inner, ok = strings.CutSuffix(inner, ">")
	if !ok {
		return nil, false
	}
	elem, ok := witType(inner)
	if !ok {
		return nil, false
	}
	return &wit.TypeDef{Kind: &wit.List{Type: elem}}, true
}

// parseArgs splits comma-separated arguments. An argument of the form
// TYPE:VALUE with a WIT type name is converted to that type; list elements
// are separated by spaces.
func parseArgs(s string) ([]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		name, value, ok := strings.Cut(p, ":")
		t, typed := witType(name)
		if !ok || !typed {
			out[i] = parseArg(p)
			continue
		}
		v, err := typedArg(t, value)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func typedArg(t wit.Type, value string) (any, error) {
	if _, ok := t.(wit.Char); ok {
		r, size := utf8.DecodeRuneInString(value)
		if r == utf8.RuneError || size != len(value) {
			return nil, fmt.Errorf("char %q is not a single character", value)
		}
		return uint32(r), nil
	}
	d, err := convert.ForWIT(t)
	if err != nil {
		return nil, err
	}
	return convert.Literal(d, value)
}

// parseArg reads integers as int64, decimals as float64, true/false as
// bool and anything else as a string.
func parseArg(s string) any {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
