package convert

import (
	"strconv"
	"strings"

	"github.com/wippyai/polyglot/errors"
)

// Literal reads s as a Go value of the type d describes: integers in Go
// syntax with range checks, floats, true/false, strings as is and arrays as
// space-separated elements.
func Literal(d *Descriptor, s string) (any, error) {
	if d == nil {
		return nil, errors.InvalidInput(errors.PhaseConvert, "descriptor is required")
	}
	switch d.kind {
	case KindBool:
		b, err := strconv.ParseBool(s)
		return b, literalErr(d, s, err)
	case KindSint8:
		n, err := strconv.ParseInt(s, 0, 8)
		return int8(n), literalErr(d, s, err)
	case KindSint16:
		n, err := strconv.ParseInt(s, 0, 16)
		return int16(n), literalErr(d, s, err)
	case KindSint32:
		n, err := strconv.ParseInt(s, 0, 32)
		return int32(n), literalErr(d, s, err)
	case KindSint64:
		n, err := strconv.ParseInt(s, 0, 64)
		return n, literalErr(d, s, err)
	case KindUint8:
		n, err := strconv.ParseUint(s, 0, 8)
		return uint8(n), literalErr(d, s, err)
	case KindUint16:
		n, err := strconv.ParseUint(s, 0, 16)
		return uint16(n), literalErr(d, s, err)
	case KindUint32:
		n, err := strconv.ParseUint(s, 0, 32)
		return uint32(n), literalErr(d, s, err)
	case KindUint64:
		n, err := strconv.ParseUint(s, 0, 64)
		return n, literalErr(d, s, err)
	case KindPointer:
		n, err := strconv.ParseUint(s, 0, 64)
		return uintptr(n), literalErr(d, s, err)
	case KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), literalErr(d, s, err)
	case KindDouble:
		f, err := strconv.ParseFloat(s, 64)
		return f, literalErr(d, s, err)
	case KindString:
		return s, nil
	case KindArray:
		fields := strings.Fields(s)
		out := make([]any, len(fields))
		for i, f := range fields {
			v, err := Literal(d.elem, f)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
		Descriptor(d.String()).
		Value(s).
		Detail("no literal form").
		Build()
}

func literalErr(d *Descriptor, s string, err error) error {
	if err == nil {
		return nil
	}
	return errors.New(errors.PhaseConvert, errors.KindInvalidInput).
		Descriptor(d.String()).
		Value(s).
		Cause(err).
		Detail("not a %s literal", d.String()).
		Build()
}
