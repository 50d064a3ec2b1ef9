package convert

import (
	"github.com/wippyai/polyglot/convert/internal/handles"
	"github.com/wippyai/polyglot/errors"
)

// Boundary is one native-interop boundary: the converter factory table and
// the object handle table its sites share.
type Boundary struct {
	factories *[numKinds]factory
	handles   *handles.Table
}

// NewBoundary creates a boundary with an empty object table.
func NewBoundary() *Boundary {
	return &Boundary{
		factories: &defaultFactories,
		handles:   handles.New(),
	}
}

// NewSite creates a call site on the boundary.
func (b *Boundary) NewSite() *Site {
	return &Site{boundary: b}
}

// Convert performs the full lookup for d and converts v. It is the path a
// site takes once it has seen too many descriptors.
func (b *Boundary) Convert(dir Direction, d *Descriptor, v any) (any, error) {
	c, err := b.converter(dir, d)
	if err != nil {
		return nil, err
	}
	return c(v)
}

func (b *Boundary) converter(dir Direction, d *Descriptor) (Converter, error) {
	if d == nil {
		return nil, errors.InvalidInput(errors.PhaseConvert, "descriptor is required")
	}
	if d.kind >= numKinds {
		return nil, errors.New(errors.PhaseConvert, errors.KindUnsupportedType).
			Descriptor(d.String()).
			Detail("unknown descriptor kind").
			Build()
	}
	f := b.factories[d.kind]
	if dir == ToNative {
		return f.to(b, d)
	}
	return f.from(b, d)
}

// Object returns the Go value behind a native object handle.
func (b *Boundary) Object(handle uint64) (any, bool) {
	return b.handles.Get(handles.Handle(handle))
}

// Release drops one reference to a native object handle.
func (b *Boundary) Release(handle uint64) bool {
	return b.handles.Release(handles.Handle(handle))
}

// Objects returns the number of live object handles.
func (b *Boundary) Objects() int {
	return b.handles.Len()
}

// Close drops every object handle.
func (b *Boundary) Close() error {
	return b.handles.Close()
}
