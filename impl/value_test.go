package impl

import (
	"encoding/binary"
	stderrors "errors"
	"testing"

	"github.com/wippyai/polyglot/errors"
)

func TestBaseValueDispatch_Unsupported(t *testing.T) {
	var d ValueDispatch = BaseValueDispatch{}
	r := struct{ n int }{1}

	if d.Caps(r) != 0 {
		t.Errorf("Caps = %b, want 0", d.Caps(r))
	}

	ops := map[string]func() error{
		"ArrayElement": func() error { _, err := d.ArrayElement(r, 0); return err },
		"BufferSize":   func() error { _, err := d.BufferSize(r); return err },
		"ReadBufferInt32": func() error {
			_, err := d.ReadBufferInt32(r, binary.BigEndian, 0)
			return err
		},
		"Member":         func() error { _, err := d.Member(r, "x"); return err },
		"Execute":        func() error { _, err := d.Execute(r, nil); return err },
		"NewInstance":    func() error { _, err := d.NewInstance(r, nil); return err },
		"AsString":       func() error { _, err := d.AsString(r); return err },
		"AsInt32":        func() error { _, err := d.AsInt32(r); return err },
		"AsDuration":     func() error { _, err := d.AsDuration(r); return err },
		"ThrowException": func() error { return d.ThrowException(r) },
		"Iterator":       func() error { _, err := d.Iterator(r); return err },
		"HashSize":       func() error { _, err := d.HashSize(r); return err },
	}
	for name, op := range ops {
		err := op()
		if !stderrors.Is(err, errors.ErrUnsupportedOperation) {
			t.Errorf("%s: expected unsupported operation, got %v", name, err)
			continue
		}
		var e *errors.Error
		if stderrors.As(err, &e) && (len(e.Path) != 1 || e.Path[0] != name) {
			t.Errorf("%s: error path = %v", name, e.Path)
		}
	}

	if d.HasMember(r, "x") {
		t.Error("HasMember should be false")
	}
	if d.Fits(r, NumberInt8) {
		t.Error("Fits should be false")
	}
	if _, ok := d.MetaObject(r); ok {
		t.Error("MetaObject should be absent")
	}
}

func TestSameReceiver(t *testing.T) {
	a := &struct{}{}
	tests := []struct {
		name string
		x, y any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", a, nil, false},
		{"same pointer", a, a, true},
		{"equal ints", 3, 3, true},
		{"int vs int64", 3, int64(3), false},
		{"slices", []int{1}, []int{1}, false},
		{"maps", map[string]int{}, map[string]int{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameReceiver(tt.x, tt.y); got != tt.want {
				t.Errorf("SameReceiver = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueCaps_Has(t *testing.T) {
	c := CapNumber | CapString
	if !c.Has(CapNumber) || !c.Has(CapNumber|CapString) {
		t.Error("Has missed a set flag")
	}
	if c.Has(CapNumber | CapMembers) {
		t.Error("Has accepted a partially set mask")
	}
}

func TestContextRequest_LanguagePermitted(t *testing.T) {
	all := &ContextRequest{}
	if !all.LanguagePermitted("json") {
		t.Error("empty list must permit every language")
	}
	some := &ContextRequest{PermittedLanguages: []string{"wasm"}}
	if some.LanguagePermitted("json") || !some.LanguagePermitted("wasm") {
		t.Error("permitted list not honoured")
	}
}
