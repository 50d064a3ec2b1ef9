package host

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

func TestContext_EvalJSON(t *testing.T) {
	c := newTestContext(t, nil, nil)

	ref, err := eval(t, c, `{"name": "x", "items": [1, 2, 3], "ok": true, "none": null}`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d, r := ref.Dispatch, ref.Receiver
	if !d.Caps(r).Has(impl.CapHashEntries | impl.CapMembers) {
		t.Fatalf("object caps: %b", d.Caps(r))
	}

	name, err := d.Member(r, "name")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if s, err := name.Dispatch.AsString(name.Receiver); err != nil || s != "x" {
		t.Fatalf("name = %q, %v", s, err)
	}

	items, _ := d.Member(r, "items")
	if n, err := items.Dispatch.ArraySize(items.Receiver); err != nil || n != 3 {
		t.Fatalf("ArraySize = %d, %v", n, err)
	}
	second, err := items.Dispatch.ArrayElement(items.Receiver, 1)
	if err != nil {
		t.Fatalf("ArrayElement: %v", err)
	}
	if i, err := second.Dispatch.AsInt32(second.Receiver); err != nil || i != 2 {
		t.Fatalf("items[1] = %d, %v", i, err)
	}

	none, _ := d.Member(r, "none")
	if !none.Dispatch.Caps(none.Receiver).Has(impl.CapNull) {
		t.Fatal("null member is not null")
	}
	keys, _ := d.MemberKeys(r)
	if len(keys) != 4 || keys[0] != "items" {
		t.Fatalf("keys: %v", keys)
	}
}

func TestContext_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		incomplete bool
	}{
		{"unterminated object", `{"a":`, true},
		{"empty", ``, true},
		{"trailing comma", `[1,]`, false},
		{"trailing value", `1 2`, false},
		{"bad literal", `tru`, true},
		{"bad token", `{"a" 1}`, false},
	}
	c := newTestContext(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval(t, c, tt.code)
			g := guestErr(t, err)
			if g.kind&excSyntax == 0 {
				t.Fatalf("not a syntax error: %v", g)
			}
			if got := g.kind&excIncomplete != 0; got != tt.incomplete {
				t.Fatalf("incomplete = %v, want %v (%v)", got, tt.incomplete, g)
			}
			if g.location == nil || len(g.frames) != 1 {
				t.Fatalf("missing location or frames: %+v", g)
			}
		})
	}
}

func TestContext_MaxDepth(t *testing.T) {
	c := newTestContext(t, nil, &impl.ContextRequest{Options: map[string]string{optMaxDepth: "2"}})

	if _, err := eval(t, c, `[[1]]`); err != nil {
		t.Fatalf("Eval within limit: %v", err)
	}
	_, err := eval(t, c, `[[[1]]]`)
	if g := guestErr(t, err); g.kind&excResourceExhausted == 0 {
		t.Fatalf("expected resource exhausted, got %v", g)
	}
}

func TestContext_UseNumber(t *testing.T) {
	e := newTestEngine(t, nil, &impl.EngineRequest{Options: map[string]string{optUseNumber: "true"}})
	c := newTestContext(t, e, nil)

	ref, err := eval(t, c, `[12345678901234567, 1.5]`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	items := valueOf(ref.Receiver).v.([]any)
	if items[0] != int64(12345678901234567) || items[1] != 1.5 {
		t.Fatalf("numbers: %#v", items)
	}
}

func TestContext_Parse(t *testing.T) {
	c := newTestContext(t, nil, nil)
	b := c.engine.backend

	ref, err := b.contexts.Parse(c, jsonLanguageID, jsonSource(t, b, `"hello"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ref.Dispatch.Caps(ref.Receiver).Has(impl.CapExecutable) {
		t.Fatal("parsed source is not executable")
	}
	loc, ok := ref.Dispatch.SourceLocation(ref.Receiver)
	if !ok || loc.Dispatch.Code(loc.Receiver) != `"hello"` {
		t.Fatal("parsed source has no location")
	}
	out, err := ref.Dispatch.Execute(ref.Receiver, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if s, _ := out.Dispatch.AsString(out.Receiver); s != "hello" {
		t.Fatalf("got %q", s)
	}

	if _, err := b.contexts.Parse(c, jsonLanguageID, jsonSource(t, b, `[`)); err == nil {
		t.Fatal("Parse accepted invalid source")
	}
}

func TestContext_LanguageChecks(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	if _, err := e.backend.engines.CreateContext(e, &impl.ContextRequest{PermittedLanguages: []string{"python"}}); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	c := newTestContext(t, e, &impl.ContextRequest{PermittedLanguages: []string{jsonLanguageID}})
	first, err := e.backend.contexts.InitializeLanguage(c, jsonLanguageID)
	if err != nil || !first {
		t.Fatalf("InitializeLanguage = %v, %v", first, err)
	}
	again, _ := e.backend.contexts.InitializeLanguage(c, jsonLanguageID)
	if again {
		t.Fatal("language initialized twice")
	}
	if _, err := e.backend.contexts.Eval(c, "python", jsonSource(t, e.backend, "1")); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContext_StatementLimit(t *testing.T) {
	var fired int
	var handle any
	limits := &impl.ResourceLimits{
		StatementLimit: 2,
		OnLimit: func(ctx any) {
			fired++
			handle = ctx
		},
	}
	c := newTestContext(t, nil, &impl.ContextRequest{ResourceLimits: limits, Handle: "ctx"})

	for i := 0; i < 2; i++ {
		if _, err := eval(t, c, "1"); err != nil {
			t.Fatalf("Eval %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		_, err := eval(t, c, "1")
		g := guestErr(t, err)
		if g.kind&excResourceExhausted == 0 || g.kind&excCancelled == 0 {
			t.Fatalf("expected resource exhausted, got %v", g)
		}
	}
	if fired != 1 || handle != "ctx" {
		t.Fatalf("OnLimit fired %d times with %v", fired, handle)
	}

	if err := c.engine.backend.contexts.ResetLimits(c); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}
	if _, err := eval(t, c, "1"); err != nil {
		t.Fatalf("Eval after reset: %v", err)
	}
}

func TestContext_Close(t *testing.T) {
	c := newTestContext(t, nil, nil)
	b := c.engine.backend

	if err := b.contexts.Close(c, false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := eval(t, c, "1"); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if err := b.contexts.Close(c, false); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestContext_Interrupt(t *testing.T) {
	c := newTestContext(t, nil, nil)
	b := c.engine.backend

	if ok, err := b.contexts.Interrupt(c, time.Second); err != nil || !ok {
		t.Fatalf("idle Interrupt = %v, %v", ok, err)
	}

	started := make(chan struct{})
	spin := c.scope.wrap(func() error {
		close(started)
		for {
			if err := b.contexts.Safepoint(c); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := spin.Dispatch.Execute(spin.Receiver, nil)
		done <- err
	}()
	<-started

	ok, err := b.contexts.Interrupt(c, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("Interrupt = %v, %v", ok, err)
	}
	g := guestErr(t, <-done)
	if g.kind&excInterrupted == 0 {
		t.Fatalf("expected interrupted, got %v", g)
	}

	if _, err := eval(t, c, "1"); err != nil {
		t.Fatalf("context unusable after interrupt: %v", err)
	}
}

func TestContext_CloseWhileExecuting(t *testing.T) {
	c := newTestContext(t, nil, nil)
	b := c.engine.backend

	started := make(chan struct{})
	release := make(chan struct{})
	block := c.scope.wrap(func() {
		close(started)
		<-release
	})
	done := make(chan error, 1)
	go func() { done <- block.Dispatch.ExecuteVoid(block.Receiver, nil) }()
	<-started

	if err := b.contexts.Close(c, false); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected refusal to close, got %v", err)
	}
	if err := b.contexts.Close(c, true); err != nil {
		t.Fatalf("Close with cancel: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestContext_Bindings(t *testing.T) {
	c := newTestContext(t, nil, nil)
	d := c.engine.backend.contexts

	first, err := d.Bindings(c, jsonLanguageID)
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if err := first.Dispatch.PutMember(first.Receiver, "answer", 42); err != nil {
		t.Fatalf("PutMember: %v", err)
	}
	second, _ := d.Bindings(c, jsonLanguageID)
	v, err := second.Dispatch.Member(second.Receiver, "answer")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if i, _ := v.Dispatch.AsInt64(v.Receiver); i != 42 {
		t.Fatalf("answer = %d", i)
	}
	if removed, _ := second.Dispatch.RemoveMember(second.Receiver, "answer"); !removed {
		t.Fatal("RemoveMember reported nothing removed")
	}

	pb, err := d.PolyglotBindings(c)
	if err != nil {
		t.Fatalf("PolyglotBindings: %v", err)
	}
	if pb.Dispatch.HasMember(pb.Receiver, "answer") {
		t.Fatal("polyglot bindings share language bindings")
	}
}

func TestContext_EnterLeave(t *testing.T) {
	c := newTestContext(t, nil, nil)
	d := c.engine.backend.contexts

	if err := d.Leave(c); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := d.Enter(c); err != nil {
			t.Fatalf("Enter: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := d.Leave(c); err != nil {
			t.Fatalf("Leave: %v", err)
		}
	}
}

func TestContext_AsValue(t *testing.T) {
	c := newTestContext(t, nil, nil)
	ref, err := c.engine.backend.contexts.AsValue(c, []int{1, 2})
	if err != nil {
		t.Fatalf("AsValue: %v", err)
	}
	if n, _ := ref.Dispatch.ArraySize(ref.Receiver); n != 2 {
		t.Fatalf("ArraySize = %d", n)
	}
}
