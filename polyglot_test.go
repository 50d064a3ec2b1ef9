package polyglot

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/wippyai/polyglot/backend/host"
	"github.com/wippyai/polyglot/backend/wasm"
	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// addModule exports add(i32, i32) i32 and a one-page memory "memory".
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: (i32, i32) -> i32
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// func
	0x03, 0x02, 0x01, 0x00,
	// memory: min 1
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export: "add" func 0, "memory" memory 0
	0x07, 0x10, 0x02,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	// code: local.get 0, local.get 1, i32.add
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func newTestChain(t *testing.T, backends ...impl.Backend) *impl.Chain {
	t.Helper()
	c, err := impl.NewChain(impl.NewCapabilities(), backends...)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	if cfg.Chain == nil {
		cfg.Chain = newTestChain(t, wasm.New(), host.New())
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(true) })
	return e
}

func newTestContext(t *testing.T, e *Engine, cfg ContextConfig) *Context {
	t.Helper()
	c, err := e.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(true) })
	return c
}

func evalAdd(t *testing.T, c *Context) *Value {
	t.Helper()
	src, err := c.Engine().BuildSource(SourceConfig{Language: "wasm", Name: "add.wasm", Content: addModule})
	if err != nil {
		t.Fatalf("BuildSource: %v", err)
	}
	mod, err := c.Eval(src)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	return mod
}

type otherAPI struct{ apiAccess }

func TestRegister_Providers(t *testing.T) {
	caps := impl.NewCapabilities()
	if err := register(caps); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := register(caps); err != nil {
		t.Fatalf("second register: %v", err)
	}

	api, err := caps.API()
	if err != nil {
		t.Fatalf("API: %v", err)
	}
	if _, ok := api.(apiAccess); !ok {
		t.Fatalf("API provider is %T", api)
	}
	if _, err := caps.Management(); err != nil {
		t.Fatalf("Management: %v", err)
	}

	if caps.Registered(impl.CapabilityIO) {
		t.Fatal("I/O provider registered before first use")
	}
	io, err := caps.IO()
	if err != nil {
		t.Fatalf("IO: %v", err)
	}
	if _, ok := io.(ioAccess); !ok {
		t.Fatalf("IO provider is %T", io)
	}
	if !caps.Registered(impl.CapabilityIO) {
		t.Fatal("I/O provider not registered after first use")
	}

	err = caps.Register(impl.CapabilityAPIAccess, otherAPI{})
	if !stderrors.Is(err, errors.ErrDuplicateCapability) {
		t.Fatalf("expected duplicate capability, got %v", err)
	}
}

func TestNewEngine_EmptyChain(t *testing.T) {
	_, err := NewEngine(EngineConfig{Chain: newTestChain(t)})
	if !stderrors.Is(err, errors.ErrNoCompatibleBackend) {
		t.Fatalf("expected no compatible backend, got %v", err)
	}
}

func TestNewEngine_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]string
		want    string
	}{
		{"defaults", nil, wasm.Name},
		{"wasm option", map[string]string{"wasm.Interpreter": "true"}, wasm.Name},
		{"host option", map[string]string{"json.UseNumber": "true"}, host.Name},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, EngineConfig{Options: tt.options})
			if got := e.Backend().Name(); got != tt.want {
				t.Fatalf("engine built by %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewEngine_SystemOptions(t *testing.T) {
	t.Setenv(OptionsEnv, "json.UseNumber=true")

	e := newTestEngine(t, EngineConfig{UseSystemProperties: true})
	if e.Backend().Name() != host.Name {
		t.Fatalf("system options ignored: built by %s", e.Backend().Name())
	}
	e = newTestEngine(t, EngineConfig{})
	if e.Backend().Name() != wasm.Name {
		t.Fatalf("system options used without UseSystemProperties: built by %s", e.Backend().Name())
	}
}

func TestMergeOptions(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		explicit map[string]string
		want     map[string]string
		wantErr  bool
	}{
		{"empty", "", nil, map[string]string{}, false},
		{"system only", "a=1, b = 2", nil, map[string]string{"a": "1", "b": "2"}, false},
		{"explicit wins", "a=1,b=2", map[string]string{"a": "x"}, map[string]string{"a": "x", "b": "2"}, false},
		{"empty entries", ",a=1,,", nil, map[string]string{"a": "1"}, false},
		{"missing value", "a", nil, nil, true},
		{"missing key", "=1", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OptionsEnv, tt.env)
			got, err := mergeOptions(tt.explicit, true)
			if tt.wantErr {
				if !stderrors.Is(err, errors.ErrInvalidInput) {
					t.Fatalf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("mergeOptions: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestEngine_Metadata(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})

	langs := e.Languages()
	for _, id := range []string{"wasm", "json"} {
		if _, ok := langs[id]; !ok {
			t.Fatalf("language %q missing from %v", id, langs)
		}
	}
	l, err := e.Language("wasm")
	if err != nil {
		t.Fatalf("Language: %v", err)
	}
	if l.ID() != "wasm" || l.DefaultMimeType() != "application/wasm" {
		t.Fatalf("got %s %s", l.ID(), l.DefaultMimeType())
	}
	if _, err := e.Language("cobol"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	opts := e.Options()
	for i := 1; i < len(opts); i++ {
		if opts[i-1].Name > opts[i].Name {
			t.Fatalf("options not sorted: %v", opts)
		}
	}
	if e.ImplementationName() == "" || e.Version() == "" {
		t.Fatal("missing implementation name or version")
	}
}

func TestLookupInstrument(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	inst, err := e.Instrument("counter")
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	counter, ok := LookupInstrument[*host.Counter](inst)
	if !ok {
		t.Fatal("counter service not found")
	}

	c := newTestContext(t, e, ContextConfig{})
	before := counter.Evaluations()
	if _, err := c.EvalString("json", `[1, 2]`); err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if counter.Evaluations() != before+1 {
		t.Fatalf("evaluations = %d, want %d", counter.Evaluations(), before+1)
	}

	if _, ok := LookupInstrument[string](inst); ok {
		t.Fatal("looked up a service the instrument does not expose")
	}
}

func TestContext_EvalWasm(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})
	mod := evalAdd(t, c)

	if !mod.HasMembers() || !mod.HasMember("add") {
		t.Fatalf("module has no add member: %s", mod)
	}
	sum, err := mod.Invoke("add", int32(1), int32(2))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if n, err := sum.AsInt32(); err != nil || n != 3 {
		t.Fatalf("add(1, 2) = %v, %v", n, err)
	}

	fn, err := mod.Member("add")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if !fn.CanExecute() {
		t.Fatal("function is not executable")
	}
	got, err := fn.Execute(int32(40), sum)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n, _ := got.AsInt32(); n != 43 {
		t.Fatalf("add(40, 3) = %d", n)
	}

	if len(e.CachedSources()) == 0 {
		t.Fatal("evaluated source not cached")
	}
}

func TestContext_EvalJSON(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})

	v, err := c.EvalString("json", `{"name": "demo", "items": [1, 2, 3]}`)
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	name, err := v.Member("name")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if s, _ := name.AsString(); s != "demo" {
		t.Fatalf("name = %q", s)
	}
	items, _ := v.Member("items")
	if n, err := items.ArraySize(); err != nil || n != 3 {
		t.Fatalf("ArraySize = %d, %v", n, err)
	}
	second, _ := items.ArrayElement(1)
	if n, _ := second.AsInt64(); n != 2 {
		t.Fatalf("items[1] = %d", n)
	}
}

func TestValue_BufferRoundTrip(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})

	mem, err := evalAdd(t, c).Member("memory")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	hostBuf, err := c.AsValue(make([]byte, 16))
	if err != nil {
		t.Fatalf("AsValue: %v", err)
	}

	orders := []binary.ByteOrder{binary.BigEndian, binary.LittleEndian}
	for name, buf := range map[string]*Value{"wasm memory": mem, "host bytes": hostBuf} {
		t.Run(name, func(t *testing.T) {
			if ok, err := buf.IsBufferWritable(); err != nil || !ok {
				t.Fatalf("IsBufferWritable = %v, %v", ok, err)
			}
			for _, order := range orders {
				if err := buf.WriteBufferInt16(order, 2, -2); err != nil {
					t.Fatalf("WriteBufferInt16: %v", err)
				}
				if got, _ := buf.ReadBufferInt16(order, 2); got != -2 {
					t.Fatalf("%v int16 = %d", order, got)
				}
				if err := buf.WriteBufferInt32(order, 4, 0x01020304); err != nil {
					t.Fatalf("WriteBufferInt32: %v", err)
				}
				if got, _ := buf.ReadBufferInt32(order, 4); got != 0x01020304 {
					t.Fatalf("%v int32 = %#x", order, got)
				}
				if err := buf.WriteBufferInt64(order, 8, -1<<40); err != nil {
					t.Fatalf("WriteBufferInt64: %v", err)
				}
				if got, _ := buf.ReadBufferInt64(order, 8); got != -1<<40 {
					t.Fatalf("%v int64 = %d", order, got)
				}
				if err := buf.WriteBufferFloat32(order, 0, 1.5); err != nil {
					t.Fatalf("WriteBufferFloat32: %v", err)
				}
				if got, _ := buf.ReadBufferFloat32(order, 0); got != 1.5 {
					t.Fatalf("%v float32 = %v", order, got)
				}
				if err := buf.WriteBufferFloat64(order, 8, -2.25); err != nil {
					t.Fatalf("WriteBufferFloat64: %v", err)
				}
				if got, _ := buf.ReadBufferFloat64(order, 8); got != -2.25 {
					t.Fatalf("%v float64 = %v", order, got)
				}
			}

			if err := buf.WriteBufferInt16(binary.BigEndian, 0, 0x1234); err != nil {
				t.Fatalf("WriteBufferInt16: %v", err)
			}
			if got, _ := buf.ReadBufferInt16(binary.BigEndian, 0); got != 0x1234 {
				t.Fatalf("big endian read = %#x", got)
			}
			if got, _ := buf.ReadBufferInt16(binary.LittleEndian, 0); got != 0x3412 {
				t.Fatalf("little endian read = %#x", got)
			}
			if b, _ := buf.ReadBufferByte(0); b != 0x12 {
				t.Fatalf("first byte = %#x", b)
			}
		})
	}
}

func TestValue_BufferNotWritable(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})

	v, err := c.AsValue(host.ReadOnlyBuffer{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("AsValue: %v", err)
	}
	if b, err := v.ReadBufferByte(3); err != nil || b != 4 {
		t.Fatalf("ReadBufferByte = %d, %v", b, err)
	}
	err = v.WriteBufferInt16(binary.BigEndian, 0, 1)
	if !stderrors.Is(err, errors.ErrBufferNotWritable) {
		t.Fatalf("expected buffer not writable, got %v", err)
	}
}

func TestValue_UnsupportedOperation(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})

	v, err := c.AsValue("text")
	if err != nil {
		t.Fatalf("AsValue: %v", err)
	}
	if !v.IsString() || v.IsNumber() || v.CanExecute() {
		t.Fatalf("unexpected caps %b", v.Caps())
	}

	ops := map[string]func() error{
		"AsInt32":      func() error { _, err := v.AsInt32(); return err },
		"Execute":      func() error { _, err := v.Execute(); return err },
		"ArraySize":    func() error { _, err := v.ArraySize(); return err },
		"BufferSize":   func() error { _, err := v.BufferSize(); return err },
		"WriteBuffer":  func() error { return v.WriteBufferByte(0, 1) },
		"HashSize":     func() error { _, err := v.HashSize(); return err },
		"NewInstance":  func() error { _, err := v.NewInstance(); return err },
		"AsDuration":   func() error { _, err := v.AsDuration(); return err },
		"IteratorNext": func() error { _, err := v.IteratorNextElement(); return err },
	}
	for name, op := range ops {
		if err := op(); !stderrors.Is(err, errors.ErrUnsupportedOperation) {
			t.Errorf("%s: expected unsupported operation, got %v", name, err)
		}
	}
	if v.FitsInInt32() {
		t.Fatal("string fits in int32")
	}

	// The handle stays usable after a failed operation.
	if s, err := v.AsString(); err != nil || s != "text" {
		t.Fatalf("AsString = %q, %v", s, err)
	}
}

func TestValue_EqualAndHash(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})
	mod := evalAdd(t, c)

	a, _ := mod.Member("memory")
	b, _ := mod.Member("memory")
	if a == b {
		t.Fatal("expected distinct handles")
	}
	if !a.Equal(b) {
		t.Fatal("handles of the same memory are not equal")
	}
	if a.Equal(nil) {
		t.Fatal("equal to nil")
	}
	fn, _ := mod.Member("add")
	if a.Equal(fn) {
		t.Fatal("memory equal to function")
	}
}

func TestException_Syntax(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})

	_, err := c.EvalString("json", `{"open": `)
	var ex *Exception
	if !stderrors.As(err, &ex) {
		t.Fatalf("expected *Exception, got %T: %v", err, err)
	}
	if !ex.IsSyntaxError() || ex.IsHostException() || ex.IsInterrupted() {
		t.Fatalf("wrong classification for %v", ex)
	}
	if ex.Error() == "" || ex.Message() == "" {
		t.Fatal("exception without message")
	}

	src, _ := e.BuildSource(SourceConfig{Language: "wasm", Content: []byte{0x00, 0x61, 0x73, 0x6d, 0x01}})
	_, err = c.Eval(src)
	if !stderrors.As(err, &ex) || !ex.IsSyntaxError() {
		t.Fatalf("expected wasm syntax error, got %v", err)
	}
}

func TestContext_ResourceLimits(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Chain: newTestChain(t, host.New())})

	var fired *Context
	var filtered []string
	c := newTestContext(t, e, ContextConfig{ResourceLimits: &ResourceLimits{
		StatementLimit: 1,
		SourceFilter: func(s *Source) bool {
			filtered = append(filtered, s.Language())
			return true
		},
		OnLimit: func(c *Context) { fired = c },
	}})

	if _, err := c.EvalString("json", `1`); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	_, err := c.EvalString("json", `2`)
	var ex *Exception
	if !stderrors.As(err, &ex) || !ex.IsResourceExhausted() {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
	if fired != c {
		t.Fatal("OnLimit did not receive the context")
	}
	if len(filtered) == 0 || filtered[0] != "json" {
		t.Fatalf("source filter saw %v", filtered)
	}

	if err := c.ResetLimits(); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}
	if _, err := c.EvalString("json", `3`); err != nil {
		t.Fatalf("eval after reset: %v", err)
	}
}

func TestContext_PermittedLanguages(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})

	if _, err := e.NewContext(ContextConfig{Languages: []string{"cobol"}}); err == nil {
		t.Fatal("context created with an unknown language")
	}
	_, err := e.NewContext(ContextConfig{
		Languages:      []string{"json"},
		PolyglotAccess: &PolyglotAccess{Bindings: []string{"wasm"}},
	})
	if !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid polyglot access, got %v", err)
	}

	c := newTestContext(t, e, ContextConfig{Languages: []string{"json"}})
	if _, err := c.EvalString("json", `true`); err != nil {
		t.Fatalf("permitted language: %v", err)
	}
}

func TestAttachExecutionListener(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})
	mod := evalAdd(t, c)

	var entered []string
	var inputs int
	var result int32
	l, err := e.AttachExecutionListener(ListenerConfig{
		Roots:         true,
		CollectInputs: true,
		CollectReturn: true,
		OnEnter: func(ev *ExecutionEvent) {
			entered = append(entered, ev.RootName())
			inputs = len(ev.InputValues())
		},
		OnReturn: func(ev *ExecutionEvent) {
			if v, ok := ev.ReturnValue(); ok {
				result, _ = v.AsInt32()
			}
		},
	})
	if err != nil {
		t.Fatalf("AttachExecutionListener: %v", err)
	}

	if _, err := mod.Invoke("add", int32(2), int32(5)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(entered) != 1 || entered[0] != "add" || inputs != 2 || result != 7 {
		t.Fatalf("entered %v, inputs %d, result %d", entered, inputs, result)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := mod.Invoke("add", int32(1), int32(1)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(entered) != 1 {
		t.Fatalf("closed listener still notified: %v", entered)
	}
}

func TestPolyglotAccess(t *testing.T) {
	p := &PolyglotAccess{
		Eval:     map[string][]string{"wasm": {"json", "host"}},
		Bindings: []string{"json"},
	}
	if got := p.evalAccess("wasm"); len(got) != 2 || got[0] != "host" || got[1] != "json" {
		t.Fatalf("evalAccess = %v", got)
	}
	if got := p.evalAccess("json"); got != nil {
		t.Fatalf("evalAccess(json) = %v", got)
	}
	if got := PolyglotAccessAll.bindingsAccess(); len(got) != 1 || got[0] != AllLanguages {
		t.Fatalf("all bindings = %v", got)
	}

	tests := []struct {
		name      string
		policy    *PolyglotAccess
		permitted []string
		wantErr   bool
	}{
		{"all", PolyglotAccessAll, []string{"json"}, false},
		{"nothing permitted listed", p, nil, false},
		{"every language permitted", p, []string{"wasm", "json", "host"}, false},
		{"eval target missing", p, []string{"wasm", "json"}, true},
		{"bindings missing", &PolyglotAccess{Bindings: []string{"wasm"}}, []string{"json"}, true},
		{"wildcard", &PolyglotAccess{Bindings: []string{AllLanguages}}, []string{"json"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.validate(tt.permitted)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHostAccess_Policy(t *testing.T) {
	api := apiAccess{}
	if !api.AllowsPublicAccess(nil) || !api.IsMapAccessible(nil) {
		t.Fatal("nil policy should grant all access")
	}
	if api.AllowsPublicAccess(HostAccessNone) || api.IsBufferAccessible(HostAccessNone) {
		t.Fatal("HostAccessNone grants access")
	}

	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{HostAccess: HostAccessNone})
	v, err := c.AsValue([]byte{1, 2})
	if err != nil {
		t.Fatalf("AsValue: %v", err)
	}
	if v.HasBufferElements() {
		t.Fatal("buffer access granted under HostAccessNone")
	}
}

func TestIOProvider(t *testing.T) {
	caps := impl.NewCapabilities()
	if err := register(caps); err != nil {
		t.Fatalf("register: %v", err)
	}
	io, err := caps.IO()
	if err != nil {
		t.Fatalf("IO: %v", err)
	}

	var sink discard
	r := io.RedirectToStream(&sink)
	w, ok := io.RedirectWriter(r)
	if !ok || w != &sink {
		t.Fatalf("RedirectWriter = %v, %v", w, ok)
	}
	if _, ok := io.RedirectWriter(RedirectInherit); ok {
		t.Fatal("inherit redirect has a writer")
	}

	cmd, ok := io.NewProcessCommand([]string{"ls", "-l"}, "/tmp", nil, true, nil, r, RedirectDiscard).(*ProcessCommand)
	if !ok {
		t.Fatal("process command has the wrong type")
	}
	if !cmd.Input.Inherit() || !cmd.RedirectErrorStream || cmd.Dir != "/tmp" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if w, _ := cmd.Output.Writer(); w != &sink {
		t.Fatal("output redirect lost its stream")
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestAPIAccess_Handles(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	c := newTestContext(t, e, ContextConfig{})
	v, _ := c.AsValue(int64(5))

	api := apiAccess{}
	if ref, ok := api.ValueRef(v); !ok || ref.Receiver != v.ref.Receiver {
		t.Fatal("ValueRef lost the receiver")
	}
	if _, ok := api.ValueRef(5); ok {
		t.Fatal("ValueRef accepted a Go value")
	}
	if ref, ok := api.EngineRef(e); !ok || ref.Receiver != e.ref.Receiver {
		t.Fatal("EngineRef lost the receiver")
	}
	if _, ok := api.ContextRef(c); !ok {
		t.Fatal("ContextRef rejected a context")
	}
	if _, ok := api.ExceptionRef(stderrors.New("plain")); ok {
		t.Fatal("ExceptionRef accepted a plain error")
	}
}

func TestInstall(t *testing.T) {
	if err := Install(wasm.New(), host.New()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := Install(host.New()); err == nil {
		t.Fatal("second Install succeeded")
	}

	if id, ok := FindLanguage("application/wasm"); !ok || id != "wasm" {
		t.Fatalf("FindLanguage = %q, %v", id, ok)
	}
	src, err := NewSource("json", `{"a": 1}`, "a.json")
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Name() != "a.json" || src.LineCount() != 1 || !src.HasCharacters() {
		t.Fatalf("unexpected source %s", src)
	}

	e, err := NewEngine(EngineConfig{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close(true)
	c, err := e.NewContext(ContextConfig{})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	v, err := c.Eval(src)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !v.HasMember("a") {
		t.Fatal("member a missing")
	}
}

func TestActiveEngines(t *testing.T) {
	e, err := NewEngine(EngineConfig{Chain: newTestChain(t, host.New())})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if !slices.Contains(ActiveEngines(), e) {
		t.Fatal("new engine is not active")
	}
	if err := e.Close(false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if slices.Contains(ActiveEngines(), e) {
		t.Fatal("closed engine is still active")
	}
}

func TestCurrentContext(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	outer := newTestContext(t, e, ContextConfig{})
	inner := newTestContext(t, e, ContextConfig{})

	if _, ok := CurrentContext(context.Background()); ok {
		t.Fatal("current context before Enter")
	}
	if err := outer.Enter(); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := inner.Enter(); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if c, _ := CurrentContext(context.Background()); c != inner {
		t.Fatal("innermost entered context is not current")
	}
	if c, _ := CurrentContext(WithCurrent(context.Background(), outer)); c != outer {
		t.Fatal("carried context does not win")
	}
	if err := inner.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if c, _ := CurrentContext(context.Background()); c != outer {
		t.Fatal("Leave did not restore the outer context")
	}
	if err := inner.Leave(); err == nil {
		t.Fatal("Leave without Enter succeeded")
	}
	if c, _ := CurrentContext(context.Background()); c != outer {
		t.Fatal("failed Leave changed the current context")
	}
	if err := outer.Close(true); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := CurrentContext(context.Background()); ok {
		t.Fatal("closed context is still current")
	}
}
